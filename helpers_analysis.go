// scriptnav/helpers_analysis.go
// Static analysis findings and the import resolution check.
package scriptnav

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// findingCodes maps a finding name to its number and description.
var findingCodes = map[string]struct {
	Number      int
	Description string
}{
	"attribute-error": {1, "Potential AttributeError."},
	"import-error":    {2, "Potential ImportError."},
}

// FindingSeverity is the class of a finding; its first letter prefixes codes.
type FindingSeverity int

const (
	FindingError FindingSeverity = iota
	FindingWarning
)

func (s FindingSeverity) String() string {
	if s == FindingWarning {
		return "Warning"
	}
	return "Error"
}

// Finding is one static analysis result anchored at a node start.
type Finding struct {
	Name     string // key of findingCodes, e.g. "import-error"
	Path     string // module path, empty for unsaved buffers
	Start    Pos
	End      Pos
	Severity FindingSeverity
}

// Line is the one-based line of the finding.
func (f Finding) Line() int { return f.Start.Line + 1 }

// Column is the zero-based byte column of the finding.
func (f Finding) Column() int { return f.Start.Column }

// Code is the severity initial followed by the finding number, e.g. "E2".
func (f Finding) Code() string {
	return f.Severity.String()[:1] + fmt.Sprint(findingCodes[f.Name].Number)
}

func (f Finding) Description() string { return findingCodes[f.Name].Description }

func (f Finding) String() string {
	return fmt.Sprintf("%s: %d:%s", f.Code(), f.Line(), f.Description())
}

func (f Finding) GoString() string {
	return fmt.Sprintf("<%s %s: %s@%d,%d>", f.Severity, f.Name, f.Path, f.Line(), f.Column())
}

// AddFinding records a finding for node, resolving the module path through
// the node's parents, and logs it.
func AddFinding(findings []Finding, name string, node Node, severity FindingSeverity, logger *slog.Logger) []Finding {
	if logger == nil {
		logger = slog.Default()
	}
	if _, known := findingCodes[name]; !known {
		logger.Error("Unknown finding name", "name", name)
		return findings
	}
	path := ""
	if m := ModuleOf(node); m != nil {
		path = m.Path
	}
	f := Finding{Name: name, Path: path, Start: node.StartPos(), End: node.EndPos(), Severity: severity}
	logger.Warn(f.String(), "path", path)
	return append(findings, f)
}

// CheckImports flags imports whose top-level module is neither builtin, next
// to the importing file, nor on a search path.
func CheckImports(mod *Module, cfg Config, logger *slog.Logger) []Finding {
	if logger == nil {
		logger = slog.Default()
	}
	checkLogger := logger.With("op", "CheckImports", "path", mod.Path)

	builtins := make(map[string]bool, len(cfg.BuiltinModules))
	for _, b := range cfg.BuiltinModules {
		builtins[b] = true
	}
	var roots []string
	if mod.Path != "" {
		roots = append(roots, filepath.Dir(mod.Path))
	}
	roots = append(roots, cfg.SearchPaths...)

	var findings []Finding
	for _, st := range mod.Statements {
		im, ok := st.(*Import)
		if !ok {
			continue
		}
		for _, name := range im.TopLevelModules() {
			if builtins[name.Value] || resolveModule(roots, name.Value, cfg.SourceExtension) {
				continue
			}
			findings = AddFinding(findings, "import-error", name, FindingError, checkLogger)
		}
	}
	return findings
}

// resolveModule reports whether name is a source file or package in a root.
func resolveModule(roots []string, name, ext string) bool {
	for _, root := range roots {
		for _, candidate := range []string{
			filepath.Join(root, name+ext),
			filepath.Join(root, name, "__init__"+ext),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return true
			}
		}
	}
	return false
}
