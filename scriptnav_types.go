// scriptnav/scriptnav_types.go
// Contains core type definitions used throughout the scriptnav package.
package scriptnav

import (
	"errors"
	"fmt"
	stdslog "log/slog"
	"strings"
	"time"
)

// =============================================================================
// Configuration Types & Constants
// =============================================================================

const (
	defaultLogLevel           = "info"        // Default log level.
	defaultSourceExtension    = ".py"         // Extension of analysable source files.
	defaultMemoryCacheTTLSecs = 300           // Default TTL for parse cache items (5 minutes).
	defaultMemoryCacheMax     = 256 << 20     // Default parse cache budget in bytes.
	defaultScanWorkers        = 8             // Parallel reads during module search.
	defaultMaxCompletions     = 50            // Completion items returned per request.
	defaultConfigFileName     = "config.json" // Default config file name.
	configDirName             = "scriptnav"   // Subdirectory name for config/data.
	indexSchemaVersion        = 1             // Invalidates the disk index if its format changes.
)

// defaultBuiltinModules are module names an import check never flags.
var defaultBuiltinModules = []string{
	"__future__", "abc", "argparse", "builtins", "collections", "copy", "datetime",
	"functools", "io", "itertools", "json", "logging", "math", "os", "pathlib",
	"random", "re", "string", "subprocess", "sys", "time", "types", "typing", "unittest",
}

// Config holds the active configuration for the navigator.
type Config struct {
	LogLevel                     string        `json:"log_level" yaml:"log_level"`
	SourceExtension              string        `json:"source_extension" yaml:"source_extension"`
	DynamicParamsForOtherModules bool          `json:"dynamic_params_for_other_modules" yaml:"dynamic_params_for_other_modules"` // Search sibling files in ModulesContainingName.
	AdditionalDynamicModules     []string      `json:"additional_dynamic_modules" yaml:"additional_dynamic_modules"`             // Extra files searched by ModulesContainingName.
	SearchPaths                  []string      `json:"search_paths" yaml:"search_paths"`                                         // Directories imports are resolved against.
	BuiltinModules               []string      `json:"builtin_modules" yaml:"builtin_modules"`
	MemoryCacheTTLSeconds        int           `json:"memory_cache_ttl_seconds" yaml:"memory_cache_ttl_seconds"`
	MemoryCacheTTL               time.Duration `json:"-" yaml:"-"` // Derived duration, not from file.
	MemoryCacheMaxBytes          int64         `json:"memory_cache_max_bytes" yaml:"memory_cache_max_bytes"`
	UseDiskIndex                 bool          `json:"use_disk_index" yaml:"use_disk_index"`
	IndexPath                    string        `json:"index_path" yaml:"index_path"` // Empty selects the user cache dir.
	ScanWorkers                  int           `json:"scan_workers" yaml:"scan_workers"`
	MaxCompletions               int           `json:"max_completions" yaml:"max_completions"`
}

// FileConfig represents the structure of the config file for unmarshalling.
// Uses pointers to distinguish between unset fields and zero-value fields.
type FileConfig struct {
	LogLevel                     *string   `json:"log_level" yaml:"log_level"`
	SourceExtension              *string   `json:"source_extension" yaml:"source_extension"`
	DynamicParamsForOtherModules *bool     `json:"dynamic_params_for_other_modules" yaml:"dynamic_params_for_other_modules"`
	AdditionalDynamicModules     *[]string `json:"additional_dynamic_modules" yaml:"additional_dynamic_modules"`
	SearchPaths                  *[]string `json:"search_paths" yaml:"search_paths"`
	BuiltinModules               *[]string `json:"builtin_modules" yaml:"builtin_modules"`
	MemoryCacheTTLSeconds        *int      `json:"memory_cache_ttl_seconds" yaml:"memory_cache_ttl_seconds"`
	MemoryCacheMaxBytes          *int64    `json:"memory_cache_max_bytes" yaml:"memory_cache_max_bytes"`
	UseDiskIndex                 *bool     `json:"use_disk_index" yaml:"use_disk_index"`
	IndexPath                    *string   `json:"index_path" yaml:"index_path"`
	ScanWorkers                  *int      `json:"scan_workers" yaml:"scan_workers"`
	MaxCompletions               *int      `json:"max_completions" yaml:"max_completions"`
}

// getDefaultConfig returns a new instance of the default configuration.
func getDefaultConfig() Config {
	builtins := make([]string, len(defaultBuiltinModules))
	copy(builtins, defaultBuiltinModules)
	return Config{
		LogLevel:                     defaultLogLevel,
		SourceExtension:              defaultSourceExtension,
		DynamicParamsForOtherModules: true,
		AdditionalDynamicModules:     []string{},
		SearchPaths:                  []string{},
		BuiltinModules:               builtins,
		MemoryCacheTTLSeconds:        defaultMemoryCacheTTLSecs,
		MemoryCacheTTL:               time.Duration(defaultMemoryCacheTTLSecs) * time.Second,
		MemoryCacheMaxBytes:          defaultMemoryCacheMax,
		UseDiskIndex:                 true,
		ScanWorkers:                  defaultScanWorkers,
		MaxCompletions:               defaultMaxCompletions,
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return getDefaultConfig() }

// Validate checks if configuration values are valid, applying defaults for some fields.
func (c *Config) Validate(logger *stdslog.Logger) error {
	var validationErrors []error
	if logger == nil {
		logger = stdslog.Default()
	}
	tempDefault := getDefaultConfig()

	if strings.TrimSpace(c.SourceExtension) == "" {
		logger.Warn("Config validation: source_extension is empty, applying default.", "default", tempDefault.SourceExtension)
		c.SourceExtension = tempDefault.SourceExtension
	} else if !strings.HasPrefix(c.SourceExtension, ".") {
		validationErrors = append(validationErrors, fmt.Errorf("source_extension %q must start with '.'", c.SourceExtension))
		c.SourceExtension = tempDefault.SourceExtension
	}
	if c.MemoryCacheTTLSeconds <= 0 {
		logger.Warn("Config validation: memory_cache_ttl_seconds is not positive, applying default.", "configured_value", c.MemoryCacheTTLSeconds, "default", tempDefault.MemoryCacheTTLSeconds)
		c.MemoryCacheTTLSeconds = tempDefault.MemoryCacheTTLSeconds
	}
	c.MemoryCacheTTL = time.Duration(c.MemoryCacheTTLSeconds) * time.Second

	if c.MemoryCacheMaxBytes <= 0 {
		logger.Warn("Config validation: memory_cache_max_bytes is not positive, applying default.", "configured_value", c.MemoryCacheMaxBytes, "default", tempDefault.MemoryCacheMaxBytes)
		c.MemoryCacheMaxBytes = tempDefault.MemoryCacheMaxBytes
	}
	if c.ScanWorkers <= 0 {
		logger.Warn("Config validation: scan_workers is not positive, applying default.", "configured_value", c.ScanWorkers, "default", tempDefault.ScanWorkers)
		c.ScanWorkers = tempDefault.ScanWorkers
	}
	if c.MaxCompletions <= 0 {
		logger.Warn("Config validation: max_completions is not positive, applying default.", "configured_value", c.MaxCompletions, "default", tempDefault.MaxCompletions)
		c.MaxCompletions = tempDefault.MaxCompletions
	}

	if c.LogLevel == "" {
		logger.Warn("Config validation: log_level is empty, applying default.", "default", defaultLogLevel)
		c.LogLevel = defaultLogLevel
	} else if _, err := ParseLogLevel(c.LogLevel); err != nil {
		logger.Warn("Config validation: Invalid log_level found, applying default.", "configured_value", c.LogLevel, "default", defaultLogLevel, "error", err)
		validationErrors = append(validationErrors, fmt.Errorf("invalid log_level '%s': %w", c.LogLevel, err))
		c.LogLevel = defaultLogLevel
	}

	if c.AdditionalDynamicModules == nil {
		c.AdditionalDynamicModules = []string{}
	}
	if c.SearchPaths == nil {
		c.SearchPaths = []string{}
	}
	for _, p := range c.SearchPaths {
		if strings.TrimSpace(p) == "" {
			validationErrors = append(validationErrors, errors.New("search_paths contains an empty entry"))
			break
		}
	}
	if c.BuiltinModules == nil {
		logger.Warn("Config validation: builtin_modules list is nil, applying default.")
		c.BuiltinModules = tempDefault.BuiltinModules
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(validationErrors...))
	}
	return nil
}

// clone returns a deep copy of the slice fields.
func (c Config) clone() Config {
	cp := c
	cp.AdditionalDynamicModules = append([]string(nil), c.AdditionalDynamicModules...)
	cp.SearchPaths = append([]string(nil), c.SearchPaths...)
	cp.BuiltinModules = append([]string(nil), c.BuiltinModules...)
	return cp
}

// =============================================================================
// Diagnostic Types
// =============================================================================

type DiagnosticSeverity int

const (
	SeverityError   DiagnosticSeverity = 1
	SeverityWarning DiagnosticSeverity = 2
	SeverityInfo    DiagnosticSeverity = 3
	SeverityHint    DiagnosticSeverity = 4
)

type Range struct {
	Start Pos
	End   Pos
}

type Diagnostic struct {
	Range    Range
	Severity DiagnosticSeverity
	Code     string // e.g. "E2"
	Source   string // "scriptnav"
	Message  string
}

// =============================================================================
// Navigation Result Types
// =============================================================================

// Definition is a syntactic `def name(params)` found in a module.
type Definition struct {
	Name   string
	Path   string
	Start  Pos
	End    Pos
	Params []string
}

// Label renders the definition as a call signature, e.g. "f(a, b=…)".
func (d Definition) Label() string {
	return d.Name + "(" + strings.Join(d.Params, ", ") + ")"
}

// HoverInfo is the Markdown shown for the name under a cursor.
type HoverInfo struct {
	Name  string
	Text  string
	Range Range // the hovered name
}

// SignatureContext describes the call enclosing a cursor.
type SignatureContext struct {
	Callee      string       // dotted callee, e.g. "obj.method"
	Call        *Call        // head of the pruned chain (private clone)
	Index       int          // zero-based argument slot
	KeywordArg  bool         // always false for now
	Definitions []Definition // syntactic candidates for the callee's last name
}

type CompletionKind string

const (
	CompletionVariable CompletionKind = "variable"
	CompletionFunction CompletionKind = "function"
	CompletionModule   CompletionKind = "module"
)

// Completion is one ranked completion candidate.
type Completion struct {
	Label          string
	Kind           CompletionKind
	Score          int
	MatchedIndexes []int
}

// =============================================================================
// Index Types
// =============================================================================

// IndexEntry is the gob-encoded value stored per file in the disk name index.
type IndexEntry struct {
	SchemaVersion int
	Size          int64
	ModTime       int64 // UnixNano
	Hash          uint64
	Names         []string
}
