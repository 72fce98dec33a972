// scriptnav/helpers_diagnostics.go
// Contains helper functions specifically for creating and managing diagnostics.
package scriptnav

import (
	"errors"
	"log/slog"
)

const diagnosticSource = "scriptnav"

// ============================================================================
// Diagnostic Helpers
// ============================================================================

// findingToDiagnostic converts an analysis finding into the internal
// Diagnostic format.
func findingToDiagnostic(f Finding) Diagnostic {
	severity := SeverityError
	if f.Severity == FindingWarning {
		severity = SeverityWarning
	}
	return Diagnostic{
		Range:    Range{Start: f.Start, End: f.End},
		Severity: severity,
		Code:     f.Code(),
		Source:   diagnosticSource,
		Message:  f.Description() + " (" + f.Name + ")",
	}
}

// syntaxDiagnostics reports brackets left open at end of input.
func syntaxDiagnostics(mod *Module) []Diagnostic {
	var diags []Diagnostic
	WalkNodes(mod, func(n Node) bool {
		arr, ok := n.(*Array)
		if ok && !arr.Closed {
			diags = append(diags, Diagnostic{
				Range:    Range{Start: arr.Start, End: Pos{Line: arr.Start.Line, Column: arr.Start.Column + 1}},
				Severity: SeverityWarning,
				Code:     "syntax",
				Source:   diagnosticSource,
				Message:  "unclosed bracket",
			})
		}
		return true
	})
	return diags
}

// logAnalysisErrors logs joined non-fatal analysis errors if any occurred.
func logAnalysisErrors(errs []error, logger *slog.Logger) {
	if len(errs) > 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Analysis completed with non-fatal errors", "count", len(errs), "errors", errors.Join(errs...))
	}
}
