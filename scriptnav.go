// scriptnav/scriptnav.go
// Navigator service: parse caching, call-signature context, completions,
// definitions and diagnostics for scripting-language sources.
package scriptnav

import (
	"context"
	"errors"
	"fmt"
	stdslog "log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto"
	"github.com/sahilm/fuzzy"
)

// =============================================================================
// Configuration Loading
// =============================================================================

// LoadConfig loads configuration from standard locations, merges with defaults,
// validates, and attempts to write a default config if needed.
func LoadConfig(logger *stdslog.Logger) (Config, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	cfg := getDefaultConfig()
	var loadedFromFile bool
	var loadErrors []error
	var configParseError error

	primaryPath, secondaryPath, pathErr := GetConfigPaths(logger)
	if pathErr != nil {
		loadErrors = append(loadErrors, pathErr)
		logger.Warn("Could not determine config paths, using defaults", "error", pathErr)
	}

	if primaryPath != "" {
		logger.Debug("Attempting to load config", "path", primaryPath)
		loaded, loadErr := LoadAndMergeConfig(primaryPath, &cfg, logger)
		if loadErr != nil {
			if errors.Is(loadErr, errConfigParse) {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", primaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", primaryPath, "error", loadErr)
		} else if loaded {
			loadedFromFile = true
			logger.Info("Loaded config", "path", primaryPath)
		}
	}

	primaryNotFoundOrFailed := !loadedFromFile || configParseError != nil
	if primaryNotFoundOrFailed && secondaryPath != "" && secondaryPath != primaryPath {
		logger.Debug("Attempting to load config from secondary path", "path", secondaryPath)
		loaded, loadErr := LoadAndMergeConfig(secondaryPath, &cfg, logger)
		if loadErr != nil {
			if configParseError == nil && errors.Is(loadErr, errConfigParse) {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", secondaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", secondaryPath, "error", loadErr)
		} else if loaded && !loadedFromFile {
			loadedFromFile = true
			logger.Info("Loaded config", "path", secondaryPath)
		}
	}

	loadSucceeded := loadedFromFile && configParseError == nil
	if !loadSucceeded {
		writePath := primaryPath
		if writePath == "" {
			writePath = secondaryPath
		}

		if writePath != "" && configParseError == nil {
			logger.Info("No valid config file found. Attempting to write default.", "path", writePath)
			if err := WriteDefaultConfig(writePath, getDefaultConfig(), logger); err != nil {
				logger.Warn("Failed to write default config", "path", writePath, "error", err)
				loadErrors = append(loadErrors, fmt.Errorf("writing default config failed: %w", err))
			}
		} else if configParseError != nil {
			logger.Warn("Existing config file failed to parse, leaving it in place.", "error", configParseError)
		} else {
			logger.Warn("Cannot determine path to write default config.")
			loadErrors = append(loadErrors, errors.New("cannot determine default config path"))
		}
		cfg = getDefaultConfig()
		logger.Info("Using default configuration values.")
	}

	finalCfg := cfg
	if err := finalCfg.Validate(logger); err != nil {
		logger.Error("Final configuration is invalid, falling back to pure defaults.", "error", err)
		loadErrors = append(loadErrors, fmt.Errorf("post-load config validation failed: %w", err))
		pureDefault := getDefaultConfig()
		if valErr := pureDefault.Validate(logger); valErr != nil {
			logger.Error("FATAL: Default config definition is invalid", "error", valErr)
			return pureDefault, fmt.Errorf("default config definition is invalid: %w", valErr)
		}
		finalCfg = pureDefault
	}

	if len(loadErrors) > 0 {
		return finalCfg, fmt.Errorf("%w: %w", ErrConfig, errors.Join(loadErrors...))
	}
	return finalCfg, nil
}

// =============================================================================
// Navigator Service
// =============================================================================

// Navigator answers navigation queries over source buffers. It is safe for
// concurrent use; parsed modules are shared read-only through the parse cache.
type Navigator struct {
	cache    *ParseCache
	index    *NameIndex // nil when the disk index is disabled
	config   Config
	configMu sync.RWMutex
	logger   *stdslog.Logger
}

// NewNavigator creates a navigator from the config found on disk. A returned
// ErrConfig is a warning: the navigator is usable with defaults.
func NewNavigator(logger *stdslog.Logger) (*Navigator, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	serviceLogger := logger.With("service", "Navigator")

	cfg, configErr := LoadConfig(serviceLogger)
	if configErr != nil && !errors.Is(configErr, ErrConfig) {
		serviceLogger.Error("Fatal error during initial config load", "error", configErr)
		return nil, configErr
	}
	nav := newNavigator(cfg, serviceLogger)
	if configErr != nil {
		return nav, configErr
	}
	return nav, nil
}

// NewNavigatorWithConfig creates a navigator with a specific config.
func NewNavigatorWithConfig(config Config, logger *stdslog.Logger) (*Navigator, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	serviceLogger := logger.With("service", "Navigator")
	if err := config.Validate(serviceLogger); err != nil {
		return nil, fmt.Errorf("provided config validation failed: %w", err)
	}
	return newNavigator(config, serviceLogger), nil
}

func newNavigator(cfg Config, logger *stdslog.Logger) *Navigator {
	nav := &Navigator{
		cache:  NewParseCache(cfg, logger),
		config: cfg,
		logger: logger,
	}
	if cfg.UseDiskIndex {
		path := cfg.IndexPath
		if path == "" {
			var err error
			if path, err = DefaultIndexPath(); err != nil {
				logger.Warn("Could not determine index location, disk index disabled.", "error", err)
			}
		}
		if path != "" {
			ix, err := OpenNameIndex(path, logger)
			if err != nil {
				logger.Warn("Failed to open name index, disk index disabled.", "error", err)
			} else {
				nav.index = ix
			}
		}
	}
	return nav
}

// Close releases the caches.
func (n *Navigator) Close() error {
	n.logger.Info("Closing Navigator service")
	n.cache.Close()
	if n.index != nil {
		return n.index.Close()
	}
	return nil
}

// UpdateConfig atomically replaces the configuration.
func (n *Navigator) UpdateConfig(newConfig Config) error {
	if err := newConfig.Validate(n.logger); err != nil {
		n.logger.Error("Invalid configuration provided for update", "error", err)
		return fmt.Errorf("invalid configuration update: %w", err)
	}
	n.configMu.Lock()
	oldExt := n.config.SourceExtension
	n.config = newConfig
	n.configMu.Unlock()
	n.cache.SetTTL(newConfig.MemoryCacheTTL)
	if oldExt != newConfig.SourceExtension {
		// Cached candidate lists were computed for the old extension.
		n.cache.Clear()
	}

	n.logger.Info("Navigator configuration updated",
		stdslog.Group("new_config",
			stdslog.String("log_level", newConfig.LogLevel),
			stdslog.String("source_extension", newConfig.SourceExtension),
			stdslog.Bool("dynamic_params_for_other_modules", newConfig.DynamicParamsForOtherModules),
			stdslog.Any("additional_dynamic_modules", newConfig.AdditionalDynamicModules),
			stdslog.Any("search_paths", newConfig.SearchPaths),
			stdslog.Int("memory_cache_ttl_seconds", newConfig.MemoryCacheTTLSeconds),
			stdslog.Int("scan_workers", newConfig.ScanWorkers),
			stdslog.Int("max_completions", newConfig.MaxCompletions),
		),
	)
	return nil
}

// GetCurrentConfig returns a thread-safe copy of the current configuration.
func (n *Navigator) GetCurrentConfig() Config {
	n.configMu.RLock()
	defer n.configMu.RUnlock()
	return n.config.clone()
}

// CacheMetrics returns the parse cache counters (nil when disabled).
func (n *Navigator) CacheMetrics() *ristretto.Metrics { return n.cache.Metrics() }

// Index returns the disk name index, or nil.
func (n *Navigator) Index() *NameIndex { return n.index }

// ParseDocument returns the (possibly cached) module for path and content.
func (n *Navigator) ParseDocument(path string, src []byte) *Module {
	mod, hit := n.cache.Load(path, src)
	n.logger.Debug("ParseDocument", "path", path, "cache_hit", hit, "statements", len(mod.Statements))
	return mod
}

// StatementAt returns the statement of mod holding pos.
func (n *Navigator) StatementAt(mod *Module, pos Pos) *Statement { return StatementAt(mod, pos) }

// InvalidateFile drops cached state for path.
func (n *Navigator) InvalidateFile(path string) {
	n.cache.Invalidate(path)
	if n.index != nil {
		if err := n.index.Delete(path); err != nil {
			n.logger.Warn("Failed to drop index entry", "path", path, "error", err)
		}
	}
}

// ModulesContainingName returns the source modules among mods followed by
// modules from sibling or additional files that mention name.
func (n *Navigator) ModulesContainingName(ctx context.Context, mods []*Module, name string) ([]*Module, error) {
	ms := &moduleSearch{cfg: n.GetCurrentConfig(), cache: n.cache, index: n.index, logger: n.logger}
	return ms.run(ctx, mods, name)
}

// SignatureAt returns the call-signature context at pos, or nil when the
// cursor is not inside a call's argument list.
func (n *Navigator) SignatureAt(ctx context.Context, path string, src []byte, pos Pos) (sig *SignatureContext, err error) {
	opLogger := n.logger.With("op", "SignatureAt", "path", path, "pos", pos.String())
	defer func() {
		if r := recover(); r != nil {
			opLogger.Error("Panic recovered during signature search", "panic_value", r, "stack", string(debug.Stack()))
			sig = nil
			err = fmt.Errorf("%w: %v", ErrMalformedTree, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mod := n.ParseDocument(path, src)
	stmt := StatementAt(mod, pos)
	if stmt == nil {
		opLogger.Debug("No statement at position")
		return nil, nil
	}
	call, index, keyword := SearchCallSignatures(stmt, pos)
	if call == nil {
		opLogger.Debug("No call signature context")
		return nil, nil
	}
	sig = &SignatureContext{Callee: CalleeName(call), Call: call, Index: index, KeywordArg: keyword}

	parts := ChainNames(call)
	if len(parts) == 0 {
		return sig, nil
	}
	last := parts[len(parts)-1]
	if last == "()" || last == "[]" {
		return sig, nil
	}
	mods, searchErr := n.ModulesContainingName(ctx, []*Module{mod}, last)
	if searchErr != nil {
		opLogger.Warn("Module search incomplete", "error", searchErr)
	}
	for _, d := range FindDefinitions(mods, last) {
		if len(parts) > 1 && len(d.Params) > 0 && (d.Params[0] == "self" || d.Params[0] == "cls") {
			d.Params = d.Params[1:]
		}
		sig.Definitions = append(sig.Definitions, d)
	}
	opLogger.Debug("Signature context found", "callee", sig.Callee, "index", index, "definitions", len(sig.Definitions))
	return sig, searchErr
}

// DefinitionsAt returns the `def` statements matching the name under pos in
// the document and in modules that mention it.
func (n *Navigator) DefinitionsAt(ctx context.Context, path string, src []byte, pos Pos) ([]Definition, error) {
	_, defs, err := n.definitionsAt(ctx, path, src, pos)
	return defs, err
}

// HoverAt renders the definitions of the name under pos. A nil result with a
// nil error means there is nothing to show.
func (n *Navigator) HoverAt(ctx context.Context, path string, src []byte, pos Pos) (*HoverInfo, error) {
	opLogger := n.logger.With("op", "HoverAt", "path", path, "pos", pos.String())
	name, defs, err := n.definitionsAt(ctx, path, src, pos)
	if name == nil {
		return nil, err
	}
	if err != nil {
		opLogger.Warn("Module search incomplete", "error", err)
	}
	text := formatDefinitionsForHover(defs, path, opLogger)
	if text == "" {
		opLogger.Debug("No definitions for hovered name", "name", name.Value)
		return nil, err
	}
	return &HoverInfo{Name: name.Value, Text: text, Range: Range{Start: name.Start, End: name.End}}, err
}

func (n *Navigator) definitionsAt(ctx context.Context, path string, src []byte, pos Pos) (*Name, []Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	mod := n.ParseDocument(path, src)
	name := NameAt(mod, pos)
	if name == nil {
		return nil, nil, nil
	}
	mods, err := n.ModulesContainingName(ctx, []*Module{mod}, name.Value)
	return name, FindDefinitions(mods, name.Value), err
}

// CompletionsAt ranks the names bound in the document against the identifier
// prefix before pos. Attribute completion needs inference and yields nothing.
func (n *Navigator) CompletionsAt(ctx context.Context, path string, src []byte, pos Pos) ([]Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := n.GetCurrentConfig()
	opLogger := n.logger.With("op", "CompletionsAt", "path", path, "pos", pos.String())

	prefix, afterDot, err := identifierPrefix(src, pos)
	if err != nil {
		return nil, err
	}
	if afterDot {
		opLogger.Debug("Attribute completion requested, no candidates")
		return nil, nil
	}

	candidates, hit, err := withMemoryCache(n.cache, "candidates:"+cacheKey(path, src), 0, cfg.MemoryCacheTTL,
		func() ([]Completion, error) {
			return moduleCandidates(n.ParseDocument(path, src)), nil
		}, opLogger)
	if err != nil {
		return nil, err
	}
	opLogger.Debug("Completion candidates", "count", len(candidates), "cache_hit", hit, "prefix", prefix)

	var out []Completion
	if prefix == "" {
		out = append(out, candidates...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	} else {
		labels := make([]string, len(candidates))
		for i, c := range candidates {
			labels[i] = c.Label
		}
		for _, m := range fuzzy.Find(prefix, labels) {
			c := candidates[m.Index]
			if c.Label == prefix {
				continue
			}
			c.Score = m.Score
			c.MatchedIndexes = m.MatchedIndexes
			out = append(out, c)
		}
	}
	if len(out) > cfg.MaxCompletions {
		out = out[:cfg.MaxCompletions]
	}
	return out, nil
}

// Findings runs the static checks on the document.
func (n *Navigator) Findings(ctx context.Context, path string, src []byte) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return CheckImports(n.ParseDocument(path, src), n.GetCurrentConfig(), n.logger), nil
}

// Diagnostics reports unclosed brackets and unresolved imports.
func (n *Navigator) Diagnostics(ctx context.Context, path string, src []byte) ([]Diagnostic, error) {
	findings, err := n.Findings(ctx, path, src)
	if err != nil {
		return nil, err
	}
	diags := syntaxDiagnostics(n.ParseDocument(path, src))
	for _, f := range findings {
		diags = append(diags, findingToDiagnostic(f))
	}
	return diags, nil
}

// identifierPrefix returns the identifier characters right before pos and
// whether they follow a '.'.
func identifierPrefix(src []byte, pos Pos) (string, bool, error) {
	lines := strings.Split(string(src), "\n")
	if pos.Line < 0 || pos.Line >= len(lines) {
		return "", false, fmt.Errorf("%w: line %d", ErrPositionOutOfRange, pos.Line)
	}
	line := lines[pos.Line]
	if pos.Column < 0 || pos.Column > len(line) {
		return "", false, fmt.Errorf("%w: column %d", ErrPositionOutOfRange, pos.Column)
	}
	head := line[:pos.Column]
	start := len(head)
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(head[:start])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		start -= size
	}
	return head[start:], start > 0 && head[start-1] == '.', nil
}
