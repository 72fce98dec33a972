// scriptnav/helpers_modules.go
// Cross-module name search: which modules may mention a name.
package scriptnav

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// moduleSearch carries the collaborators of one search.
type moduleSearch struct {
	cfg    Config
	cache  *ParseCache
	index  *NameIndex // may be nil
	logger *slog.Logger
}

// run returns the given modules that are source modules, followed by modules
// loaded from sibling and additional files that mention name. Results are
// de-duplicated by identity and path.
func (ms *moduleSearch) run(ctx context.Context, mods []*Module, name string) ([]*Module, error) {
	logger := ms.logger.With("op", "ModulesContainingName", "name", name)

	var result []*Module
	seen := make(map[*Module]bool)
	seenPath := make(map[string]bool)
	for _, m := range mods {
		if m == nil || seen[m] {
			continue
		}
		if m.Path != "" && !strings.HasSuffix(m.Path, ms.cfg.SourceExtension) {
			continue
		}
		seen[m] = true
		if m.Path != "" {
			seenPath[m.Path] = true
		}
		result = append(result, m)
	}
	if !ms.cfg.DynamicParamsForOtherModules {
		return result, nil
	}

	candidates := ms.candidatePaths(result, logger)
	loaded := make([]*Module, len(candidates))
	var errsMu sync.Mutex
	var skipped []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ms.cfg.ScanWorkers)
	for i, path := range candidates {
		if seenPath[path] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mod, err := ms.load(path, name)
			if err != nil {
				errsMu.Lock()
				skipped = append(skipped, err)
				errsMu.Unlock()
			}
			loaded[i] = mod
			return nil
		})
	}
	waitErr := g.Wait()
	logAnalysisErrors(skipped, logger)
	if waitErr != nil {
		return result, fmt.Errorf("%w: %w", ErrModuleSearch, waitErr)
	}

	for _, m := range loaded {
		if m == nil || seen[m] || seenPath[m.Path] {
			continue
		}
		seen[m] = true
		seenPath[m.Path] = true
		result = append(result, m)
	}
	logger.Debug("Module search finished", "candidates", len(candidates), "modules", len(result))
	return result, nil
}

// candidatePaths lists additional modules plus every source file next to a
// given module, sorted and unique.
func (ms *moduleSearch) candidatePaths(mods []*Module, logger *slog.Logger) []string {
	set := make(map[string]struct{})
	for _, p := range ms.cfg.AdditionalDynamicModules {
		if abs, err := filepath.Abs(p); err == nil {
			set[abs] = struct{}{}
		}
	}
	dirs := make(map[string]bool)
	for _, m := range mods {
		if m.Path == "" {
			continue
		}
		dir := filepath.Dir(m.Path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("Cannot list module directory", "dir", dir, "error", err)
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ms.cfg.SourceExtension) {
				set[filepath.Join(dir, e.Name())] = struct{}{}
			}
		}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// load returns the module at path if it mentions name, using the parse cache
// and the name index before reading the file. An error means the file was
// skipped.
func (ms *moduleSearch) load(path, name string) (*Module, error) {
	if mod, ok := ms.cache.Lookup(path); ok {
		return mod, nil
	}
	if ms.index != nil {
		ok, err := ms.index.Contains(path, name)
		if err != nil {
			return nil, fmt.Errorf("skipping %s: %w", path, err)
		}
		if !ok {
			return nil, nil
		}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skipping %s: %w", path, err)
	}
	if ms.index == nil && !containsIdentifier(src, name) {
		return nil, nil
	}
	mod, _ := ms.cache.Load(path, src)
	return mod, nil
}

// containsIdentifier reports whether name occurs in src as an identifier
// token. This intentionally narrows a plain substring test: `helper_count`
// or a string literal mentioning "helper" does not admit a search for helper.
func containsIdentifier(src []byte, name string) bool {
	if name == "" || !bytes.Contains(src, []byte(name)) {
		return false
	}
	names := Identifiers(src)
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}
