// Package loader discovers scripts in the managed directory and in
// user-registered external paths, analyzes them concurrently, and produces
// the deterministic catalog the rest of the application consumes.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"bindkit/internal/script"
	"bindkit/internal/settings"
	"bindkit/internal/shared/logging"
)

// defaultAnalysisWorkers bounds concurrent file analysis. Analysis is
// CPU-light but opens files, so a small pool keeps descriptor use flat.
const defaultAnalysisWorkers = 4

// candidate is one discovered file before analysis.
type candidate struct {
	path       string
	external   bool
	externalID string // registered display name for external entries
}

// Result is the outcome of one full discovery pass.
type Result struct {
	Scripts []script.Info
	// Failed maps file path to the reason analysis rejected it.
	Failed map[string]string
	// Aliases maps legacy extensionless keys to canonical identifiers for
	// settings written by older releases.
	Aliases map[string]string
}

// Lookup resolves name against the catalog: canonical identifier first,
// then the legacy alias map.
func (r *Result) Lookup(name string) (script.Info, bool) {
	key := strings.ToLower(name)
	for _, info := range r.Scripts {
		if info.Identifier == key {
			return info, true
		}
	}
	if canonical, ok := r.Aliases[key]; ok {
		for _, info := range r.Scripts {
			if info.Identifier == canonical {
				return info, true
			}
		}
	}
	return script.Info{}, false
}

// Loader owns discovery configuration. Safe for repeated Load calls.
type Loader struct {
	dir      string
	store    *settings.Store
	analyzer *script.Analyzer
	logger   logging.Logger
	workers  int
}

// New creates a loader over the managed script directory. store may be nil,
// which disables external scripts and custom names.
func New(dir string, store *settings.Store, analyzer *script.Analyzer, logger logging.Logger) *Loader {
	return &Loader{
		dir:      dir,
		store:    store,
		analyzer: analyzer,
		logger:   logging.OrNop(logger),
		workers:  defaultAnalysisWorkers,
	}
}

// Load runs one full discovery pass: the managed directory and the external
// registrations are walked in parallel, every candidate is analyzed on a
// bounded pool, and the catalog is returned sorted by display name.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	var (
		local    []candidate
		external []candidate
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		local, err = l.scanLocal()
		return err
	})
	g.Go(func() error {
		external = l.scanExternal()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := append(local, external...)
	result := &Result{
		Failed:  make(map[string]string),
		Aliases: make(map[string]string),
	}

	// The pool derives from the caller's context; deriving from a group that
	// already returned would start every worker canceled.
	var mu sync.Mutex
	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(l.workers)
	for _, c := range candidates {
		c := c
		pool.Go(func() error {
			if err := poolCtx.Err(); err != nil {
				return err
			}
			info, err := l.analyze(c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[c.path] = err.Error()
				return nil
			}
			// Soft analysis failures stay in the catalog, flagged
			// non-executable, so the UI can show the diagnostic.
			if info.AnalyzerError != "" {
				result.Failed[c.path] = info.AnalyzerError
			}
			result.Scripts = append(result.Scripts, *info)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}

	l.applyCustomNames(result.Scripts)
	sort.Slice(result.Scripts, func(i, j int) bool {
		return strings.ToLower(result.Scripts[i].DisplayName) < strings.ToLower(result.Scripts[j].DisplayName)
	})
	l.buildAliases(result)

	l.logger.Info("loader: discovered %d scripts (%d failed)", len(result.Scripts), len(result.Failed))
	return result, nil
}

// scanLocal lists the managed directory, skipping subdirectories, dunder
// files, and unsupported extensions.
func (l *Loader) scanLocal() ([]candidate, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("loader: script directory %s does not exist", l.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read script directory: %w", err)
	}

	var out []candidate
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "__") {
			continue
		}
		if script.KindForPath(entry.Name()) == script.KindUnknown {
			continue
		}
		out = append(out, candidate{path: filepath.Join(l.dir, entry.Name())})
	}
	return out, nil
}

// scanExternal reads the registered external scripts from settings. Missing
// registrations surface later as analysis failures so the UI can show them.
func (l *Loader) scanExternal() []candidate {
	if l.store == nil {
		return nil
	}
	registered := l.store.GroupStrings(settings.GroupExternalScripts)

	out := make([]candidate, 0, len(registered))
	for name, path := range registered {
		out = append(out, candidate{path: path, external: true, externalID: name})
	}
	return out
}

func (l *Loader) analyze(c candidate) (*script.Info, error) {
	if c.external {
		if _, err := os.Stat(c.path); err != nil {
			return nil, fmt.Errorf("external script missing: %s", c.path)
		}
	}

	info, err := l.analyzer.Analyze(c.path)
	if err != nil {
		return nil, err
	}
	if c.external {
		info.IsExternal = true
		info.OriginPath = c.path
		if c.externalID != "" {
			// External scripts are keyed by their registered name, not the
			// file basename; hotkeys, schedules, and presets persist under it.
			info.DisplayName = c.externalID
			info.Identifier = strings.ToLower(c.externalID)
		}
	}
	return info, nil
}

// applyCustomNames overlays user-chosen display names keyed by the original
// display name. The settings layer lowercases keys, so matching is
// case-insensitive.
func (l *Loader) applyCustomNames(scripts []script.Info) {
	if l.store == nil {
		return
	}
	stored := l.store.GroupStrings(settings.GroupCustomNames)
	if len(stored) == 0 {
		return
	}
	custom := make(map[string]string, len(stored))
	for k, v := range stored {
		custom[strings.ToLower(k)] = v
	}
	for i := range scripts {
		if name, ok := custom[strings.ToLower(scripts[i].DisplayName)]; ok && name != "" {
			scripts[i].DisplayName = name
		}
	}
}

// buildAliases maps legacy extensionless keys to canonical identifiers.
// When two scripts share a stem the alias goes to the first in display
// order and the collision is logged.
func (l *Loader) buildAliases(result *Result) {
	for _, info := range result.Scripts {
		legacy := script.LegacyKey(info.FilePath)
		if legacy == "" || legacy == info.Identifier {
			continue
		}
		if existing, taken := result.Aliases[legacy]; taken {
			l.logger.Warn("loader: legacy key %q is ambiguous (%s, %s), keeping %s", legacy, existing, info.Identifier, existing)
			continue
		}
		result.Aliases[legacy] = info.Identifier
	}
}

// RefreshExternal re-checks only the external registrations, returning the
// subset whose files are currently present. Used by liveness probes without
// paying for a full directory rescan.
func (l *Loader) RefreshExternal() map[string]bool {
	if l.store == nil {
		return nil
	}
	registered := l.store.GroupStrings(settings.GroupExternalScripts)

	alive := make(map[string]bool, len(registered))
	for name, path := range registered {
		_, err := os.Stat(path)
		alive[name] = err == nil
	}
	return alive
}
