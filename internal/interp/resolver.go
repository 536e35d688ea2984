// Package interp locates the external interpreters the executor shells out
// to. Lookups hit PATH and the filesystem, so results are memoized per kind
// behind a mutex.
package interp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"bindkit/internal/shared/logging"
)

// Kind names an external interpreter family.
type Kind string

const (
	KindPython     Kind = "python"
	KindPowerShell Kind = "powershell"
	KindBash       Kind = "bash"
	KindCmd        Kind = "cmd"
)

// WSLPrefix marks a resolved bash path that routes through WSL. The suffix
// is the distro name, e.g. "wsl:Ubuntu".
const WSLPrefix = "wsl:"

// ErrNotFound is returned when no interpreter for the kind could be located.
var ErrNotFound = errors.New("interpreter not found")

// Settings is the subset of the settings store the resolver consults.
type Settings interface {
	GetString(key string) string
	GetBool(key string) bool
}

const (
	keyPowerShellPath = "interpreters/powershell_path"
	keyBashPath       = "interpreters/bash_path"
	keyUseWSL         = "interpreters/use_wsl"
	keyWSLDistro      = "interpreters/wsl_distro"
)

// Resolver resolves and caches interpreter paths per kind.
type Resolver struct {
	settings Settings
	logger   logging.Logger

	mu    sync.Mutex
	cache map[Kind]string

	// lookPath is swappable for tests.
	lookPath func(name string) (string, error)
}

// NewResolver creates a resolver backed by the given settings.
func NewResolver(settings Settings, logger logging.Logger) *Resolver {
	return &Resolver{
		settings: settings,
		logger:   logging.OrNop(logger),
		cache:    make(map[Kind]string),
		lookPath: exec.LookPath,
	}
}

// Resolve returns the interpreter path for kind, caching the result.
func (r *Resolver) Resolve(kind Kind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path, ok := r.cache[kind]; ok {
		return path, nil
	}

	path, err := r.resolveLocked(kind)
	if err != nil {
		return "", err
	}
	r.cache[kind] = path
	r.logger.Debug("interp: resolved %s -> %s", kind, path)
	return path, nil
}

// Invalidate clears the cached path for kind, forcing re-resolution. Called
// when the relevant settings change.
func (r *Resolver) Invalidate(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, kind)
}

// InvalidateAll clears every cached path.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[Kind]string)
}

func (r *Resolver) resolveLocked(kind Kind) (string, error) {
	switch kind {
	case KindPython:
		return r.resolvePython()
	case KindPowerShell:
		return r.resolvePowerShell()
	case KindBash:
		return r.resolveBash()
	case KindCmd:
		return r.resolveCmd()
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
	}
}

func (r *Resolver) resolvePython() (string, error) {
	for _, name := range []string{"python3", "python"} {
		if path, err := r.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: python", ErrNotFound)
}

func (r *Resolver) resolvePowerShell() (string, error) {
	if configured := r.settings.GetString(keyPowerShellPath); configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		r.logger.Warn("interp: configured powershell path %q does not exist", configured)
	}
	if path, err := r.lookPath("pwsh"); err == nil {
		return path, nil
	}
	if path, err := r.lookPath("powershell"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: powershell", ErrNotFound)
}

func (r *Resolver) resolveBash() (string, error) {
	if configured := r.settings.GetString(keyBashPath); configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		r.logger.Warn("interp: configured bash path %q does not exist", configured)
	}
	if r.settings.GetBool(keyUseWSL) {
		if _, err := r.lookPath("wsl"); err == nil {
			distro := r.settings.GetString(keyWSLDistro)
			return WSLPrefix + distro, nil
		}
	}
	if path, err := r.lookPath("bash"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: bash", ErrNotFound)
}

func (r *Resolver) resolveCmd() (string, error) {
	if path, err := r.lookPath("cmd"); err == nil {
		return path, nil
	}
	if root := os.Getenv("SystemRoot"); root != "" {
		fallback := filepath.Join(root, "System32", "cmd.exe")
		if _, err := os.Stat(fallback); err == nil {
			return fallback, nil
		}
	}
	return "", fmt.Errorf("%w: cmd", ErrNotFound)
}

// IsWSL reports whether a resolved bash path routes through WSL.
func IsWSL(path string) bool {
	return strings.HasPrefix(path, WSLPrefix)
}

// WSLDistro extracts the distro name from a wsl pseudo-path. Empty means the
// default distro.
func WSLDistro(path string) string {
	return strings.TrimPrefix(path, WSLPrefix)
}

// ToWSLPath translates a Windows drive path into its /mnt mount inside WSL.
// Paths without a drive prefix are returned with slashes normalized.
func ToWSLPath(path string) string {
	normalized := strings.ReplaceAll(path, `\`, "/")
	if len(normalized) >= 2 && normalized[1] == ':' {
		drive := strings.ToLower(normalized[:1])
		return "/mnt/" + drive + normalized[2:]
	}
	return normalized
}
