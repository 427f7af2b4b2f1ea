// Package vault validates and registers the filesystem directories the server
// exposes. A directory becomes a vault only after passing the path security
// checks in order (format, local filesystem, suspicious location, overlap) and
// proving prior initialization via its marker subdirectory.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// MaxVaults caps the number of vault paths accepted at startup. The cap is
// enforced before any per-path validation runs.
const MaxVaults = 10

// ErrTooManyVaults is returned when more than MaxVaults paths are configured.
var ErrTooManyVaults = errors.New("too many vault paths")

// ErrNoVaults is returned when no candidate path survives validation.
var ErrNoVaults = errors.New("no valid vaults configured")

// Vault is one registered vault: a unique sanitized name bound to an
// absolute, symlink-resolved root directory.
type Vault struct {
	Name string
	Path string
}

// Registry is an ordered, immutable mapping from vault name to root path.
// It is built once at startup and shared read-only across sessions.
type Registry struct {
	order []string
	roots map[string]string
}

// Option configures registry construction.
type Option func(*newConfig)

type newConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report dropped candidate paths.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRegistry validates the candidate paths and builds the registry.
//
// Per-path failures (bad format, non-local, suspicious location, missing
// marker directory) drop that path from the eligible set and are reported via
// the logger; they do not abort validation of sibling paths. Construction
// fails if the candidate count exceeds MaxVaults (checked first, before any
// validation), if the surviving set overlaps, or if no path survives.
func NewRegistry(candidates []string, opts ...Option) (*Registry, error) {
	cfg := &newConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(candidates) > MaxVaults {
		return nil, fmt.Errorf("%w: %d given, limit is %d", ErrTooManyVaults, len(candidates), MaxVaults)
	}

	var accepted []string
	var dropped []error
	for _, c := range candidates {
		resolved, err := validatePath(c)
		if err != nil {
			dropped = append(dropped, err)
			cfg.logger.Warn("vault path rejected", "path", c, "err", err)
			continue
		}
		accepted = append(accepted, resolved)
	}

	if err := CheckOverlap(accepted); err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVaults, errors.Join(dropped...))
	}

	r := &Registry{roots: make(map[string]string, len(accepted))}
	for _, root := range accepted {
		name := r.assignName(SanitizeName(root))
		r.order = append(r.order, name)
		r.roots[name] = root
		cfg.logger.Info("vault registered", "name", name, "path", root)
	}
	return r, nil
}

// validatePath runs the per-path checks in their required order and verifies
// the marker subdirectory exists.
func validatePath(path string) (string, error) {
	if err := CheckFormat(path); err != nil {
		return "", err
	}
	resolved, err := CheckLocal(path)
	if err != nil {
		return "", err
	}
	if err := CheckSuspicious(resolved); err != nil {
		return "", err
	}
	marker := filepath.Join(resolved, MarkerDir)
	info, err := os.Stat(marker)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s is not an initialized vault: missing %s directory", path, MarkerDir)
	}
	return resolved, nil
}

// assignName disambiguates name collisions deterministically: the first
// occurrence keeps the bare form, later ones get -1, -2, ... in arrival order.
func (r *Registry) assignName(base string) string {
	if base == "" {
		base = "vault"
	}
	if _, taken := r.roots[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if _, taken := r.roots[candidate]; !taken {
			return candidate
		}
	}
}

// Names returns the vault names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Path returns the root path for the named vault.
func (r *Registry) Path(name string) (string, bool) {
	p, ok := r.roots[name]
	return p, ok
}

// Vaults returns all vaults in registration order.
func (r *Registry) Vaults() []Vault {
	out := make([]Vault, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Vault{Name: name, Path: r.roots[name]})
	}
	return out
}

// Len returns the number of registered vaults.
func (r *Registry) Len() int { return len(r.order) }
