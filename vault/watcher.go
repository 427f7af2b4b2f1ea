package vault

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes registered vault roots and reports when a vault loses its
// marker directory at runtime. The registry itself stays immutable; the
// watcher only warns, so operators notice a vault that was moved or
// de-initialized underneath a running server.
type Watcher struct {
	reg    *Registry
	log    *slog.Logger
	fsw    *fsnotify.Watcher
	onLost func(vault string)
}

// NewWatcher builds a watcher over every vault in the registry. onLost, if
// non-nil, is invoked with the vault name whose marker directory disappeared.
func NewWatcher(reg *Registry, log *slog.Logger, onLost func(vault string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, v := range reg.Vaults() {
		if err := fsw.Add(v.Path); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return &Watcher{reg: reg, log: log, fsw: fsw, onLost: onLost}, nil
}

// Run consumes filesystem events until the context is canceled or the
// underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(ev.Name) != MarkerDir {
				continue
			}
			root := filepath.Dir(ev.Name)
			for _, v := range w.reg.Vaults() {
				if v.Path == root {
					w.log.Warn("vault marker directory removed; vault is no longer initialized", "vault", v.Name, "path", v.Path)
					if w.onLost != nil {
						w.onLost(v.Name)
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("vault watcher error", "err", err)
		}
	}
}
