package rules

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/storage"
)

// ConfigWatcher tracks the rule config file and reloads it when its
// modification time changes. The scheduler calls ReloadIfChanged once per
// tick; everything else reads the current snapshot through Current.
type ConfigWatcher struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	current *Rules
	lastMod time.Time
	loaded  bool
}

// NewConfigWatcher creates a watcher for the given rules file. The initial
// snapshot is the file contents, or Defaults when the file is missing.
func NewConfigWatcher(path string, log zerolog.Logger) *ConfigWatcher {
	w := &ConfigWatcher{
		path:    path,
		log:     log.With().Str("component", "config_watcher").Logger(),
		current: Defaults(),
	}

	if _, err := w.ReloadIfChanged(); err != nil {
		w.log.Warn().Err(err).Msg("Initial rules load failed, using defaults")
	}
	return w
}

// Current returns the active rule snapshot. The returned pointer must be
// treated as read-only.
func (w *ConfigWatcher) Current() *Rules {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadIfChanged re-reads the rules file when its mtime moved since the
// last load. Returns whether a new snapshot was installed.
func (w *ConfigWatcher) ReloadIfChanged() (bool, error) {
	info, err := os.Stat(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		// No file means defaults; nothing to reload.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.loaded && !info.ModTime().After(w.lastMod) {
		return false, nil
	}

	loaded := Defaults()
	if err := storage.ReadJSON(w.path, loaded); err != nil {
		return false, err
	}

	w.current = loaded
	w.lastMod = info.ModTime()
	w.loaded = true

	w.log.Info().
		Time("mtime", info.ModTime()).
		Bool("automation_active", loaded.AutomationActive).
		Msg("Rules reloaded")

	return true, nil
}

// Save writes a rule snapshot to the watched file (used by the setup path
// and the control surface).
func (w *ConfigWatcher) Save(r *Rules) error {
	if err := storage.WriteJSON(w.path, r); err != nil {
		return err
	}
	_, err := w.ReloadIfChanged()
	return err
}
