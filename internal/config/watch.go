package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher reloads the config file when it changes on disk. Only settings that
// are safe to change at runtime are handed to OnReload; everything else needs
// a restart.
type Watcher struct {
	v        *viper.Viper
	mu       sync.RWMutex
	current  *Config
	onReload func(old, updated *Config)
}

// LoadAndWatch loads configuration like Load and keeps watching the config
// file. onReload runs after every successful reload; invalid edits are logged
// and ignored.
func LoadAndWatch(configPath string, onReload func(old, updated *Config)) (*Watcher, error) {
	cfg, v, err := load(configPath)
	if err != nil {
		return nil, err
	}
	w := newWatcher(v, cfg, onReload)
	if v.ConfigFileUsed() == "" {
		return w, nil
	}
	v.OnConfigChange(w.handle)
	v.WatchConfig()
	return w, nil
}

func newWatcher(v *viper.Viper, cfg *Config, onReload func(old, updated *Config)) *Watcher {
	return &Watcher{v: v, current: cfg, onReload: onReload}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	updated, err := decode(w.v)
	if err != nil {
		slog.Warn("ignoring invalid config change", "file", ev.Name, "error", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	w.mu.Unlock()

	slog.Info("configuration reloaded", "file", ev.Name)
	if w.onReload != nil {
		w.onReload(old, updated)
	}
}
