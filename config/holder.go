// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder keeps the current configuration of a long-running shell and
// swaps it when the file changes or the process receives SIGHUP.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onReload func(error)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// setting is one diffable configuration key.
type setting struct {
	path   string
	value  func(*Config) string
	reload bool
}

// settings lists every key in file order. Keys with reload set are applied
// by OnChange listeners; the rest are read once when the database opens.
var settings = []setting{
	{"database.driver", func(c *Config) string { return c.Database.Driver }, false},
	{"database.dsn", func(c *Config) string { return c.Database.DSN }, false},
	{"schema.prefix", func(c *Config) string { return c.Schema.Prefix }, false},
	{"schema.strict", func(c *Config) string { return strconv.FormatBool(c.Schema.Strict) }, false},
	{"schema.dir", func(c *Config) string { return c.Schema.Dir }, false},
	{"logging.level", func(c *Config) string { return c.Logging.Level }, true},
	{"logging.format", func(c *Config) string { return c.Logging.Format }, true},
	{"metrics.enabled", func(c *Config) string { return strconv.FormatBool(c.Metrics.Enabled) }, false},
	{"metrics.namespace", func(c *Config) string { return c.Metrics.Namespace }, false},
	{"metrics.textfile", func(c *Config) string { return c.Metrics.Textfile }, false},
}

// Change is one key whose value differs between two configurations.
type Change struct {
	Path     string
	Old, New string
	// Restart is set for keys that only take effect on the next start.
	Restart bool
}

// Diff returns the changed keys of next relative to prev, in file order.
func Diff(prev, next *Config) []Change {
	var out []Change
	for _, s := range settings {
		if o, n := s.value(prev), s.value(next); o != n {
			out = append(out, Change{Path: s.path, Old: o, New: n, Restart: !s.reload})
		}
	}
	return out
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		config: cfg,
		path:   absPath,
		logger: logger.With().Str("config", absPath).Logger(),
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload rereads the file. The reload observer sees every attempt; on failure
// the current configuration stays and OnChange listeners are not called.
func (h *Holder) Reload() error {
	next, err := Load(h.path)

	h.mu.RLock()
	observe := h.onReload
	h.mu.RUnlock()
	if observe != nil {
		observe(err)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping current settings")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.config
	h.config = next
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	changes := Diff(prev, next)
	for _, c := range changes {
		ev := h.logger.Info()
		msg := "setting applied"
		if c.Restart {
			ev = h.logger.Warn()
			msg = "setting changed, takes effect on restart"
		}
		ev.Str("key", c.Path).Str("old", c.Old).Str("new", c.New).Msg(msg)
	}

	for _, fn := range listeners {
		fn(next)
	}

	h.logger.Info().Int("changed", len(changes)).Msg("configuration reloaded")
	return nil
}

// OnChange registers a listener called with each successfully reloaded configuration.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnReload sets the observer of every reload attempt and its error.
func (h *Holder) OnReload(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReload = fn
}

// WatchFile reloads whenever the config file is written or replaced.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Editors that save atomically replace the file, so the directory is watched.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop()

	h.logger.Debug().Msg("watching config file")
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("SIGHUP received")
				h.Reload()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	name := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.logger.Debug().Str("op", event.Op.String()).Msg("config file changed")
			h.Reload()

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.stopCh:
			return
		}
	}
}

// ReloadableFields returns the keys applied without a restart.
func ReloadableFields() []string {
	return settingPaths(true)
}

// NonReloadableFields returns the keys that only take effect on restart.
func NonReloadableFields() []string {
	return settingPaths(false)
}

func settingPaths(reload bool) []string {
	var out []string
	for _, s := range settings {
		if s.reload == reload {
			out = append(out, s.path)
		}
	}
	return out
}
