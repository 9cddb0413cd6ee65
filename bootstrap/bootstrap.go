// Package bootstrap wires the logger, store, metrics, schema registry and
// runtime, and registers the built-in entity types.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/entityapi/adapters/idgen"
	"github.com/artpar/entityapi/adapters/metrics"
	"github.com/artpar/entityapi/config"
	"github.com/artpar/entityapi/core/events"
	"github.com/artpar/entityapi/core/registry"
	"github.com/artpar/entityapi/core/runtime"
	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/storage"
	"github.com/artpar/entityapi/core/validation"
	"github.com/artpar/entityapi/domain/user"
)

// App holds the wired components.
type App struct {
	Logger   zerolog.Logger
	Config   *config.Config
	Store    *storage.SQLiteStore
	Registry *registry.Registry
	Runtime  *runtime.Runtime
	Users    *user.Entity

	// Metrics is nil when metrics are disabled.
	Metrics  *metrics.Collector
	Gatherer *prometheus.Registry

	// Declarations parsed from schema.dir on startup.
	Extra []*schema.Entity

	logOutput io.Writer
	sink      *logSink
}

// Options provides optional settings for New.
type Options struct {
	// LogOutput receives log lines (default: os.Stderr).
	LogOutput io.Writer

	// UserOptions configure the user entity type.
	UserOptions []user.Option
}

// New wires an App from cfg and migrates the built-in entity types.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	sink := &logSink{w: formatWriter(opts.LogOutput, cfg.Logging.Format)}
	logger := NewLogger(sink, cfg.Logging.Level, "json")

	logger.Debug().Str("dsn", cfg.Database.DSN).Msg("initializing entityapi")

	a := &App{
		Logger:    logger,
		Config:    cfg,
		logOutput: opts.LogOutput,
		sink:      sink,
	}

	var recorder runtime.Recorder
	a.Registry = registry.New(cfg.SchemaOptions(), logger)
	if cfg.Metrics.Enabled {
		a.Gatherer = prometheus.NewRegistry()
		a.Metrics = metrics.NewWithRegistry(a.Gatherer, cfg.Metrics.Namespace)
		a.Registry.OnParse(a.Metrics.RecordSchemaParse)
		recorder = a.Metrics
		logger.Debug().Msg("prometheus metrics enabled")
	}

	store, err := storage.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.Store = store

	bus := events.NewBus(logger)
	RegisterEventHandlers(bus, logger)

	functions := validation.NewFunctions()
	validation.RegisterBuiltins(functions)

	a.Runtime = runtime.New(runtime.Config{
		Registry:  a.Registry,
		Functions: functions,
		Events:    bus,
		Metrics:   recorder,
		IDs:       idgen.UUID{},
		Logger:    logger,
	})

	if err := a.registerUsers(ctx, opts.UserOptions); err != nil {
		store.Close()
		return nil, err
	}

	if cfg.Schema.Dir != "" {
		if err := a.loadSchemaDir(cfg.Schema.Dir); err != nil {
			store.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) registerUsers(ctx context.Context, opts []user.Option) error {
	a.Users = user.New(a.Store, a.Logger, opts...)
	if err := a.Runtime.Register(a.Users); err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	ent, err := a.Runtime.Schema("user")
	if err != nil {
		return err
	}
	if err := a.Users.Migrate(ctx, ent); err != nil {
		return err
	}
	return nil
}

// loadSchemaDir parses extra declarations into the registry so that a
// broken file fails startup instead of a later call.
func (a *App) loadSchemaDir(dir string) error {
	decls, err := schema.ParseDeclarationDir(dir)
	if err != nil {
		return fmt.Errorf("load schema dir: %w", err)
	}

	for _, decl := range decls {
		ent, err := a.Registry.Load(decl)
		if err != nil {
			return fmt.Errorf("load schema dir: %w", err)
		}
		if missing := a.Runtime.Functions().Missing(ent.Functions()); len(missing) > 0 {
			return &runtime.UnknownValidatorError{Entity: ent.Name(), Names: missing}
		}
		a.Extra = append(a.Extra, ent)
	}

	a.Logger.Debug().
		Str("dir", dir).
		Int("count", len(a.Extra)).
		Msg("schema declarations loaded")
	return nil
}

// ApplyConfig applies the reloadable parts of a new configuration: the
// global level and the output format of every component logger.
func (a *App) ApplyConfig(cfg *config.Config) {
	setGlobalLevel(cfg.Logging.Level)
	a.sink.set(formatWriter(a.logOutput, cfg.Logging.Format))
	a.Config.Logging = cfg.Logging
}

// RecordConfigReload is a config.Holder reload observer.
func (a *App) RecordConfigReload(err error) {
	if a.Metrics != nil {
		a.Metrics.RecordConfigReload(err)
	}
}

// WriteMetrics dumps the metrics registry to the configured textfile.
func (a *App) WriteMetrics() error {
	if a.Gatherer == nil || a.Config.Metrics.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.Config.Metrics.Textfile, a.Gatherer); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Close writes the metrics textfile and closes the store.
func (a *App) Close() error {
	merr := a.WriteMetrics()
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return merr
}

// NewLogger builds a logger and sets the global level. Unknown levels fall
// back to info; "console" selects the human-readable writer, anything else JSON.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	setGlobalLevel(level)
	return zerolog.New(formatWriter(w, format)).With().Timestamp().Logger()
}

func setGlobalLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func formatWriter(w io.Writer, format string) io.Writer {
	if format == "console" {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

// logSink is the shared output of every component logger. Loggers write
// JSON events to it; set swaps the writer that renders them.
type logSink struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *logSink) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
