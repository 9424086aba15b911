// Package app wires configuration into the running components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"voiceui/internal/config"
	"voiceui/internal/db"
	"voiceui/internal/domain"
	"voiceui/internal/engine"
	"voiceui/internal/events"
	"voiceui/internal/executor"
	"voiceui/internal/migrate"
	"voiceui/internal/planner"
	"voiceui/internal/ratelimit"
	"voiceui/internal/session"
	"voiceui/internal/surface"
	"voiceui/internal/surface/browser"
	"voiceui/internal/transcribe"
)

// App is the process-wide component graph.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *sql.DB
	Journal  events.Journal
	Hub      *events.Hub
	Limiter  *ratelimit.Limiter
	Sessions *session.Registry
	Engine   engine.Engine

	// Highlights is the highlighter the default executor uses.
	Highlights *executor.Outline

	browserMu sync.Mutex
	browser   *browser.Browser
}

// Options override collaborators built from config, mainly for tests.
type Options struct {
	Planner     planner.Planner
	Transcriber transcribe.Transcriber
	Executor    *executor.Executor
}

// New opens the journal and builds the engine. Planner and transcriber are
// enabled only when their API keys are present.
func New(cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Path: cfg.Journal.Path})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      conn,
		Journal: events.Journal{DB: conn, Logger: logger},
		Hub:     events.NewHub(logger.With().Str("component", "hub").Logger()),
		Limiter: ratelimit.New(),
	}
	a.Sessions = session.NewRegistry(cfg.Engine.SerializeSessions, a.openURL, logger.With().Str("component", "sessions").Logger())

	pl := opts.Planner
	if pl == nil && cfg.Planner.Enabled() {
		pl = planner.NewOpenAI(cfg.Planner.BaseURL, cfg.Planner.APIKey(), cfg.Planner.Model, cfg.Planner.Timeout)
	}
	tr := opts.Transcriber
	if tr == nil && cfg.Transcriber.Enabled() {
		tr = transcribe.NewWhisper(cfg.Transcriber.BaseURL, cfg.Transcriber.APIKey(), cfg.Transcriber.Model, cfg.Transcriber.Timeout)
	}
	a.Highlights = &executor.Outline{}
	exec := executor.Executor{Highlighter: a.Highlights, Logger: logger.With().Str("component", "executor").Logger()}
	if opts.Executor != nil {
		exec = *opts.Executor
	}
	mode, err := engine.ParseMode(cfg.Engine.Mode)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.Engine = engine.New(engine.Options{
		Planner:     pl,
		Transcriber: tr,
		Executor:    exec,
		Observer:    a.observer(""),
		Mode:        mode,
		Logger:      logger,
	})
	return a, nil
}

func (a *App) observer(session string) domain.Observer {
	return events.Fanout{a.Journal.For(session), a.Hub.For(session), events.Log(a.Logger)}
}

// EngineFor returns the engine bound to one session's observers.
func (a *App) EngineFor(session string) engine.Engine {
	return a.Engine.Bind(a.observer(session), a.Hub.Steps(session))
}

// Run starts the hub and the limiter sweeper. It returns when ctx is done.
func (a *App) Run(ctx context.Context) {
	go a.Limiter.Run(ctx, a.Config.RateLimits.SweepInterval, a.Logger.With().Str("component", "ratelimit").Logger())
	a.Hub.Run(ctx)
}

// openURL lazily connects the browser on first use.
func (a *App) openURL(ctx context.Context, url string) (surface.Surface, io.Closer, error) {
	a.browserMu.Lock()
	if a.browser == nil {
		// Not ctx: the connection outlives the request that created it.
		b, err := browser.Connect(context.Background(), a.Config.Browser.ControlURL, a.Config.Browser.Headless)
		if err != nil {
			a.browserMu.Unlock()
			return nil, nil, fmt.Errorf("%w: %v", session.ErrNoBrowser, err)
		}
		a.browser = b
	}
	b := a.browser
	a.browserMu.Unlock()
	page, err := b.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return page, page, nil
}

// Close releases sessions, the browser and the journal.
func (a *App) Close() error {
	err := a.Sessions.Close()
	a.browserMu.Lock()
	if a.browser != nil {
		_ = a.browser.Close()
		a.browser = nil
	}
	a.browserMu.Unlock()
	if cerr := a.DB.Close(); err == nil {
		err = cerr
	}
	return err
}
