package main

import (
	"context"
	"os"

	"github.com/mschirtzinger/notesync/internal/ai"
	"github.com/mschirtzinger/notesync/internal/config"
	"github.com/mschirtzinger/notesync/internal/engine"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote/sqlstore"
	"github.com/mschirtzinger/notesync/internal/session"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// app is one CLI invocation's engine and the resources behind it.
type app struct {
	eng  *engine.Engine
	sess *session.Session
	db   *sqlstore.DB
}

type appOptions struct {
	sink     notify.Sink
	observer telemetry.Observer
}

// openApp connects to the configured remote and builds the engine. SQLite
// and libSQL stores get their schema created on first use.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := appConfig
	log := appLog.Logger

	sess, err := session.New(cfg.Session.UserID,
		session.WithAccessToken(cfg.Session.AccessToken),
		session.WithAIKey(cfg.AI.APIKey),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	a := &app{sess: sess}
	var remotes engine.Remotes
	if cfg.Remote.Driver == config.DriverMemory {
		remotes = engine.MemoryRemotes()
	} else {
		db, err := sqlstore.Open(ctx, cfg.Remote.Driver, cfg.Remote.DSN)
		if err != nil {
			return nil, err
		}
		if db.Dialect() == sqlstore.DialectSQLite {
			if err := db.InitSchemaContext(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		a.db = db
		remotes = engine.SQLRemotes(db)
	}

	if opts.sink == nil {
		opts.sink = notify.NewTerminal(os.Stdout)
	}
	observer := telemetry.Observer(telemetry.NewLogObserver(log))
	if opts.observer != nil {
		observer = telemetry.Multi(observer, opts.observer)
	}

	ecfg := engine.Config{
		Session:  sess,
		Remotes:  remotes,
		Policy:   cfg.Retry,
		Timeouts: cfg.Timeouts,
		Sink:     opts.sink,
		Observer: observer,
		Log:      log,
	}
	if cfg.AI.APIKey != "" {
		ecfg.Provider = a.provider()
	}
	eng, err := engine.New(ecfg)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.eng = eng
	return a, nil
}

// provider resolves the model on every call: the user's saved setting wins
// over the configured default.
func (a *app) provider() ai.Provider {
	return ai.ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		model := appConfig.AI.Model
		if s, err := a.eng.Settings(ctx); err == nil && s.AIModel != "" {
			model = s.AIModel
		}
		p, err := ai.NewAnthropic(a.sess.AIKey(), model)
		if err != nil {
			return "", err
		}
		return p.Generate(ctx, prompt)
	})
}

func (a *app) closeDB() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			appLog.Warn().Err(err).Msg("failed to close remote store")
		}
	}
}

// Close waits for in-flight mutations and releases the remote store.
func (a *app) Close() {
	if err := a.eng.Close(); err != nil {
		appLog.Warn().Err(err).Msg("failed to close engine")
	}
	a.closeDB()
}

// withApp opens the app, runs fn and closes the app.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
