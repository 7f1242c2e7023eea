package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bloomhouse/cartsync/config"
	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/internal/gateway"
	"github.com/bloomhouse/cartsync/internal/localstore"
	"github.com/bloomhouse/cartsync/internal/reconciler"
	"github.com/bloomhouse/cartsync/pkg/redis"
)

// app is one cartctl process: durable storage, credentials, preferences and
// the reconciler that owns the cart.
type app struct {
	out    io.Writer
	bus    *events.Bus
	creds  *localstore.Credentials
	prefs  *localstore.Preferences
	client *gateway.Client
	rec    *reconciler.Reconciler

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.ClientConfig, sessionToken string, out io.Writer) (*app, error) {
	a := &app{out: out, bus: events.NewBus()}

	persistent, err := a.openStorage(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	session := localstore.NewMemoryStorage()

	a.creds = localstore.NewCredentials(persistent, session, a.bus)
	if sessionToken != "" {
		if err := a.creds.Set(ctx, sessionToken, false); err != nil {
			a.close()
			return nil, err
		}
	}
	a.prefs = localstore.NewPreferences(persistent, a.bus)

	a.client, err = gateway.NewClient(gateway.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
	}, a.creds)
	if err != nil {
		a.close()
		return nil, err
	}

	a.rec = reconciler.New(reconciler.Deps{
		Store:       localstore.NewCartStore(persistent),
		Gateway:     a.client,
		Credentials: a.creds,
		Bus:         a.bus,
	}, reconciler.Options{
		NotificationDelay: cfg.NotificationDelay,
		AllowStaleRemote:  cfg.AllowStaleRemote,
	})
	a.rec.Start(ctx)
	a.closers = append(a.closers, func() error {
		a.rec.Close()
		return nil
	})

	return a, nil
}

func (a *app) openStorage(cfg *config.ClientConfig) (localstore.Storage, error) {
	switch cfg.Storage {
	case "memory":
		return localstore.NewMemoryStorage(), nil
	case "sqlite":
		db, err := localstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s, err := localstore.NewSQLiteStorage(db)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "redis":
		client, err := redis.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return localstore.NewRedisStorage(client, cfg.RedisPrefix), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}

// close lets background syncs finish, then releases everything in reverse
// order of acquisition.
func (a *app) close() {
	if a.rec != nil {
		_ = a.rec.Drain(context.Background())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
