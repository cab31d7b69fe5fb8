// Package driver opens the configured storage backend and hands back the
// store interface plus lifecycle hooks, so the binaries share one switch.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/webseek/webseek/internal/store"
	mongostore "github.com/webseek/webseek/internal/store/mongo"
	pgstore "github.com/webseek/webseek/internal/store/postgres"
	"github.com/webseek/webseek/pkg/config"
	"github.com/webseek/webseek/pkg/postgres"
	"github.com/webseek/webseek/pkg/resilience"
)

// Handle bundles an opened store with its ping and close functions. PG is
// non-nil only for the postgres driver, for components that need raw SQL
// access (analytics snapshots).
type Handle struct {
	Store store.Store
	PG    *postgres.Client

	ping  func(context.Context) error
	close func(context.Context) error
}

// Open connects to the backend named by cfg.Store.Driver and ensures its
// schema exists. The connection is retried with backoff: the binaries often
// start a moment before their database accepts connections.
func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	switch cfg.Store.Driver {
	case "postgres", "mongo":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var h *Handle
	err := resilience.Retry(ctx, "store open", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, func() error {
		var err error
		h, err = open(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	switch cfg.Store.Driver {
	case "postgres":
		client, err := postgres.New(cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st := pgstore.New(client, cfg.Indexer.BatchSize)
		if err := st.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return &Handle{
			Store: st,
			PG:    client,
			ping:  st.Ping,
			close: func(context.Context) error { return client.Close() },
		}, nil

	case "mongo":
		st, err := mongostore.New(ctx, cfg.Store.Mongo, cfg.Indexer.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close(ctx)
			return nil, err
		}
		return &Handle{
			Store: st,
			ping:  st.Ping,
			close: st.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (h *Handle) Ping(ctx context.Context) error {
	return h.ping(ctx)
}

func (h *Handle) Close(ctx context.Context) error {
	return h.close(ctx)
}
