package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/runtime"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
)

type backend struct {
	store  booking.Store
	source outbox.Source
	checks []runtime.ReadyCheck
	close  func()
}

// openStore picks the backend from STORAGE. "memory" keeps everything in
// process and is meant for demos and local runs.
func openStore(ctx context.Context, logger *slog.Logger) (backend, error) {
	switch kind := config.String("STORAGE", "postgres"); kind {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		mem := storage.NewMemory()
		return backend{store: mem, source: mem, close: func() {}}, nil
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return backend{}, err
		}
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
		if err != nil {
			return backend{}, fmt.Errorf("db connection failed: %w", err)
		}
		applied, err := storage.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "versions", applied)
		}
		pg := storage.NewPostgres(pool)
		return backend{
			store:  pg,
			source: pg.Outbox(),
			checks: []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			close:  pool.Close,
		}, nil
	default:
		return backend{}, fmt.Errorf("unknown STORAGE %q (want postgres or memory)", kind)
	}
}
