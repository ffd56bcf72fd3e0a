package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chronicle-audit/backend/internal/config"
	"github.com/chronicle-audit/backend/internal/db"
	"github.com/chronicle-audit/backend/internal/events"
	"github.com/chronicle-audit/backend/internal/repositories"
	"go.uber.org/zap"
)

// Retention worker: periodically prunes audit records older than the
// configured window.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	recordRepo := repositories.NewRecordRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	log.Info("retention worker started",
		zap.Duration("max_age", cfg.RetentionMaxAge),
		zap.Duration("interval", cfg.RetentionInterval))

	ticker := time.NewTicker(cfg.RetentionInterval)
	defer ticker.Stop()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	prune := func() {
		cutoff := time.Now().Add(-cfg.RetentionMaxAge)
		pruned, err := recordRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.Error("prune failed", zap.Error(err))
			return
		}
		if pruned == 0 {
			return
		}
		log.Info("records pruned", zap.Int64("count", pruned), zap.Time("cutoff", cutoff))
		_ = publisher.Publish(ctx, events.StreamAudit, events.Event{
			Type:    events.EventRecordsPruned,
			Payload: map[string]any{"count": pruned, "cutoff": cutoff.Format(time.RFC3339)},
		})
	}

	prune()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
