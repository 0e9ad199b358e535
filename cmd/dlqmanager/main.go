package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/attendance/internal/config"
	"example.com/attendance/internal/outbox"
	"example.com/attendance/internal/persistence/postgres"
	httptransport "example.com/attendance/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	go func() {
		srv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
		if err := httptransport.Serve(ctx, srv, "dlq manager metrics", 10*time.Second); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	log.Printf("dlq manager started (interval=%s, max_retries=%d, batch=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries, cfg.DLQBatchSize)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	for {
		drain(ctx, manager, cfg.DLQBatchSize)

		select {
		case <-ctx.Done():
			log.Println("dlq manager shut down")
			return
		case <-ticker.C:
		}
	}
}

// drain keeps running batches while they come back full, so a backlog clears in one tick.
func drain(ctx context.Context, manager *outbox.DLQManager, batch int) {
	for ctx.Err() == nil {
		settled, err := manager.RunOnce(ctx, batch)
		if err != nil {
			log.Printf("dlq run: %v", err)
			return
		}
		if settled > 0 {
			log.Printf("dlq settled %d entries", settled)
		}
		if settled < batch {
			return
		}
	}
}
