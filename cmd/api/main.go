package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/attendance/internal/api"
	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/config"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/lock"
	"example.com/attendance/internal/outbox"
	"example.com/attendance/internal/persistence/memory"
	"example.com/attendance/internal/persistence/postgres"
	"example.com/attendance/internal/persistence/sqlite"
	httptransport "example.com/attendance/internal/transport/http"
)

type store interface {
	domain.SessionStore
	domain.CheckpointStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo       store
		dispatcher *outbox.Dispatcher
		closers    []io.Closer
	)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, cfg.PostgresURL); err != nil {
				log.Fatalf("failed to migrate postgres: %v", err)
			}
		}
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		if len(cfg.KafkaBrokers) > 0 {
			writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
			closers = append(closers, writer)
			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, writer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		closers = append(closers, db)
		repo = sqlite.NewStore(db)
	default:
		log.Println("using in-memory store; attendance is lost on restart")
		repo = memory.NewStore()
	}

	opts := []domain.Option{domain.WithLocation(cfg.Location())}
	if cfg.WorkdayStart != "" {
		policy, err := domain.NewScheduleStatusPolicy(cfg.WorkdayStart, cfg.LateGrace, cfg.Location())
		if err != nil {
			log.Fatalf("invalid workday start: %v", err)
		}
		opts = append(opts, domain.WithStatusPolicy(policy))
	}

	switch cfg.LockBackend {
	case config.LockRedis:
		client, err := lock.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		closers = append(closers, client)
		opts = append(opts, domain.WithLocker(lock.NewRedis(client, lock.RedisConfig{TTL: cfg.LockTTL})))
	default:
		opts = append(opts, domain.WithLocker(lock.NewLocal()))
	}

	service := domain.NewService(repo, repo, opts...)
	handler := api.NewHandler(service, domain.NewCheckpointService(repo))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(log.New(os.Stderr, "[http] ", log.LstdFlags)),
		httptransport.CORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	))

	log.Printf("attendance-service starting (store=%s, lock=%s, tz=%s)", cfg.StoreDriver, cfg.LockBackend, cfg.Location())
	if err := httptransport.Serve(ctx, server, "attendance-service", 15*time.Second); err != nil {
		log.Printf("server error: %v", err)
	}
	stop()

	if dispatcher != nil {
		dispatcher.Wait()
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}
