package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/attendance/internal/config"
	"example.com/attendance/internal/consumer"
	"example.com/attendance/internal/persistence/postgres"
	httptransport "example.com/attendance/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if len(cfg.KafkaBrokers) == 0 || len(cfg.ConsumerTopics) == 0 {
		log.Fatal("KAFKA_BROKERS and CONSUMER_TOPICS are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	go serveMetrics(ctx, cfg.MetricsAddress)

	// One group member subscribed to every topic; partitions are balanced across replicas.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.ConsumerGroupID,
		GroupTopics:    cfg.ConsumerTopics,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
		RetentionTime:  24 * time.Hour,
	})
	defer reader.Close()

	log.Printf("event log consumer started (topics=%v, group=%s)", cfg.ConsumerTopics, cfg.ConsumerGroupID)
	proc := consumer.NewProcessor(reader, consumer.NewPersistenceHandler(pool))
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("consumer stopped: %v", err)
	}
	log.Println("consumer shut down")
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptransport.NewServer(httptransport.DefaultServerConfig(addr), mux)
	if err := httptransport.Serve(ctx, srv, "consumer metrics", 10*time.Second); err != nil {
		log.Printf("metrics server error: %v", err)
	}
}
