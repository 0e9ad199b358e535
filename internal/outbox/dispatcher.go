// Package outbox delivers attendance events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

// Publisher writes records whose Topic is already set. *kafka.Writer satisfies it.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher claims unpublished outbox rows, frames them for Schema Registry consumers and
// publishes them. A batch that cannot be published is copied to outbox_dlq and settled.
type Dispatcher struct {
	pool      *pgxpool.Pool
	publisher Publisher
	registry  schemaRegistrar
	logger    *log.Logger
	interval  time.Duration
	batchSize int
	schemaIDs sync.Map // subject -> schema id
	done      chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, publisher Publisher, registry schemaRegistrar, interval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	d := &Dispatcher{
		pool:      pool,
		publisher: publisher,
		registry:  registry,
		logger:    log.New(log.Writer(), "[outbox] ", log.LstdFlags|log.Lshortfile),
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine and use Wait to join it.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("outbox batch: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	started := time.Now()

	claimed, err := d.claim(ctx)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}
	defer func() {
		batchDuration.Observe(time.Since(started).Seconds())
		refreshPending(ctx, d.pool, queueOutbox)
	}()

	if pubErr := d.deliver(ctx, claimed); pubErr != nil {
		d.logger.Printf("publish %d events: %v", len(claimed), pubErr)
		countByType(claimed, publishFailures)
		if err := d.deadLetter(ctx, claimed, pubErr.Error()); err != nil {
			return err
		}
	} else {
		countByType(claimed, publishedCounter)
	}
	return d.settle(ctx, claimed)
}

// claim locks the oldest unpublished rows, stamps claimed_at and commits so other dispatchers
// skip them.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	const query = `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	var claimed []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, d.batchSize)
		if err != nil {
			return fmt.Errorf("select outbox: %w", err)
		}
		claimed, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var msg Message
			err := row.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload)
			return msg, err
		})
		if err != nil {
			return fmt.Errorf("scan outbox: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(claimed)); err != nil {
			return fmt.Errorf("claim outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// deliver frames every message and publishes the batch in one write. Nothing is written when
// any message lacks schema metadata.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	records := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		record, err := d.record(ctx, msg)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if err := d.publisher.WriteMessages(ctx, records...); err != nil {
		return fmt.Errorf("write kafka: %w", err)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, msg Message) (kafka.Message, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}
	schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			{Key: "aggregate_id", Value: []byte(msg.AggregateID)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(msg.EventID, 10))},
		},
	}, nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	if cached, ok := d.schemaIDs.Load(subject); ok {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, fmt.Errorf("ensure schema %s: %w", subject, err)
	}
	d.schemaIDs.Store(subject, id)
	return id, nil
}

func (d *Dispatcher) settle(ctx context.Context, messages []Message) error {
	if _, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages)); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// deadLetter copies messages into outbox_dlq in one round trip. Entries are due for replay
// immediately.
func (d *Dispatcher) deadLetter(ctx context.Context, messages []Message, reason string) error {
	const stmt = `INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`

	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(stmt,
			msg.EventID, msg.EventType, msg.Topic, msg.Payload,
			fmt.Sprintf("%s (topic=%s)", reason, msg.Topic),
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		)
	}

	results := d.pool.SendBatch(ctx, batch)
	for _, msg := range messages {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("write dlq event %d: %w", msg.EventID, err)
		}
		recordDLQ(msg.EventType, dlqRouted)
	}
	return results.Close()
}

// Message is a claimed outbox row.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}

// encodeWireFormat prefixes payload with the Confluent magic byte and big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
