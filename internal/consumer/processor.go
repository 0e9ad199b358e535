// Package consumer reads attendance events from Kafka and hands them to a Handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	EventID       int64
	AggregateID   string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches and handles records until ctx is cancelled. Records that cannot be decoded are
// committed and dropped. Records the handler rejects stay uncommitted so the group redelivers
// them.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch: %v", err)
			continue
		}
		p.process(ctx, record)
	}
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	msg, err := decodeMessage(record)
	if err != nil {
		p.logger.Printf("drop %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
		observe(Message{Topic: record.Topic, EventType: "unknown"}, outcomeDecodeError)
		p.commit(ctx, record)
		return
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		p.logger.Printf("handle %s event %d (session=%s, offset=%d): %v", msg.EventType, msg.EventID, msg.AggregateID, msg.Offset, err)
		observe(msg, outcomeHandlerError)
		return
	}
	if p.commit(ctx, record) {
		observe(msg, outcomeProcessed)
	}
}

func (p *Processor) commit(ctx context.Context, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
		return false
	}
	return true
}

// decodeMessage unwraps the Confluent frame and the headers set by the outbox dispatcher.
func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, fmt.Errorf("frame too short: %d bytes", len(record.Value))
	}
	if record.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown wire format magic byte %d", record.Value[0])
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType, ok := headers["event_type"]
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}

	var eventID int64
	if raw, ok := headers["event_id"]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("invalid event_id header %q: %w", raw, err)
		}
		eventID = parsed
	}

	payload := json.RawMessage(append([]byte(nil), record.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, errors.New("payload is not valid JSON")
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		EventID:       eventID,
		AggregateID:   headers["aggregate_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       payload,
	}, nil
}
