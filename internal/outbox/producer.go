package outbox

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns a writer that routes each record by its Topic field. Records are
// hashed by key, so every event of one user lands on the same partition in order.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}
