package consumer

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeProcessed    = "processed"
	outcomeHandlerError = "handler_error"
	outcomeDecodeError  = "decode_error"
)

var (
	messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Kafka records read, by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	eventLogWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "event_log_writes_total",
		Help:      "attendance_event_log inserts, split into new rows and redelivered duplicates.",
	}, []string{"event_type", "result"})

	lastEventGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "last_event_timestamp_seconds",
		Help:      "Kafka timestamp of the newest processed record per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(messagesCounter, eventLogWrites, lastEventGauge)
}

func observe(msg Message, outcome string) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, outcome).Inc()
	if outcome == outcomeProcessed && !msg.Timestamp.IsZero() {
		lastEventGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}
