package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"photo-indexer/internal/logging"
	"photo-indexer/internal/metrics"
)

// KafkaSink forwards events to a Kafka topic keyed by scan token, so each
// scan's events stay ordered within one partition.
type KafkaSink struct {
	w   *kafka.Writer
	log *logging.Logger
}

// NewKafkaSink creates an asynchronous producer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	log := logging.For("kafka")
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		ErrorLogger:  kafka.LoggerFunc(log.Warn),
		Completion: func(messages []kafka.Message, err error) {
			status := "success"
			if err != nil {
				status = "error"
				log.Warn("Failed to deliver %d events: %v", len(messages), err)
			}
			metrics.EventSinkTotal.WithLabelValues(status).Add(float64(len(messages)))
		},
	}
	log.Info("Forwarding scan events to %v topic %s", brokers, topic)
	return &KafkaSink{w: w, log: log}
}

// Send queues ev for delivery.
func (k *KafkaSink) Send(ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		metrics.EventSinkTotal.WithLabelValues("error").Inc()
		return
	}
	// Async writers return immediately; errors arrive via Completion.
	if err := k.w.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(ev.Token),
		Value: value,
		Time:  ev.Time,
	}); err != nil {
		metrics.EventSinkTotal.WithLabelValues("error").Inc()
		k.log.Warn("Failed to queue event for %s: %v", ev.Token, err)
	}
}

// Close flushes pending events and closes the producer.
func (k *KafkaSink) Close() error {
	return k.w.Close()
}
