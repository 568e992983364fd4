package stream

import (
	"encoding/json"
	"fmt"

	"ppg-vitals/internal/analytics"
	"ppg-vitals/internal/metrics"
)

// Conn часть *nats.Conn, нужная для публикации
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher публикует события измерений в NATS
type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher создает издателя; события уходят в subject.<device_id>
func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Publish отправляет событие
func (p *Publisher) Publish(e analytics.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(EventSubject(p.subject, e.DeviceID), data); err != nil {
		metrics.EventsPublished.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.EventsPublished.WithLabelValues("nats", "success").Inc()
	return nil
}
