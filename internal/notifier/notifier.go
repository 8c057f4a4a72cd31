// Package notifier publishes dead-letter alerts over NATS so operators
// can watch DLQ activity without polling Redis. The notifier is optional:
// a nil *Notifier is safe to call and does nothing, which is what stages
// get when no NATS URL is configured.
package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix scopes every alert subject. Alerts are published to
// {SubjectPrefix}.{stage}, e.g. civicsignal.dlq.score.
const SubjectPrefix = "civicsignal.dlq"

// Subject returns the alert subject for a stage.
func Subject(stage string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, stage)
}

// Config holds NATS connection options.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns sensible connection defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "civicsignal",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Alert is the message published for every dead-lettered envelope.
type Alert struct {
	Worker     string    `json:"worker"`
	Stage      string    `json:"stage"`
	Queue      string    `json:"queue"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`
	RetryCount int       `json:"retryCount,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier wraps one NATS connection.
type Notifier struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection with the given options.
func Connect(cfg Config) (*Notifier, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "civicsignal"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Notifier{conn: conn}, nil
}

// DeadLettered publishes an alert for one DLQ push. Publish failures are
// returned for logging but must never fail the pipeline.
func (n *Notifier) DeadLettered(alert Alert) error {
	if n == nil || n.conn == nil {
		return nil
	}
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := n.conn.Publish(Subject(alert.Stage), data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	n.conn.Close()
}
