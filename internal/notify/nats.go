package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes notices as JSON on "<prefix>.<code>".
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
	close  func()
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL     string `yaml:"nats_url"`
	Subject string `yaml:"subject_prefix"` // Default: "lessonsync"
}

// DialNATS connects to the NATS server at cfg.URL.
func DialNATS(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("lessonsync"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	p := NewNATSPublisher(nc, cfg.Subject, logger)
	p.close = nc.Close
	return p, nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "lessonsync"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject a notice is published on.
func (p *NATSPublisher) Subject(n Notice) string {
	return p.prefix + "." + n.Code
}

func (p *NATSPublisher) Publish(ctx context.Context, n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	subject := p.Subject(n)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WarnContext(ctx, "publish notice failed", "subject", subject, "error", err)
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.DebugContext(ctx, "notice published", "subject", subject, "lesson_id", n.LessonID)
	return nil
}

// Close closes the underlying connection when the publisher owns it.
func (p *NATSPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
