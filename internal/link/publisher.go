// Package link dispatches issued commands to an external vehicle link over
// NATS. Without a connection every publish is a no-op.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"swarm-gcs/internal/logging"
	"swarm-gcs/internal/telemetry"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher publishes command rows on "<subject>.<drone id>".
type Publisher struct {
	conn    conn
	subject string
	mu      sync.Mutex
	enabled bool
}

// NewPublisher creates a disabled publisher for subject.
func NewPublisher(subject string) *Publisher {
	return &Publisher{subject: subject}
}

// Connect dials the NATS server at url with automatic reconnects.
func (p *Publisher) Connect(ctx context.Context, url string) error {
	log := logging.FromContext(ctx)
	opts := []nats.Option{
		nats.Name("swarm-gcs"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("command link disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("command link reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	p.mu.Lock()
	p.conn = nc
	p.enabled = true
	p.mu.Unlock()
	log.Info("command link connected", "url", url, "subject", p.subject)
	return nil
}

// Enabled reports whether commands leave the process.
func (p *Publisher) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Subject returns the subject a drone's commands are published on.
func (p *Publisher) Subject(droneID int) string {
	return p.subject + "." + strconv.Itoa(droneID)
}

// WriteCommand publishes row as JSON.
func (p *Publisher) WriteCommand(row telemetry.CommandRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := p.conn.Publish(p.Subject(row.DroneID), data); err != nil {
		return fmt.Errorf("publish command to %s: %w", p.Subject(row.DroneID), err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	p.enabled = false
	return p.conn.Drain()
}
