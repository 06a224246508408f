package events

import (
	"context"
	"fmt"
	"log/slog"
)

// AMQPPublisher publishes progress events over a Connection.
type AMQPPublisher struct {
	conn *Connection
}

// NewAMQPPublisher creates a publisher over conn.
func NewAMQPPublisher(conn *Connection) *AMQPPublisher {
	return &AMQPPublisher{conn: conn}
}

// Publish sends one event.
func (p *AMQPPublisher) Publish(ctx context.Context, event *ProgressEvent) error {
	if err := p.conn.PublishJSON(ctx, event); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	slog.Debug("published progress event",
		"event_id", event.ID,
		"type", event.Type,
		"account_id", event.AccountID,
		"block_id", event.BlockID,
	)
	return nil
}

// Close closes the underlying connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

var _ Publisher = (*AMQPPublisher)(nil)
