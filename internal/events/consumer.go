package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one event. A returned error requeues the message once.
type Handler func(ctx context.Context, event *ProgressEvent) error

// Consumer reads progress events off the queue.
type Consumer struct {
	conn       *Connection
	handler    Handler
	workers    int
	prefetch   int
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	Workers  int
	Prefetch int
}

// NewConsumer creates a consumer. Zero config values default to one worker
// with a prefetch of 10.
func NewConsumer(conn *Connection, handler Handler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
	}
}

// Start begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.conn.Queue(),
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	ctx, c.cancelFunc = context.WithCancel(ctx)
	slog.Info("consuming progress events", "queue", c.conn.Queue(), "workers", c.workers)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Info("event channel closed", "worker_id", id)
				return
			}
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) {
	var event ProgressEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		slog.Error("dropping malformed event", "error", err)
		_ = msg.Reject(false)
		return
	}

	if err := c.handler(ctx, &event); err != nil {
		slog.Error("event handler failed",
			"event_id", event.ID,
			"type", event.Type,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack event", "event_id", event.ID, "error", err)
	}
}

// Stop cancels the workers and waits for them.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
}
