// Package events publishes progress milestones to RabbitMQ.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the durable queue progress events are routed to.
const DefaultQueueName = "trilhas.progress"

// Type identifies a progress milestone.
type Type string

const (
	PhaseCompleted Type = "phase.completed"
	BlockCompleted Type = "block.completed"
)

// ProgressEvent is emitted after a submission commits a completion edge.
type ProgressEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	AccountID  string    `json:"accountId"`
	TrailID    string    `json:"trailId"`
	BlockID    string    `json:"blockId"`
	PhaseID    string    `json:"phaseId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewProgressEvent creates an event with a fresh id.
func NewProgressEvent(t Type, accountID, trailID, blockID, phaseID string, at time.Time) *ProgressEvent {
	return &ProgressEvent{
		ID:         uuid.New(),
		Type:       t,
		AccountID:  accountID,
		TrailID:    trailID,
		BlockID:    blockID,
		PhaseID:    phaseID,
		OccurredAt: at,
	}
}

// Publisher delivers progress events.
type Publisher interface {
	Publish(ctx context.Context, event *ProgressEvent) error
	Close() error
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *ProgressEvent) error { return nil }
func (NopPublisher) Close() error                                  { return nil }
