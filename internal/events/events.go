// Package events carries lifecycle events between the queue, the
// orchestrator and other replicas.
package events

import (
	"context"
	"time"
)

// Event names.
const (
	TrainingQueued   = "training_queued"
	TrainingStarted  = "training_started"
	TrainingDone     = "training_done"
	TrainingErrored  = "training_errored"
	TrainingCanceled = "training_canceled"
	ModelReady       = "model_ready"
	ModelDeleted     = "model_deleted"
	BotMounted       = "bot_mounted"
	BotUnmounted     = "bot_unmounted"
)

// Event is a lifecycle event. Minimal and stable: name, target and optional
// fields.
type Event struct {
	Name     string         `json:"name"`
	BotID    string         `json:"bot_id,omitempty"`
	Language string         `json:"language,omitempty"`
	ModelID  string         `json:"model_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
	// Origin identifies the publishing process; set by broadcasting publishers.
	Origin string    `json:"origin,omitempty"`
	Time   time.Time `json:"time"`
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// Handler consumes events delivered by a Subscriber.
type Handler func(Event)

// Subscriber delivers events published by other processes. Subscribe blocks
// until ctx is done or the underlying transport fails.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Noop returns a publisher that drops events.
func Noop() Publisher { return noopPublisher{} }

// OrNoop returns p, or a dropping publisher when p is nil.
func OrNoop(p Publisher) Publisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// Multi fans an event out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
