// Package events publishes change notifications after a write commits.
//
// Subjects follow prefix.entity.operation, e.g.
//   - restless.person.c  → person created
//   - restless.person.u  → person(s) updated
//   - restless.person.d  → person deleted
//
// Payload: JSON-encoded Event.
package events

import (
	"context"
	"time"
)

type Op string

const (
	OpCreate Op = "c"
	OpUpdate Op = "u"
	OpDelete Op = "d"
)

// Event describes one committed write. IDs lists the affected primary keys;
// Relations lists the relation names edited along with it.
type Event struct {
	Entity    string    `json:"entity"`
	Op        Op        `json:"op"`
	IDs       []any     `json:"ids"`
	Relations []string  `json:"relations,omitempty"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"requestId,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
