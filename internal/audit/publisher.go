package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tradepost/pkg/requestcontext"
)

// Store is the persistence surface the audit pipeline drains into. The
// storage layer implements it; tests can swap sinks easily.
type Store interface {
	AppendAuditEvent(ctx context.Context, event Event) error
}

// Publisher hands audit events to the background worker through a buffered
// channel. Emission is best-effort: marketplace operations must not fail or
// stall because the audit pipeline is behind, so a full inbox drops the
// event and logs it.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher creates a publisher with the given inbox capacity.
func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Inbox exposes the receive side for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Emit stamps and enqueues an event. Request id and client metadata are
// pulled from the context when not already set.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}

	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit inbox full, dropping event",
				"action", event.Action,
				"actor", event.Actor,
			)
		}
	}
}
