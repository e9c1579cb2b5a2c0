// Package publisher emits audit events to a store, synchronously by default
// or through a buffered channel when async mode is enabled. Async mode trades
// delivery guarantees for latency: a full buffer drops the event rather than
// blocking the ingestion pipeline.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	id "registro/pkg/domain"
	"registro/pkg/platform/audit"
	"registro/pkg/platform/circuit"
)

// probeEvery is how many events are skipped between recovery probes while
// the sink breaker is open.
const probeEvery = 64

var errSinkUnavailable = errors.New("audit sink unavailable, event skipped")

// Publisher writes audit events to a Store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	breaker *circuit.Breaker
	skipped atomic.Int64

	inbox  chan audit.Event
	done   chan struct{}
	closed sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// WithLogger sets a logger for reporting dropped or failed events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithBreaker guards the store with a circuit breaker. While the breaker is
// open most events are skipped instead of hitting the dead sink; every
// probeEvery-th event goes through as a recovery probe.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

// NewPublisher constructs a publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit records an event. In sync mode the caller blocks until the store
// accepts it; in async mode a full buffer drops the event with a warning.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, event dropped", "action", event.Action)
		}
		return nil
	}
}

// List returns the stored events for an entity.
func (p *Publisher) List(ctx context.Context, entityID id.EntityID) ([]audit.Event, error) {
	return p.store.ListByEntity(ctx, entityID)
}

// Close drains any buffered events and stops the background worker.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
		}
	}
}

// append writes through the breaker when one is configured.
func (p *Publisher) append(ctx context.Context, event audit.Event) error {
	if p.breaker == nil {
		return p.store.Append(ctx, event)
	}
	if p.breaker.IsOpen() && p.skipped.Add(1)%probeEvery != 0 {
		return errSinkUnavailable
	}
	if err := p.store.Append(ctx, event); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened && p.logger != nil {
			p.logger.Warn("audit sink breaker opened", "breaker", p.breaker.Name())
		}
		return err
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.skipped.Store(0)
		if p.logger != nil {
			p.logger.Info("audit sink breaker closed", "breaker", p.breaker.Name())
		}
	}
	return nil
}
