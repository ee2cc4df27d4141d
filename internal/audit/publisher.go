package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher captures structured audit events. It is append-only and hands
// events to a sink so tests can swap destinations easily. In async mode the
// sink write happens off the request path, decoupling request latency from
// audit persistence latency.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	inbox chan Event
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer enables asynchronous publishing with the given queue
// size. Close drains the queue before returning.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records one event, filling in the ID and timestamp when absent. In
// async mode a full queue falls back to a synchronous write rather than
// dropping the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if p.inbox == nil {
		return p.sink.Record(ctx, event)
	}

	// events emitted after Close still land, just synchronously
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.sink.Record(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	default:
		return p.sink.Record(ctx, event)
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.sink.Record(context.Background(), event); err != nil {
			p.logger.Error("audit event dropped by sink",
				"event_id", event.ID,
				"fingerprint", event.Fingerprint,
				"error", err,
			)
		}
	}
}

// Close drains pending events and stops the background writer. Safe to call
// more than once; later Emits write synchronously.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.inbox)
	})
	p.wg.Wait()
}
