package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodix/custos-oss/pkg/domain"
)

// Queue accepts routed events for asynchronous out-of-band handling. Enqueue
// returns once the event is accepted, not once it is fully processed;
// acceptance failures (full buffer, broker unavailable) are returned to the
// caller so the router can roll back its dedupe claim.
type Queue interface {
	Enqueue(ctx context.Context, event domain.Envelope) error
	Close() error
}

// Handler processes events consumed from the in-memory queue. Handlers must
// be idempotent per event id: a crash between enqueue and claim rollback can
// surface the same event twice.
type Handler interface {
	Handle(ctx context.Context, event domain.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event domain.Envelope) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, event domain.Envelope) error {
	return f(ctx, event)
}

// Dispatcher is the in-memory Queue: a bounded buffer drained by a pool of
// workers fanning out to the configured handler. Suitable for
// single-instance deployments; broker-backed deployments use AMQPQueue.
type Dispatcher struct {
	events  chan domain.Envelope
	handler Handler
	logger  *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts workers goroutines draining a buffer of the given
// capacity into handler.
func NewDispatcher(capacity, workers int, handler Handler, logger *slog.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = 256
	}
	if workers <= 0 {
		workers = 4
	}

	d := &Dispatcher{
		events:  make(chan domain.Envelope, capacity),
		handler: handler,
		logger:  logger.With("component", "webhook_dispatcher"),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Enqueue implements Queue. It never blocks: a full buffer is an acceptance
// failure surfaced to the caller.
func (d *Dispatcher) Enqueue(ctx context.Context, event domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%w: dispatcher closed", domain.ErrQueueUnavailable)
	}
	select {
	case d.events <- event:
		return nil
	default:
		return fmt.Errorf("%w: buffer full", domain.ErrQueueUnavailable)
	}
}

// Depth returns the current backlog, for metrics.
func (d *Dispatcher) Depth() int {
	return len(d.events)
}

// Close stops accepting new events, drains the buffered backlog through the
// handler, and waits for the workers to finish. Buffered events were
// claimed in the dedupe store when the router accepted them; dropping them
// here would lose them for the lifetime of the claim, since a provider
// redelivery is discarded as a duplicate.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.events {
		if err := d.handler.Handle(context.Background(), event); err != nil {
			d.logger.Error("webhook event handler failed",
				"event_id", event.ID, "event_type", event.Type, "error", err)
		}
	}
}
