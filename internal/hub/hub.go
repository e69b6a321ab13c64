package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"callboard/internal/router"
	"callboard/pkg/types"
)

// Publisher delivers one envelope to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, envelope *types.Envelope) (router.Report, error)
}

// Hub serializes broadcasts through a single goroutine.
// ARCHITECTURAL DISCOVERY: One consumer means envelopes reach sockets in the order
// they were committed, so a new_call is never overtaken by its own call_updated
type Hub struct {
	queue    chan *job // TECHNICAL DISCOVERY: buffer absorbs a dismissal-time burst
	shutdown chan struct{}
	done     chan struct{}

	publisher Publisher
	logger    *zap.Logger

	running bool
	mu      sync.RWMutex
}

type job struct {
	channel  string
	envelope *types.Envelope
}

// DefaultQueueSize is the number of pending broadcasts the hub buffers
const DefaultQueueSize = 1000

// NewHub creates a new hub
func NewHub(publisher Publisher, queueSize int, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		queue:     make(chan *job, queueSize),
		publisher: publisher,
		logger:    logger.Named("hub"),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	h.logger.Info("starting notification hub")
	go h.run(ctx, h.shutdown, h.done)

	return nil
}

// Stop stops accepting notifications, drains what is queued and waits for
// the loop to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	h.logger.Info("notification hub stopped")
	return nil
}

// Notify queues an envelope for the channel. It never blocks.
func (h *Hub) Notify(ctx context.Context, channel string, envelope *types.Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	// TECHNICAL DISCOVERY: Non-blocking send prevents a stalled socket from
	// holding up the request that committed the call
	select {
	case h.queue <- &job{channel: channel, envelope: envelope}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued broadcasts.
func (h *Hub) Pending() int {
	return len(h.queue)
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case j := <-h.queue:
			h.publish(ctx, j)

		case <-shutdown:
			h.drain(ctx)
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			// Refuse further notifications; nobody would publish them.
			h.mu.Lock()
			if h.running && h.shutdown == shutdown {
				h.running = false
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drain(ctx context.Context) {
	for {
		select {
		case j := <-h.queue:
			h.publish(ctx, j)
		default:
			return
		}
	}
}

// publish hands one job to the router; failures are logged and the loop continues.
func (h *Hub) publish(ctx context.Context, j *job) {
	report, err := h.publisher.Publish(ctx, j.channel, j.envelope)
	if err != nil {
		h.logger.Error("broadcast failed",
			zap.String("channel", j.channel),
			zap.String("type", j.envelope.Type),
			zap.Error(err),
		)
		return
	}
	if report.Failed > 0 {
		h.logger.Warn("broadcast partially delivered",
			zap.String("channel", j.channel),
			zap.Int("delivered", report.Delivered),
			zap.Int("failed", report.Failed),
		)
	}
}
