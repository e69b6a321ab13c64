package router

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"callboard/internal/metrics"
	"callboard/internal/websocket"
	"callboard/pkg/interfaces"
	"callboard/pkg/types"
)

// Report summarizes one publish.
type Report struct {
	Channel   string
	Delivered int
	Failed    int
}

// rawWriter is implemented by sockets that accept pre-encoded frames.
type rawWriter interface {
	WriteRaw(data []byte) error
}

// Router fans envelopes out to the sockets of a channel.
// ARCHITECTURAL DISCOVERY: Pure delivery without persistence or policy; the call
// service has already committed the state change before anything reaches here
type Router struct {
	registry *websocket.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRouter creates a new broadcast router
func NewRouter(registry *websocket.Registry, m *metrics.Metrics, logger *zap.Logger) *Router {
	if m == nil {
		m = metrics.Noop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		metrics:  m,
		logger:   logger.Named("router"),
	}
}

// Publish sends the envelope to every socket currently in channel. The
// envelope is encoded once. A socket whose send fails is disconnected and
// closed, and delivery continues with the rest. Publishing to a channel with
// no sockets succeeds with zero deliveries.
func (r *Router) Publish(ctx context.Context, channel string, envelope *types.Envelope) (Report, error) {
	report := Report{Channel: channel}
	if channel == "" {
		return report, interfaces.ErrChannelRequired
	}
	if envelope == nil {
		return report, ErrNilEnvelope
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return report, fmt.Errorf("failed to encode envelope: %w", err)
	}

	// TECHNICAL DISCOVERY: iterate a snapshot so slow sends never hold the registry lock
	for _, conn := range r.registry.Snapshot(channel) {
		if err := send(conn, data); err != nil {
			report.Failed++
			r.prune(channel, conn, err)
			continue
		}
		report.Delivered++
	}

	r.metrics.RecordBroadcast(ctx, channel, envelope.Type, report.Delivered, report.Failed)

	r.logger.Debug("published envelope",
		zap.String("channel", channel),
		zap.String("type", envelope.Type),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func send(conn interfaces.Connection, data []byte) error {
	if w, ok := conn.(rawWriter); ok {
		return w.WriteRaw(data)
	}
	return conn.WriteJSON(json.RawMessage(data))
}

// prune drops a socket that could not take a frame.
func (r *Router) prune(channel string, conn interfaces.Connection, cause error) {
	removed := r.registry.Disconnect(channel, conn)
	_ = conn.Close()
	if removed {
		r.logger.Warn("pruned classroom socket after failed send",
			zap.String("channel", channel),
			zap.String("conn_id", conn.ID()),
			zap.Error(cause),
		)
	}
}
