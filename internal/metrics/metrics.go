// Package metrics holds the OpenTelemetry instruments recorded by the call
// service and the broadcast router.
package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const namespace = "callboard"

// Attribute keys
const (
	AttrStatus  = attribute.Key("status")
	AttrResult  = attribute.Key("result")
	AttrType    = attribute.Key("envelope_type")
	AttrChannel = attribute.Key("channel")
)

// Metrics groups the counters for one process.
type Metrics struct {
	CallsCreated        metric.Int64Counter
	CallTransitions     metric.Int64Counter
	BroadcastDeliveries metric.Int64Counter
	BroadcastFailures   metric.Int64Counter
}

// Name builds a metric name as callboard.<entity>.<metric>.
func Name(entity, metricType string) string {
	return strings.Join([]string{namespace, entity, metricType}, ".")
}

// New creates the instruments on the given meter provider. A nil provider
// uses the global one, which is a no-op until an SDK is installed.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(namespace)

	var (
		m   Metrics
		err error
	)
	if m.CallsCreated, err = meter.Int64Counter(Name("calls", "created"),
		metric.WithDescription("Pickup calls created")); err != nil {
		return nil, err
	}
	if m.CallTransitions, err = meter.Int64Counter(Name("calls", "transitions"),
		metric.WithDescription("Call status transition attempts labeled by target status and result")); err != nil {
		return nil, err
	}
	if m.BroadcastDeliveries, err = meter.Int64Counter(Name("broadcast", "deliveries"),
		metric.WithDescription("Envelopes queued to classroom sockets")); err != nil {
		return nil, err
	}
	if m.BroadcastFailures, err = meter.Int64Counter(Name("broadcast", "failures"),
		metric.WithDescription("Sends that failed and pruned a classroom socket")); err != nil {
		return nil, err
	}
	return &m, nil
}

// Noop returns instruments that record nothing. Used by tests and by
// components constructed without metrics.
func Noop() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

// RecordTransition counts one transition attempt.
func (m *Metrics) RecordTransition(ctx context.Context, status, result string) {
	m.CallTransitions.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(status), AttrResult.String(result)))
}

// RecordBroadcast counts the outcome of one publish to a classroom channel.
// Zero counts are not recorded.
func (m *Metrics) RecordBroadcast(ctx context.Context, channel, envelopeType string, delivered, failed int) {
	attrs := metric.WithAttributes(AttrChannel.String(channel), AttrType.String(envelopeType))
	if delivered > 0 {
		m.BroadcastDeliveries.Add(ctx, int64(delivered), attrs)
	}
	if failed > 0 {
		m.BroadcastFailures.Add(ctx, int64(failed), attrs)
	}
}
