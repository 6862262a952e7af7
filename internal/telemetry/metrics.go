// Package telemetry holds the OpenTelemetry instruments used by lobbywatch.
package telemetry

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/lobbywatch"

// Metrics groups the counters recorded by the transport and orchestrator.
// Instruments come from the global MeterProvider, which is a no-op until
// the host process installs one.
type Metrics struct {
	framesReceived metric.Int64Counter
	framesDropped  metric.Int64Counter
	reconnects     metric.Int64Counter
	communications metric.Int64Counter
}

var (
	once     sync.Once
	instance *Metrics
)

// Get returns the process-wide metrics, creating the instruments on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics(otel.Meter(meterName))
	})
	return instance
}

func newMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	var err error

	if m.framesReceived, err = meter.Int64Counter("lobbywatch.frames.received",
		metric.WithDescription("Inbound WebSocket frames")); err != nil {
		log.Warn().Err(err).Msg("Failed to create frames.received counter")
	}
	if m.framesDropped, err = meter.Int64Counter("lobbywatch.frames.dropped",
		metric.WithDescription("Inbound frames rejected by envelope validation")); err != nil {
		log.Warn().Err(err).Msg("Failed to create frames.dropped counter")
	}
	if m.reconnects, err = meter.Int64Counter("lobbywatch.reconnects",
		metric.WithDescription("Scheduled reconnect attempts")); err != nil {
		log.Warn().Err(err).Msg("Failed to create reconnects counter")
	}
	if m.communications, err = meter.Int64Counter("lobbywatch.communications",
		metric.WithDescription("Communications emitted by type")); err != nil {
		log.Warn().Err(err).Msg("Failed to create communications counter")
	}
	return m
}

// FrameReceived records one inbound frame.
func (m *Metrics) FrameReceived() {
	if m != nil && m.framesReceived != nil {
		m.framesReceived.Add(context.Background(), 1)
	}
}

// FrameDropped records one rejected frame with the rejection reason.
func (m *Metrics) FrameDropped(reason string) {
	if m != nil && m.framesDropped != nil {
		m.framesDropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Reconnect records one scheduled reconnect attempt.
func (m *Metrics) Reconnect(attempt int) {
	if m != nil && m.reconnects != nil {
		m.reconnects.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Int("attempt", attempt)))
	}
}

// Communication records one emitted communication.
func (m *Metrics) Communication(kind string) {
	if m != nil && m.communications != nil {
		m.communications.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("type", kind)))
	}
}
