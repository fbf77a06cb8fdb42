package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "novalink"

// Metrics holds all NovaLink metric instruments.
type Metrics struct {
	ConnectionsActive metric.Int64UpDownCounter
	BroadcastsSent    metric.Int64Counter
	CommandsHandled   metric.Int64Counter
	VoiceEvents       metric.Int64Counter
	CommandDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ConnectionsActive, err = meter.Int64UpDownCounter("novalink.ws.connections",
		metric.WithDescription("Number of live WebSocket connections"))
	if err != nil {
		return nil, err
	}

	m.BroadcastsSent, err = meter.Int64Counter("novalink.broadcasts",
		metric.WithDescription("Number of snapshot broadcasts"))
	if err != nil {
		return nil, err
	}

	m.CommandsHandled, err = meter.Int64Counter("novalink.commands",
		metric.WithDescription("Number of commands processed"))
	if err != nil {
		return nil, err
	}

	m.VoiceEvents, err = meter.Int64Counter("novalink.voice_events",
		metric.WithDescription("Number of voice events emitted"))
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram("novalink.command.duration_seconds",
		metric.WithDescription("Command handling duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
