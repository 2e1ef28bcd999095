package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fleetwatch"

// Metrics holds all fleetwatch metric instruments.
type Metrics struct {
	HooksPublished     metric.Int64Counter
	HooksDropped       metric.Int64Counter
	SubscriberFailures metric.Int64Counter
	ThresholdAlerts    metric.Int64Counter
	StateTransitions   metric.Int64Counter
	DispatchDuration   metric.Float64Histogram
	RelayFailures      metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.HooksPublished, err = meter.Int64Counter("fleetwatch.hooks.published",
		metric.WithDescription("Number of hooks published on the bus"))
	if err != nil {
		return nil, err
	}

	m.HooksDropped, err = meter.Int64Counter("fleetwatch.hooks.dropped",
		metric.WithDescription("Number of hooks dropped by the cascade depth guard"))
	if err != nil {
		return nil, err
	}

	m.SubscriberFailures, err = meter.Int64Counter("fleetwatch.subscriber.failures",
		metric.WithDescription("Number of subscriber callbacks that returned an error or panicked"))
	if err != nil {
		return nil, err
	}

	m.ThresholdAlerts, err = meter.Int64Counter("fleetwatch.threshold.alerts",
		metric.WithDescription("Number of threshold alerts raised"))
	if err != nil {
		return nil, err
	}

	m.StateTransitions, err = meter.Int64Counter("fleetwatch.agent.transitions",
		metric.WithDescription("Number of agent status transitions"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("fleetwatch.hooks.dispatch_seconds",
		metric.WithDescription("Time to dispatch one hook to its synchronous subscribers"))
	if err != nil {
		return nil, err
	}

	m.RelayFailures, err = meter.Int64Counter("fleetwatch.relay.failures",
		metric.WithDescription("Number of hooks the relay failed to forward"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
