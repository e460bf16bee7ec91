package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "mymessenger/identity/service"

var tracer = otel.Tracer(instrumentationName)

type instruments struct {
	logins    metric.Int64Counter
	refreshes metric.Int64Counter
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	logins, err := meter.Int64Counter("identity.login.attempts",
		metric.WithDescription("Login attempts by outcome"))
	if err != nil {
		logins = noop.Int64Counter{}
	}
	refreshes, err := meter.Int64Counter("identity.refresh.attempts",
		metric.WithDescription("Refresh-token rotations by outcome"))
	if err != nil {
		refreshes = noop.Int64Counter{}
	}
	return instruments{logins: logins, refreshes: refreshes}
}

func outcome(err error) metric.MeasurementOption {
	if err == nil {
		return metric.WithAttributes(attribute.String("outcome", "success"))
	}
	code, ok := CodeOf(err)
	if !ok {
		code = "internal"
	}
	return metric.WithAttributes(attribute.String("outcome", string(code)))
}
