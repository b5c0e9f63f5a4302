package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider registers the Prometheus exporter as the global
// MeterProvider and starts Go runtime metrics. It returns the /metrics
// handler and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// OrderMetrics are the business counters recorded by the order lifecycle.
// A nil *OrderMetrics records nothing.
type OrderMetrics struct {
	created       otelmetric.Int64Counter
	transitions   otelmetric.Int64Counter
	cancellations otelmetric.Int64Counter
	quotes        otelmetric.Int64Counter
}

func NewOrderMetrics(meter otelmetric.Meter) (*OrderMetrics, error) {
	created, err := meter.Int64Counter("orders.created",
		otelmetric.WithDescription("Orders placed"),
		otelmetric.WithUnit("{order}"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("orders.transitions",
		otelmetric.WithDescription("Order status changes"),
		otelmetric.WithUnit("{transition}"))
	if err != nil {
		return nil, err
	}
	cancellations, err := meter.Int64Counter("orders.cancellations",
		otelmetric.WithDescription("Cancelled orders by initiator"),
		otelmetric.WithUnit("{order}"))
	if err != nil {
		return nil, err
	}
	quotes, err := meter.Int64Counter("orders.quote.requests",
		otelmetric.WithDescription("Pricing quotes computed"),
		otelmetric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &OrderMetrics{created: created, transitions: transitions, cancellations: cancellations, quotes: quotes}, nil
}

func (m *OrderMetrics) OrderCreated(ctx context.Context, menuID int64) {
	if m == nil {
		return
	}
	m.created.Add(ctx, 1, otelmetric.WithAttributes(attribute.Int64("menu.id", menuID)))
}

func (m *OrderMetrics) Transition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("order.status.from", from),
		attribute.String("order.status.to", to),
	))
}

func (m *OrderMetrics) Cancelled(ctx context.Context, initiator string) {
	if m == nil {
		return
	}
	m.cancellations.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("initiator", initiator)))
}

func (m *OrderMetrics) Quoted(ctx context.Context) {
	if m == nil {
		return
	}
	m.quotes.Add(ctx, 1)
}
