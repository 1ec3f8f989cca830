package engine

import (
	"context"

	"github.com/go-kratos/kratos/v2/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/yola1107/parlor/internal/biz/engine"

var tracer trace.Tracer = otel.Tracer(instrumentation)

// Metrics 引擎计数器
type Metrics struct {
	started  metric.Int64Counter
	actions  metric.Int64Counter
	rejected metric.Int64Counter
	settled  metric.Int64Counter
	aborted  metric.Int64Counter
	credited metric.Int64Counter
	live     metric.Int64UpDownCounter
}

// NewMetrics mp 为空时使用全局 MeterProvider
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentation)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.started, "parlor.sessions.started", "sessions that entered Active"},
		{&m.actions, "parlor.actions.accepted", "accepted player actions"},
		{&m.rejected, "parlor.actions.rejected", "rejected requests by reason"},
		{&m.settled, "parlor.sessions.settled", "settled sessions"},
		{&m.aborted, "parlor.sessions.aborted", "sessions refunded without a result"},
		{&m.credited, "parlor.credits", "currency credited by settlement"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}
	if m.live, err = meter.Int64UpDownCounter("parlor.sessions.live", metric.WithDescription("sessions held in the store")); err != nil {
		return nil, err
	}
	return &m, nil
}

func kindAttr(kind string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}

func (m *Metrics) sessionAdded(ctx context.Context, kind string) {
	m.live.Add(ctx, 1, kindAttr(kind))
}

func (m *Metrics) sessionRemoved(ctx context.Context, kind string) {
	m.live.Add(ctx, -1, kindAttr(kind))
}

func (m *Metrics) sessionStarted(ctx context.Context, kind string) {
	m.started.Add(ctx, 1, kindAttr(kind))
}

func (m *Metrics) actionAccepted(ctx context.Context, kind string) {
	m.actions.Add(ctx, 1, kindAttr(kind))
}

func (m *Metrics) requestRejected(ctx context.Context, kind string, err error) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", errors.Reason(err)),
	))
}

func (m *Metrics) sessionSettled(ctx context.Context, kind string, credited int64) {
	m.settled.Add(ctx, 1, kindAttr(kind))
	m.credited.Add(ctx, credited, kindAttr(kind))
}

func (m *Metrics) sessionAborted(ctx context.Context, kind, reason string) {
	m.aborted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}
