package server

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yola1107/parlor/internal/conf"
)

// Telemetry 进程内的 otel 提供者，计数器通过 /metrics 拉取
type Telemetry struct {
	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
	tp     *sdktrace.TracerProvider
}

// NewTelemetry 注册为全局提供者
func NewTelemetry() (*Telemetry, func()) {
	res := resource.NewSchemaless(
		attribute.String("service.name", conf.Name),
		attribute.String("service.version", conf.Version),
	)
	reader := sdkmetric.NewManualReader()
	t := &Telemetry{
		reader: reader,
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
		tp:     sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
	}
	otel.SetMeterProvider(t.mp)
	otel.SetTracerProvider(t.tp)
	return t, func() {
		ctx := context.Background()
		if err := errors.Join(t.mp.Shutdown(ctx), t.tp.Shutdown(ctx)); err != nil {
			log.Warnf("telemetry shutdown. err=%v", err)
		}
	}
}

func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.mp
}

// Snapshot 整型计数器当前值，键为 name{k=v,...}
func (t *Telemetry) Snapshot(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[seriesKey(m.Name, dp.Attributes)] += dp.Value
			}
		}
	}
	return out, nil
}

func seriesKey(name string, set attribute.Set) string {
	if set.Len() == 0 {
		return name
	}
	kvs := make([]string, 0, set.Len())
	for _, kv := range set.ToSlice() {
		kvs = append(kvs, string(kv.Key)+"="+kv.Value.Emit())
	}
	sort.Strings(kvs)
	return name + "{" + strings.Join(kvs, ",") + "}"
}
