package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/polycle/member/internal/sheet"
)

func TestWrapGrid_DisabledReturnsInner(t *testing.T) {
	t.Setenv("MEMBER_OTEL_ENABLED", "")
	mem := sheet.NewMemory()
	assert.Same(t, mem, WrapGrid(mem))
}

func TestWrapGrid_EnabledInstruments(t *testing.T) {
	t.Setenv("MEMBER_OTEL_ENABLED", "true")
	_, ok := WrapGrid(sheet.NewMemory()).(*InstrumentedGrid)
	assert.True(t, ok)
}

func TestInstrumentedGrid_SpansAndMetrics(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mem := sheet.NewMemory()
	g := newInstrumentedGrid(mem, tp.Tracer("test"), mp.Meter("test"))

	require.NoError(t, g.CreateTab(ctx, "T", []string{"id"}))
	require.NoError(t, g.AppendRow(ctx, "T", []string{"1"}))
	_, err := g.Rows(ctx, "Missing")
	require.ErrorIs(t, err, sheet.ErrTabNotFound)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "sheet.create_tab", spans[0].Name())
	assert.Equal(t, "sheet.append", spans[1].Name())
	assert.Equal(t, "sheet.rows", spans[2].Name())
	assert.Equal(t, codes.Error, spans[2].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), sums["member.sheet.operations"])
	assert.Equal(t, int64(1), sums["member.sheet.errors"])
}

func TestInit_DisabledIsNoop(t *testing.T) {
	t.Setenv("MEMBER_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "member", "test"))
	assert.Empty(t, shutdownFns)
	Shutdown(context.Background())
}
