package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/polycle/member/internal/sheet"
)

const sheetScopeName = "github.com/polycle/member/sheet"

// InstrumentedGrid wraps a sheet.Grid with a span per call and counts every
// call in the member.sheet.* metrics. Use WrapGrid to create one.
type InstrumentedGrid struct {
	inner  sheet.Grid
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ sheet.Grid = (*InstrumentedGrid)(nil)

// WrapGrid returns g decorated with OTel instrumentation.
// When telemetry is disabled, g is returned as-is.
func WrapGrid(g sheet.Grid) sheet.Grid {
	if !Enabled() {
		return g
	}
	return newInstrumentedGrid(g, Tracer(sheetScopeName), Meter(sheetScopeName))
}

func newInstrumentedGrid(g sheet.Grid, tracer trace.Tracer, m metric.Meter) *InstrumentedGrid {
	ops, _ := m.Int64Counter("member.sheet.operations",
		metric.WithDescription("Total spreadsheet calls"),
	)
	dur, _ := m.Float64Histogram("member.sheet.operation.duration",
		metric.WithDescription("Spreadsheet call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("member.sheet.errors",
		metric.WithDescription("Total failed spreadsheet calls"),
	)
	return &InstrumentedGrid{inner: g, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

func (g *InstrumentedGrid) op(ctx context.Context, name, tab string) (context.Context, trace.Span, []attribute.KeyValue, time.Time) {
	attrs := []attribute.KeyValue{attribute.String("sheet.operation", name)}
	if tab != "" {
		attrs = append(attrs, attribute.String("sheet.tab", tab))
	}
	ctx, span := g.tracer.Start(ctx, "sheet."+name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	g.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, span, attrs, time.Now()
}

func (g *InstrumentedGrid) done(ctx context.Context, span trace.Span, attrs []attribute.KeyValue, start time.Time, err error) {
	g.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (g *InstrumentedGrid) Tabs(ctx context.Context) ([]string, error) {
	ctx, span, attrs, t := g.op(ctx, sheet.OpTabs, "")
	v, err := g.inner.Tabs(ctx)
	g.done(ctx, span, attrs, t, err)
	return v, err
}

func (g *InstrumentedGrid) CreateTab(ctx context.Context, tab string, header []string) error {
	ctx, span, attrs, t := g.op(ctx, sheet.OpCreateTab, tab)
	err := g.inner.CreateTab(ctx, tab, header)
	g.done(ctx, span, attrs, t, err)
	return err
}

func (g *InstrumentedGrid) Rows(ctx context.Context, tab string) ([][]string, error) {
	ctx, span, attrs, t := g.op(ctx, sheet.OpRows, tab)
	v, err := g.inner.Rows(ctx, tab)
	span.SetAttributes(attribute.Int("sheet.rows", len(v)))
	g.done(ctx, span, attrs, t, err)
	return v, err
}

func (g *InstrumentedGrid) AppendRow(ctx context.Context, tab string, row []string) error {
	ctx, span, attrs, t := g.op(ctx, sheet.OpAppend, tab)
	err := g.inner.AppendRow(ctx, tab, row)
	g.done(ctx, span, attrs, t, err)
	return err
}

func (g *InstrumentedGrid) UpdateRow(ctx context.Context, tab string, rowNum int, row []string) error {
	ctx, span, attrs, t := g.op(ctx, sheet.OpUpdate, tab)
	span.SetAttributes(attribute.Int("sheet.row", rowNum))
	err := g.inner.UpdateRow(ctx, tab, rowNum, row)
	g.done(ctx, span, attrs, t, err)
	return err
}

func (g *InstrumentedGrid) DeleteRow(ctx context.Context, tab string, rowNum int) error {
	ctx, span, attrs, t := g.op(ctx, sheet.OpDelete, tab)
	span.SetAttributes(attribute.Int("sheet.row", rowNum))
	err := g.inner.DeleteRow(ctx, tab, rowNum)
	g.done(ctx, span, attrs, t, err)
	return err
}
