package calendar

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/abhisek/lessonsync/internal/calendar"

// TracingProvider is a decorator that opens one span per provider call.
type TracingProvider struct {
	inner  Provider
	tracer trace.Tracer
}

// WithTracing wraps a Provider with OpenTelemetry spans. A nil tracer uses
// the global tracer provider.
func WithTracing(p Provider, tracer trace.Tracer) Provider {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &TracingProvider{inner: p, tracer: tracer}
}

func (t *TracingProvider) Name() string { return t.inner.Name() }

func (t *TracingProvider) Create(ctx context.Context, token string, ev EventDescriptor) (*RemoteEvent, error) {
	ctx, span := t.start(ctx, "create", attribute.String("calendar.key", ev.Key))
	out, err := t.inner.Create(ctx, token, ev)
	if out != nil {
		span.SetAttributes(attribute.String("calendar.remote_id", out.ID))
	}
	end(span, err)
	return out, err
}

func (t *TracingProvider) Get(ctx context.Context, token, id string) (*RemoteEvent, error) {
	ctx, span := t.start(ctx, "get", attribute.String("calendar.remote_id", id))
	out, err := t.inner.Get(ctx, token, id)
	end(span, err)
	return out, err
}

func (t *TracingProvider) Update(ctx context.Context, token, id string, p Patch) (*RemoteEvent, error) {
	ctx, span := t.start(ctx, "update", attribute.String("calendar.remote_id", id))
	out, err := t.inner.Update(ctx, token, id, p)
	end(span, err)
	return out, err
}

func (t *TracingProvider) Delete(ctx context.Context, token, id string) error {
	ctx, span := t.start(ctx, "delete", attribute.String("calendar.remote_id", id))
	err := t.inner.Delete(ctx, token, id)
	end(span, err)
	return err
}

func (t *TracingProvider) List(ctx context.Context, token string, r TimeRange) ([]RemoteEvent, error) {
	ctx, span := t.start(ctx, "list",
		attribute.String("calendar.from", r.From.Format("2006-01-02T15:04:05Z07:00")),
		attribute.String("calendar.to", r.To.Format("2006-01-02T15:04:05Z07:00")),
	)
	out, err := t.inner.List(ctx, token, r)
	span.SetAttributes(attribute.Int("calendar.events", len(out)))
	end(span, err)
	return out, err
}

func (t *TracingProvider) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("calendar.provider", t.inner.Name()),
		attribute.String("calendar.op", op),
	)
	if id := LessonFrom(ctx); id != "" {
		attrs = append(attrs, attribute.String("lesson.id", id))
	}
	return t.tracer.Start(ctx, "calendar."+op, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("calendar.error_kind", Classify(err).String()))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
