package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/defects/internal/tracker"
)

const storeScopeName = "github.com/steveyegge/defects/tracker"

// InstrumentedBackend wraps a tracker.Backend with OTel tracing and metrics.
// Every call gets a span and is counted in defects.tracker.* metrics.
// Use WrapStore to create one; it returns the original backend unchanged
// when telemetry is disabled.
type InstrumentedBackend struct {
	inner  tracker.Backend
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns b decorated with OTel instrumentation.
// When telemetry is disabled, b is returned as-is.
func WrapStore(b tracker.Backend) tracker.Backend {
	if !Enabled() {
		return b
	}
	return newInstrumented(b, Tracer(storeScopeName), Meter(storeScopeName))
}

func newInstrumented(b tracker.Backend, tracer trace.Tracer, m metric.Meter) *InstrumentedBackend {
	ops, _ := m.Int64Counter("defects.tracker.operations",
		metric.WithDescription("Total tracker operations executed"),
	)
	dur, _ := m.Float64Histogram("defects.tracker.operation.duration",
		metric.WithDescription("Tracker operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("defects.tracker.errors",
		metric.WithDescription("Total tracker operation errors"),
	)
	return &InstrumentedBackend{
		inner:  b,
		tracer: tracer,
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and counts the named operation.
func (s *InstrumentedBackend) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, []attribute.KeyValue, time.Time) {
	all := append([]attribute.KeyValue{
		attribute.String("tracker.operation", name),
		attribute.String("tracker.backend", s.inner.Name()),
	}, attrs...)
	ctx, span := s.tracer.Start(ctx, "tracker."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all[:2]...))
	return ctx, span, all[:2], time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedBackend) done(ctx context.Context, span trace.Span, attrs []attribute.KeyValue, start time.Time, err error) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedBackend) Name() string { return s.inner.Name() }
func (s *InstrumentedBackend) Close() error { return s.inner.Close() }

func (s *InstrumentedBackend) GetIssue(ctx context.Context, key string) (*tracker.Issue, error) {
	ctx, span, attrs, t := s.op(ctx, "GetIssue", attribute.String("tracker.issue.key", key))
	v, err := s.inner.GetIssue(ctx, key)
	s.done(ctx, span, attrs, t, err)
	return v, err
}

func (s *InstrumentedBackend) GetLinkedIssues(ctx context.Context, key, linkType string) ([]string, error) {
	ctx, span, attrs, t := s.op(ctx, "GetLinkedIssues",
		attribute.String("tracker.issue.key", key),
		attribute.String("tracker.link.type", linkType),
	)
	v, err := s.inner.GetLinkedIssues(ctx, key, linkType)
	if err == nil {
		span.SetAttributes(attribute.Int("tracker.link.count", len(v)))
	}
	s.done(ctx, span, attrs, t, err)
	return v, err
}

func (s *InstrumentedBackend) CreateIssue(ctx context.Context, fields tracker.IssueFields) (string, error) {
	ctx, span, attrs, t := s.op(ctx, "CreateIssue",
		attribute.String("tracker.project", fields.Project),
		attribute.String("tracker.issue.type", fields.IssueType),
	)
	key, err := s.inner.CreateIssue(ctx, fields)
	if key != "" {
		span.SetAttributes(attribute.String("tracker.issue.key", key))
	}
	s.done(ctx, span, attrs, t, err)
	return key, err
}

func (s *InstrumentedBackend) UpdateIssue(ctx context.Context, key string, fields tracker.IssueFields) error {
	ctx, span, attrs, t := s.op(ctx, "UpdateIssue", attribute.String("tracker.issue.key", key))
	err := s.inner.UpdateIssue(ctx, key, fields)
	s.done(ctx, span, attrs, t, err)
	return err
}

func (s *InstrumentedBackend) TransitionIssue(ctx context.Context, key, targetStatus, resolution, comment string) error {
	ctx, span, attrs, t := s.op(ctx, "TransitionIssue",
		attribute.String("tracker.issue.key", key),
		attribute.String("tracker.status", targetStatus),
		attribute.String("tracker.resolution", resolution),
	)
	err := s.inner.TransitionIssue(ctx, key, targetStatus, resolution, comment)
	s.done(ctx, span, attrs, t, err)
	return err
}

func (s *InstrumentedBackend) Upload(ctx context.Context, issueKey, filePath string) error {
	ctx, span, attrs, t := s.op(ctx, "Upload", attribute.String("tracker.issue.key", issueKey))
	err := s.inner.Upload(ctx, issueKey, filePath)
	s.done(ctx, span, attrs, t, err)
	return err
}

func (s *InstrumentedBackend) DeleteAll(ctx context.Context, issueKey string) error {
	ctx, span, attrs, t := s.op(ctx, "DeleteAll", attribute.String("tracker.issue.key", issueKey))
	err := s.inner.DeleteAll(ctx, issueKey)
	s.done(ctx, span, attrs, t, err)
	return err
}
