package confidential

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"privylocker/pkg/domain"
)

const tracerName = "privylocker/internal/confidential"

// Traced wraps a Service with one client span per call.
type Traced struct {
	next   Service
	tracer trace.Tracer
}

// TracedOption configures a Traced service.
type TracedOption func(*Traced)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracedOption {
	return func(t *Traced) {
		t.tracer = tp.Tracer(tracerName)
	}
}

// NewTraced wraps next.
func NewTraced(next Service, opts ...TracedOption) *Traced {
	t := &Traced{next: next, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Traced) CreateHandle(ctx context.Context, ciphertext []byte, signer domain.Principal) (Handle, error) {
	ctx, span := t.start(ctx, "confidential.CreateHandle", attribute.Int("cvs.ciphertext_bytes", len(ciphertext)))
	defer span.End()

	h, err := t.next.CreateHandle(ctx, ciphertext, signer)
	record(span, err)
	return h, err
}

func (t *Traced) Combine(ctx context.Context, a, b Handle, signer domain.Principal) (Handle, error) {
	ctx, span := t.start(ctx, "confidential.Combine")
	defer span.End()

	h, err := t.next.Combine(ctx, a, b, signer)
	record(span, err)
	return h, err
}

func (t *Traced) GrantAccess(ctx context.Context, h Handle, principal, signer domain.Principal) error {
	ctx, span := t.start(ctx, "confidential.GrantAccess")
	defer span.End()

	err := t.next.GrantAccess(ctx, h, principal, signer)
	record(span, err)
	return err
}

func (t *Traced) RevokeAccess(ctx context.Context, h Handle, principal, signer domain.Principal) error {
	ctx, span := t.start(ctx, "confidential.RevokeAccess")
	defer span.End()

	err := t.next.RevokeAccess(ctx, h, principal, signer)
	record(span, err)
	return err
}

func (t *Traced) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func record(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
