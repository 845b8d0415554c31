package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for talbot spans.
var (
	AttrChatID        = attribute.Key("talbot.chat.id")
	AttrUserID        = attribute.Key("talbot.user.id")
	AttrModel         = attribute.Key("talbot.llm.model")
	AttrProvider      = attribute.Key("talbot.llm.provider")
	AttrDigestRunID   = attribute.Key("talbot.digest.run_id")
	AttrDigestWindow  = attribute.Key("talbot.digest.window")
	AttrCommand       = attribute.Key("talbot.command")
	AttrMessagesCount = attribute.Key("talbot.messages.count")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (LLM API, command HTTP APIs).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
