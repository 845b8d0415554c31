// Package summarize turns a batch of chat messages into a short digest
// via an LLM. Failures never surface as errors: every call resolves to
// either a summary or a fixed sentinel string the bot can post as-is.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	otelPkg "github.com/basket/talbot/internal/otel"
)

// Sentinel results. These exact strings are delivered to chats, so they
// stay stable across releases.
const (
	EmptyResult     = "No messages found in the selected timeframe."
	FailedResult    = "[Summarisation failed]"
	RateLimitResult = "[Rate limit exceeded, summarisation unavailable]"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 5 * time.Second
)

// GenerateFunc produces a completion for the given prompt.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Engine is a stateless summarizer. Safe for concurrent use.
type Engine struct {
	generate      GenerateFunc
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *otelPkg.Metrics
	provider      string
	model         string
	maxInputChars int
	maxAttempts   int
	backoffBase   time.Duration

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithMetrics(m *otelPkg.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithMaxInputChars(n int) Option {
	return func(e *Engine) { e.maxInputChars = n }
}

func WithBackoffBase(d time.Duration) Option {
	return func(e *Engine) { e.backoffBase = d }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New builds an Engine around the given generate function.
func New(generate GenerateFunc, opts ...Option) *Engine {
	e := &Engine{
		generate:      generate,
		logger:        slog.Default(),
		tracer:        nooptrace.NewTracerProvider().Tracer(otelPkg.TracerName),
		maxInputChars: 100000,
		maxAttempts:   defaultMaxAttempts,
		backoffBase:   defaultBackoffBase,
		sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summarize condenses the given messages into a digest string. Empty or
// whitespace-only input short-circuits to EmptyResult without touching
// the provider. Transient provider failures are retried with growing
// backoff; the result is always one of: a summary, EmptyResult,
// FailedResult or RateLimitResult.
func (e *Engine) Summarize(ctx context.Context, texts []string) string {
	joined := joinNonEmpty(texts)
	if joined == "" {
		return EmptyResult
	}
	joined = truncateAtRune(joined, e.maxInputChars)

	prompt := fmt.Sprintf("Summarise the following conversation:\n%s\n\nProvide a brief and clear summary.", joined)

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		spanCtx, span := otelPkg.StartClientSpan(ctx, e.tracer, "llm.summarize",
			otelPkg.AttrProvider.String(e.provider),
			otelPkg.AttrModel.String(e.model),
			otelPkg.AttrMessagesCount.Int(len(texts)),
		)
		start := time.Now()
		out, err := e.generate(spanCtx, prompt)
		span.End()
		if e.metrics != nil {
			e.metrics.SummarizeDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err == nil {
			return strings.TrimSpace(out)
		}

		if !isRetryable(err) {
			e.logger.Error("summarization failed", "error", err, "attempt", attempt)
			return FailedResult
		}

		if e.metrics != nil {
			e.metrics.SummarizeRetries.Add(ctx, 1)
		}
		e.logger.Warn("summarization rate limited, backing off",
			"attempt", attempt, "max_attempts", e.maxAttempts, "error", err)
		if attempt < e.maxAttempts {
			if sleepErr := e.sleep(ctx, e.backoffBase*time.Duration(attempt)); sleepErr != nil {
				return RateLimitResult
			}
		}
	}

	e.logger.Error("summarization retries exhausted", "attempts", e.maxAttempts)
	return RateLimitResult
}

// truncateAtRune caps s at max bytes, backing off to the previous rune
// boundary so the cut never produces invalid UTF-8.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func joinNonEmpty(texts []string) string {
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// isRetryable reports whether the provider error looks transient:
// rate limiting, overload or a timeout.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429",
		"rate limit",
		"rate_limit",
		"too many requests",
		"overloaded",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
