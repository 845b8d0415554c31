package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSummarize_EmptyInputSkipsProvider(t *testing.T) {
	calls := 0
	e := New(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "should not be called", nil
	})

	cases := [][]string{
		nil,
		{},
		{""},
		{"   ", "\n\t"},
	}
	for _, texts := range cases {
		if got := e.Summarize(context.Background(), texts); got != EmptyResult {
			t.Errorf("Summarize(%q) = %q, want empty sentinel", texts, got)
		}
	}
	if calls != 0 {
		t.Fatalf("provider called %d times for empty input, want 0", calls)
	}
}

func TestSummarize_Success(t *testing.T) {
	var gotPrompt string
	e := New(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "  a tidy summary \n", nil
	})

	got := e.Summarize(context.Background(), []string{"alice: hi", "bob: hello"})
	if got != "a tidy summary" {
		t.Errorf("Summarize = %q, want trimmed provider output", got)
	}
	if want := "alice: hi\nbob: hello"; !strings.Contains(gotPrompt, want) {
		t.Errorf("prompt %q does not contain joined messages %q", gotPrompt, want)
	}
}

func TestSummarize_RateLimitedThenSuccess(t *testing.T) {
	calls := 0
	var delays []time.Duration
	e := New(
		func(ctx context.Context, prompt string) (string, error) {
			calls++
			if calls <= 2 {
				return "", errors.New("request failed: 429 Too Many Requests")
			}
			return "third time lucky", nil
		},
		WithBackoffBase(5*time.Second),
		withSleep(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	got := e.Summarize(context.Background(), []string{"msg"})
	if got != "third time lucky" {
		t.Fatalf("Summarize = %q, want success on third attempt", got)
	}
	if calls != 3 {
		t.Fatalf("provider called %d times, want 3", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	if delays[1] <= delays[0] {
		t.Errorf("backoff not increasing: %v then %v", delays[0], delays[1])
	}
}

func TestSummarize_RateLimitExhausted(t *testing.T) {
	calls := 0
	e := New(
		func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "", errors.New("rate limit exceeded")
		},
		withSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)

	if got := e.Summarize(context.Background(), []string{"msg"}); got != RateLimitResult {
		t.Fatalf("Summarize = %q, want rate-limit sentinel", got)
	}
	if calls != 3 {
		t.Fatalf("provider called %d times, want 3", calls)
	}
}

func TestSummarize_TerminalFailureShortCircuits(t *testing.T) {
	calls := 0
	e := New(
		func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "", errors.New("invalid api key")
		},
		withSleep(func(ctx context.Context, d time.Duration) error {
			t.Fatal("should not back off on terminal failure")
			return nil
		}),
	)

	if got := e.Summarize(context.Background(), []string{"msg"}); got != FailedResult {
		t.Fatalf("Summarize = %q, want failed sentinel", got)
	}
	if calls != 1 {
		t.Fatalf("provider called %d times, want 1 (no retry)", calls)
	}
}

func TestSummarize_TruncatesLongInput(t *testing.T) {
	var gotLen int
	e := New(
		func(ctx context.Context, prompt string) (string, error) {
			gotLen = len(prompt)
			return "ok", nil
		},
		WithMaxInputChars(100),
	)

	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'x'
	}
	e.Summarize(context.Background(), []string{string(long)})

	// Prompt wraps the truncated transcript in a fixed template.
	if gotLen > 200 {
		t.Errorf("prompt length %d, want transcript truncated to 100 chars", gotLen)
	}
}

func TestSummarize_TruncationKeepsValidUTF8(t *testing.T) {
	var gotPrompt string
	e := New(
		func(ctx context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return "ok", nil
		},
		WithMaxInputChars(101), // lands mid-rune: "é" is 2 bytes
	)

	e.Summarize(context.Background(), []string{strings.Repeat("é", 100)})

	if !utf8.ValidString(gotPrompt) {
		t.Fatal("prompt contains invalid UTF-8 after truncation")
	}
}

func TestTruncateAtRune(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},  // cut would split the 2-byte é
		{"héllo", 3, "hé"}, // boundary lands cleanly
		{"日本語", 4, "日"},    // 3-byte runes
		{"", 5, ""},
	}
	for _, tc := range cases {
		got := truncateAtRune(tc.in, tc.max)
		if got != tc.want {
			t.Errorf("truncateAtRune(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateAtRune(%q, %d) produced invalid UTF-8", tc.in, tc.max)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("429 Too Many Requests"), true},
		{errors.New("anthropic: rate_limit_error"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("server overloaded"), true},
		{errors.New("invalid api key"), false},
		{errors.New("model not found"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
