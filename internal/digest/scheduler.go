// Package digest produces conversation summaries on two paths: a
// recurring broadcast posted to every active chat, and ad-hoc window
// requests delivered privately to the requesting user.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	otelPkg "github.com/basket/talbot/internal/otel"
)

// ErrInvalidWindow is returned when a requested window label is not
// one of the configured spans. No store or provider access happens
// for an invalid label.
var ErrInvalidWindow = errors.New("unknown summary window")

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Store is the message-log subset the scheduler reads from.
// Implemented by *persistence.Store.
type Store interface {
	ListConversations(ctx context.Context) ([]int64, error)
	MessagesSince(ctx context.Context, chatID, since int64) ([]string, error)
}

// Summarizer condenses message batches. Implemented by *summarize.Engine.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) string
}

// Deliverer posts digests. Implemented by the Telegram channel.
type Deliverer interface {
	SendToChat(ctx context.Context, chatID int64, text string) error
	SendToUser(ctx context.Context, userID int64, text string) error
}

// Config holds the dependencies for the digest scheduler.
type Config struct {
	Store      Store
	Summarizer Summarizer
	Deliverer  Deliverer
	Logger     *slog.Logger
	Metrics    *otelPkg.Metrics
	Tracer     trace.Tracer

	// CronExpr is the recurring broadcast schedule. Defaults to daily
	// at midnight.
	CronExpr string
	// BroadcastWindow is how far back the recurring digest looks.
	// Defaults to 24 hours.
	BroadcastWindow time.Duration
	// Windows maps ad-hoc labels ("1h", "4h", ...) to spans in seconds.
	Windows map[string]int64
	// SuppressEmpty skips delivery to chats with no recent messages.
	// Off by default: quiet chats still get the empty-input notice.
	SuppressEmpty bool
}

// Scheduler drives both digest paths. Start/Stop own the broadcast
// loop; RequestWindow can be called at any time from the channel.
type Scheduler struct {
	store      Store
	summarizer Summarizer
	deliverer  Deliverer
	logger     *slog.Logger
	metrics    *otelPkg.Metrics
	tracer     trace.Tracer

	schedule        cronlib.Schedule
	broadcastWindow time.Duration
	windows         map[string]int64

	// suppressEmpty is written by the config hot-reload goroutine
	// while the broadcast loop reads it.
	suppressEmpty atomic.Bool

	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the config and creates a Scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = "0 0 * * *"
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse digest cron %q: %w", expr, err)
	}

	window := cfg.BroadcastWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(otelPkg.TracerName)
	}
	windows := cfg.Windows
	if len(windows) == 0 {
		windows = map[string]int64{
			"1h":  3600,
			"4h":  4 * 3600,
			"6h":  6 * 3600,
			"12h": 12 * 3600,
			"24h": 24 * 3600,
		}
	}
	for key, seconds := range windows {
		if seconds <= 0 {
			return nil, fmt.Errorf("window %q must be positive, got %d", key, seconds)
		}
	}

	s := &Scheduler{
		store:           cfg.Store,
		summarizer:      cfg.Summarizer,
		deliverer:       cfg.Deliverer,
		logger:          logger,
		metrics:         cfg.Metrics,
		tracer:          tracer,
		schedule:        schedule,
		broadcastWindow: window,
		windows:         windows,
		now:             time.Now,
	}
	s.suppressEmpty.Store(cfg.SuppressEmpty)
	return s, nil
}

// SetSuppressEmpty updates the empty-digest policy, used by config
// hot-reload.
func (s *Scheduler) SetSuppressEmpty(v bool) {
	s.suppressEmpty.Store(v)
}

// WindowKeys returns the ad-hoc window labels sorted by span, for
// building the selection keyboard.
func (s *Scheduler) WindowKeys() []string {
	keys := make([]string, 0, len(s.windows))
	for k := range s.windows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.windows[keys[i]] < s.windows[keys[j]]
	})
	return keys
}

// Start begins the broadcast loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("digest scheduler started", "next_broadcast", s.schedule.Next(s.now()))
}

// Stop cancels the broadcast loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("digest scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunBroadcast(ctx)
		}
	}
}

// RunBroadcast summarizes the last broadcastWindow of each known
// conversation and posts the digest back to that chat. A failure in
// one conversation never blocks the rest.
func (s *Scheduler) RunBroadcast(ctx context.Context) {
	runID := uuid.NewString()
	ctx, span := otelPkg.StartSpan(ctx, s.tracer, "digest.broadcast",
		otelPkg.AttrDigestRunID.String(runID),
	)
	defer span.End()
	log := s.logger.With("run_id", runID)

	chatIDs, err := s.store.ListConversations(ctx)
	if err != nil {
		log.Error("digest broadcast: list conversations failed", "error", err)
		return
	}
	log.Info("digest broadcast started", "conversations", len(chatIDs))

	since := s.now().Add(-s.broadcastWindow).Unix()
	delivered := 0
	for _, chatID := range chatIDs {
		texts, err := s.store.MessagesSince(ctx, chatID, since)
		if err != nil {
			log.Error("digest broadcast: query failed", "chat_id", chatID, "error", err)
			continue
		}
		if len(texts) == 0 && s.suppressEmpty.Load() {
			continue
		}

		summary := s.summarizer.Summarize(ctx, texts)
		body := fmt.Sprintf("📌 Daily Summary 📌\n\n%s", summary)
		if err := s.deliverer.SendToChat(ctx, chatID, body); err != nil {
			log.Error("digest broadcast: delivery failed", "chat_id", chatID, "error", err)
			if s.metrics != nil {
				s.metrics.DigestFailures.Add(ctx, 1)
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.DigestDeliveries.Add(ctx, 1)
		}
		delivered++
	}
	log.Info("digest broadcast completed", "delivered", delivered)
}

// RequestWindow summarizes the requesting chat's messages over the
// named window and delivers the result privately to the user, with a
// short acknowledgment in the chat. An unknown window label fails with
// ErrInvalidWindow before any store or provider access.
func (s *Scheduler) RequestWindow(ctx context.Context, chatID, userID int64, key string) error {
	seconds, ok := s.windows[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidWindow, key)
	}

	runID := uuid.NewString()
	ctx, span := otelPkg.StartSpan(ctx, s.tracer, "digest.window",
		otelPkg.AttrDigestRunID.String(runID),
		otelPkg.AttrDigestWindow.String(key),
		otelPkg.AttrChatID.Int64(chatID),
		otelPkg.AttrUserID.Int64(userID),
	)
	defer span.End()
	log := s.logger.With("run_id", runID, "chat_id", chatID, "user_id", userID, "window", key)

	since := s.now().Unix() - seconds
	texts, err := s.store.MessagesSince(ctx, chatID, since)
	if err != nil {
		log.Error("window summary: query failed", "error", err)
		return fmt.Errorf("query messages: %w", err)
	}

	summary := s.summarizer.Summarize(ctx, texts)
	body := fmt.Sprintf("📌 Summary of the last %s 📌\n\n%s", key, summary)
	if err := s.deliverer.SendToUser(ctx, userID, body); err != nil {
		log.Error("window summary: private delivery failed", "error", err)
		if s.metrics != nil {
			s.metrics.DigestFailures.Add(ctx, 1)
		}
		return fmt.Errorf("deliver summary: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DigestDeliveries.Add(ctx, 1)
	}

	// The ack is best-effort: the user already has their summary.
	if err := s.deliverer.SendToChat(ctx, chatID, "📬 Summary sent to you privately."); err != nil {
		log.Warn("window summary: chat ack failed", "error", err)
	}

	log.Info("window summary delivered", "messages", len(texts))
	return nil
}
