package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/metric"

	"github.com/basket/talbot/internal/commands"
	"github.com/basket/talbot/internal/digest"
	otelPkg "github.com/basket/talbot/internal/otel"
	"github.com/basket/talbot/internal/persistence"
)

// TelegramChannel implements the Channel interface for Telegram. It
// also serves as the digest.Deliverer for both digest paths.
type TelegramChannel struct {
	token      string
	allowedIDs map[int64]struct{}
	store      *persistence.Store
	digests    *digest.Scheduler
	commands   *commands.Commands
	logger     *slog.Logger
	metrics    *otelPkg.Metrics
	bot        *tgbotapi.BotAPI
}

// TelegramConfig holds the channel's dependencies.
type TelegramConfig struct {
	Token string
	// AllowedIDs restricts served chats. Empty means all.
	AllowedIDs []int64
	Store      *persistence.Store
	Digests    *digest.Scheduler
	Commands   *commands.Commands
	Logger     *slog.Logger
	Metrics    *otelPkg.Metrics
}

// NewTelegramChannel creates a new Telegram channel.
func NewTelegramChannel(cfg TelegramConfig) *TelegramChannel {
	allowed := make(map[int64]struct{})
	for _, id := range cfg.AllowedIDs {
		allowed[id] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		token:      cfg.Token,
		allowedIDs: allowed,
		store:      cfg.Store,
		digests:    cfg.Digests,
		commands:   cfg.Commands,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall detection).
// Returns nil on context cancellation, or an error to trigger reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5 minutes,
	// the connection is likely dead (the library blocks rather than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			// Reset stall timer on every received update (including empty long-poll returns).
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				if !t.chatAllowed(update.Message.Chat.ID) {
					t.logger.Warn("telegram access denied", "chat_id", update.Message.Chat.ID)
					continue
				}
				t.handleMessage(ctx, update.Message)
				continue
			}

			if update.CallbackQuery != nil {
				if update.CallbackQuery.Message != nil && !t.chatAllowed(update.CallbackQuery.Message.Chat.ID) {
					t.logger.Warn("telegram callback access denied", "chat_id", update.CallbackQuery.Message.Chat.ID)
					continue
				}
				t.handleCallbackQuery(ctx, update.CallbackQuery)
				continue
			}

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *TelegramChannel) chatAllowed(chatID int64) bool {
	if len(t.allowedIDs) == 0 {
		return true
	}
	_, ok := t.allowedIDs[chatID]
	return ok
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		t.handleCommand(ctx, msg)
		return
	}

	// Every plain message goes into the retention store. A failed
	// append drops the message; there is no buffering.
	if _, err := t.store.AppendMessage(ctx, msg.Chat.ID, msg.From.ID, msg.Text); err != nil {
		t.logger.Error("failed to store message",
			"chat_id", msg.Chat.ID, "kind", persistence.Kind(err), "error", err)
	} else if t.metrics != nil {
		t.metrics.MessagesStored.Add(ctx, 1)
	}

	switch kind, payload := reactionFor(text); kind {
	case reactionGIF:
		anim := tgbotapi.NewAnimation(msg.Chat.ID, tgbotapi.FileURL(payload))
		if _, err := t.bot.Send(anim); err != nil {
			t.logger.Warn("failed to send reaction gif", "error", err)
		}
	case reactionSticker:
		sticker := tgbotapi.NewSticker(msg.Chat.ID, tgbotapi.FileID(payload))
		if _, err := t.bot.Send(sticker); err != nil {
			t.logger.Warn("failed to send reaction sticker", "error", err)
		}
	case reactionEmoji:
		t.reply(msg.Chat.ID, payload)
	}
}

func (t *TelegramChannel) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	t.logger.Info("telegram command", "command", cmd, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
	if t.metrics != nil {
		start := time.Now()
		defer func() {
			t.metrics.CommandDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(otelPkg.AttrCommand.String(cmd)))
		}()
	}

	switch cmd {
	case "summary":
		keyboard := buildWindowKeyboard(t.digests.WindowKeys())
		out := tgbotapi.NewMessage(msg.Chat.ID, "Summarise messages from the last:")
		out.ReplyMarkup = keyboard
		if _, err := t.bot.Send(out); err != nil {
			t.logger.Error("failed to send summary keyboard", "error", err)
		}

	case "weather":
		t.reply(msg.Chat.ID, t.commands.Weather(ctx, args))

	case "dadjokes":
		joke := args
		if joke == "" {
			joke = t.commands.DadJoke(ctx)
		}
		t.reply(msg.Chat.ID, joke)
		poll := tgbotapi.NewPoll(msg.Chat.ID, commands.JokePollQuestion, commands.JokePollOptions...)
		poll.IsAnonymous = false
		if _, err := t.bot.Send(poll); err != nil {
			t.logger.Warn("failed to send joke poll", "error", err)
		}

	case "insult":
		t.reply(msg.Chat.ID, t.commands.Insult(ctx, args))

	case "brl":
		t.reply(msg.Chat.ID, t.commands.GBPBRLRate(ctx))

	case "imdb":
		t.handleIMDb(ctx, msg.Chat.ID, args)
	}
}

func (t *TelegramChannel) handleIMDb(ctx context.Context, chatID int64, query string) {
	if query == "" {
		t.reply(chatID, "Usage: /imdb <movie name>")
		return
	}

	results := t.commands.SearchMovies(ctx, query)
	if len(results) == 0 {
		t.reply(chatID, "No matches found. Please refine your search.")
		return
	}
	if len(results) == 1 {
		t.replyMarkdown(chatID, t.commands.MovieInfo(ctx, results[0].ImdbID))
		return
	}

	keyboard := buildMovieKeyboard(results)
	out := tgbotapi.NewMessage(chatID, "Please select a movie:")
	out.ReplyMarkup = keyboard
	if _, err := t.bot.Send(out); err != nil {
		t.logger.Error("failed to send movie keyboard", "error", err)
	}
}

// handleCallbackQuery handles inline button clicks: summary window
// selection and movie selection.
func (t *TelegramChannel) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	kind, value, err := parseCallback(query.Data)
	if err != nil {
		return
	}

	ack := tgbotapi.NewCallback(query.ID, "")
	if _, err := t.bot.Request(ack); err != nil {
		t.logger.Warn("failed to answer callback query", "error", err)
	}

	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	switch kind {
	case callbackSummary:
		err := t.digests.RequestWindow(ctx, chatID, query.From.ID, value)
		switch {
		case errors.Is(err, digest.ErrInvalidWindow):
			t.reply(chatID, "That summary window is no longer available.")
		case err != nil:
			t.reply(chatID, "Couldn't build that summary right now. Please try again later.")
		}

	case callbackMovie:
		info := t.commands.MovieInfo(ctx, value)
		edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, info)
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.bot.Send(edit); err != nil {
			t.logger.Warn("failed to edit movie message", "error", err)
		}
	}
}

// SendToChat implements digest.Deliverer.
func (t *TelegramChannel) SendToChat(ctx context.Context, chatID int64, text string) error {
	return t.send(chatID, text)
}

// SendToUser implements digest.Deliverer. For private messages the
// user's id doubles as the chat id.
func (t *TelegramChannel) SendToUser(ctx context.Context, userID int64, text string) error {
	return t.send(userID, text)
}

func (t *TelegramChannel) send(chatID int64, text string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram channel not started")
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	if err := t.send(chatID, text); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}

// replyMarkdown sends a markdown-formatted message.
func (t *TelegramChannel) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram markdown reply", "error", err)
	}
}

type callbackKind int

const (
	callbackSummary callbackKind = iota
	callbackMovie
)

// parseCallback parses inline keyboard callback data.
// Formats: "summary:<window>" and "movie:<imdbID>".
func parseCallback(data string) (callbackKind, string, error) {
	data = strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(data, "summary:"):
		value := data[len("summary:"):]
		if value == "" {
			return 0, "", fmt.Errorf("empty summary window")
		}
		return callbackSummary, value, nil
	case strings.HasPrefix(data, "movie:"):
		value := data[len("movie:"):]
		if value == "" {
			return 0, "", fmt.Errorf("empty movie id")
		}
		return callbackMovie, value, nil
	default:
		return 0, "", fmt.Errorf("unknown callback: %s", data)
	}
}

// buildWindowKeyboard lays out the summary window buttons in one row
// per window.
func buildWindowKeyboard(keys []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Last "+key, "summary:"+key),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildMovieKeyboard lays out up to five search results as buttons.
func buildMovieKeyboard(movies []commands.Movie) tgbotapi.InlineKeyboardMarkup {
	if len(movies) > 5 {
		movies = movies[:5]
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(movies))
	for _, m := range movies {
		label := fmt.Sprintf("%s (%s)", m.Title, m.Year)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "movie:"+m.ImdbID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
