// Package telegram adapts Telegram updates to engine events and renders engine
// outcomes back into chat messages. It owns no conversational state.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"plutusbot/bot/dispatch"
	"plutusbot/bot/engine"
)

// API is the slice of the Telegram client the bot uses, narrowed for tests.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot drives the Telegram long-polling loop. Updates for the same chat are
// processed in arrival order through the dispatcher; different chats proceed
// concurrently.
type Bot struct {
	api        API
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// BotOption customises the bot.
type BotOption func(*Bot)

// WithLogger configures the bot logger.
func WithLogger(logger *slog.Logger) BotOption {
	return func(b *Bot) { b.logger = logger }
}

// New constructs the transport adapter around a connected Telegram API client.
func New(api API, eng *engine.Engine, opts ...BotOption) *Bot {
	b := &Bot{
		api:    api,
		engine: eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.dispatcher = dispatch.New(b.handleEvent)
	return b
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)

	b.logger.Info("telegram bot running")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.dispatcher.Close()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.dispatcher.Close()
				return nil
			}
			b.route(update)
		}
	}
}

// route converts one update into an engine event and enqueues it for its chat.
func (b *Bot) route(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message == nil {
			return
		}
		// Acknowledge the button press immediately so the client stops the
		// spinner, independent of how long the event takes to process.
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Warn("callback ack failed", "error", err)
		}
		ev, ok := parseCallback(cb.Data)
		if !ok {
			b.logger.Warn("unknown callback data", "data", cb.Data)
			return
		}
		b.dispatcher.Dispatch(cb.Message.Chat.ID, ev)

	case update.Message != nil:
		msg := update.Message
		if msg.IsCommand() {
			ev, ok := parseCommand(msg.Command())
			if !ok {
				return
			}
			b.dispatcher.Dispatch(msg.Chat.ID, ev)
			return
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return
		}
		// Free text is either a wallet address or an amount; the engine decides
		// from the session state.
		b.dispatcher.Dispatch(msg.Chat.ID, engine.SubmitText(text))
	}
}

// handleEvent runs on a dispatcher worker, strictly serialized per chat.
func (b *Bot) handleEvent(ctx context.Context, chatID int64, ev engine.Event) {
	out, err := b.engine.HandleEvent(ctx, chatID, ev)
	if err != nil {
		b.logger.Error("event handling failed", "chat_id", chatID, "event", ev.Type, "error", err)
		return
	}
	rendered, ok := renderOutcome(out)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(chatID, rendered.text)
	if rendered.keyboard != nil {
		msg.ReplyMarkup = *rendered.keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send failed", "chat_id", chatID, "error", err)
	}
}

// Connect dials the Telegram API with the provided token.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return api, nil
}
