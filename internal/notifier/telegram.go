package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// telegramRate keeps a single chat under Telegram's per-chat limit
const telegramRate = 1

// TelegramChannel sends notifications to one Telegram chat
type TelegramChannel struct {
	name    string
	token   string
	chatID  int64
	limiter *rate.Limiter
	opts    []bot.Option

	mu  sync.Mutex
	bot *bot.Bot
}

// NewTelegramChannel creates a Telegram channel. Extra bot options are passed
// to bot.New, e.g. bot.WithServerURL for a local API server.
func NewTelegramChannel(name, token string, chatID int64, opts ...bot.Option) *TelegramChannel {
	return &TelegramChannel{
		name:    name,
		token:   token,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(telegramRate), telegramRate),
		opts:    append([]bot.Option{bot.WithSkipGetMe()}, opts...),
	}
}

// Name implements Channel
func (c *TelegramChannel) Name() string { return c.name }

// Send implements Channel
func (c *TelegramChannel) Send(ctx context.Context, event Event) error {
	if c.token == "" {
		return fmt.Errorf("telegram channel %s has no bot token", c.name)
	}
	if c.chatID == 0 {
		return fmt.Errorf("telegram channel %s has no chat id", c.name)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	b, err := c.client()
	if err != nil {
		return err
	}

	params := &bot.SendMessageParams{
		ChatID: c.chatID,
		Text:   formatTelegram(event),
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", c.chatID, err)
	}
	return nil
}

func (c *TelegramChannel) client() (*bot.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot != nil {
		return c.bot, nil
	}
	b, err := bot.New(c.token, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot for channel %s: %w", c.name, err)
	}
	c.bot = b
	return b, nil
}

func formatTelegram(event Event) string {
	title, body := FormatMessage(event)
	return title + "\n\n" + body
}
