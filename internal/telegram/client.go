// Package telegram sends region lifecycle notifications through the Telegram
// Bot API. Messages use MarkdownV2 and delivery is retried with a linear backoff.
package telegram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

// sender is the part of tgbotapi.BotAPI the client uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// RegionReady reports a freshly loaded region
func (c *Client) RegionReady(bundle *models.RegionModelBundle) {
	if err := c.Send(formatReady(bundle)); err != nil {
		logger.Error("Failed to send ready notification for %s: %v", bundle.RegionKey, err)
	}
}

// RegionFailed reports a failed load
func (c *Client) RegionFailed(key string, err error) {
	if sendErr := c.Send(formatFailed(key, err)); sendErr != nil {
		logger.Error("Failed to send failure notification for %s: %v", key, sendErr)
	}
}

// Send delivers a MarkdownV2 message with retry
func (c *Client) Send(message string) error {
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func formatReady(bundle *models.RegionModelBundle) string {
	name := bundle.Summary.Region
	if name == "" {
		name = bundle.RegionKey
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌊 *Region ready: %s*\n\n", escapeMarkdownV2(name))
	fmt.Fprintf(&b, "📦 Records: %d in %d profiles\n", bundle.Summary.RecordCount, bundle.Summary.NumProfiles)
	if !bundle.DatasetFetchedAt.IsZero() {
		fmt.Fprintf(&b, "📅 Fetched: %s\n", escapeMarkdownV2(bundle.DatasetFetchedAt.UTC().Format("2006-01-02 15:04:05")))
	}
	if bundle.Summary.Synthetic {
		b.WriteString("⚠️ Includes generated sample data\n")
	}

	params := make([]string, 0, len(bundle.Models))
	for p := range bundle.Models {
		params = append(params, string(p))
	}
	sort.Strings(params)

	if len(params) > 0 {
		b.WriteString("\n")
	}
	for _, p := range params {
		m := bundle.Models[models.Parameter(p)]
		metrics := escapeMarkdownV2(fmt.Sprintf("R² %.3f, MAE %.3f", m.Metrics.R2, m.Metrics.MAE))
		fmt.Fprintf(&b, "📈 %s: %s\n", escapeMarkdownV2(p), metrics)
	}
	return b.String()
}

func formatFailed(key string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *Region failed: %s*\n\n", escapeMarkdownV2(key))
	fmt.Fprintf(&b, "Kind: `%s`\n", escapeMarkdownV2(models.KindOf(err)))
	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(err.Error()))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
