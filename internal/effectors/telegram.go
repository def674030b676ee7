package effectors

import (
	"context"
	"fmt"
	"time"

	"github.com/vthunder/lifeos/internal/integrations/telegram"
	"github.com/vthunder/lifeos/internal/logging"
)

// TelegramEffector sends messages through the Bot API
type TelegramEffector struct {
	client      *telegram.Client
	maxAttempts int
	backoff     time.Duration
}

// NewTelegramEffector creates a Telegram effector
func NewTelegramEffector(client *telegram.Client) *TelegramEffector {
	return &TelegramEffector{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		backoff:     time.Second,
	}
}

// Send delivers text to a chat, split into Telegram-sized chunks
func (e *TelegramEffector) Send(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("missing chat_id")
	}

	chunks := chunkMessage(text, telegram.MaxMessageLength)
	for i, chunk := range chunks {
		err := sendWithRetry(ctx, "telegram-effector", e.maxAttempts, e.backoff, func() error {
			return e.client.SendMessage(ctx, chatID, chunk)
		})
		if err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	logging.Debug("telegram-effector", "Sent %d chunk(s) to %s", len(chunks), chatID)
	return nil
}

// Typing shows the typing indicator in a chat
func (e *TelegramEffector) Typing(ctx context.Context, chatID string) error {
	return e.client.SendTyping(ctx, chatID)
}
