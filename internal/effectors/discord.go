package effectors

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/vthunder/lifeos/internal/logging"
)

// DiscordMaxMessageLength is Discord's limit for one message
const DiscordMaxMessageLength = 2000

// DiscordEffector sends messages to Discord
type DiscordEffector struct {
	session     *discordgo.Session
	maxAttempts int
	backoff     time.Duration
}

// NewDiscordEffector creates a Discord effector.
// It shares the session with the sense.
func NewDiscordEffector(session *discordgo.Session) *DiscordEffector {
	return &DiscordEffector{
		session:     session,
		maxAttempts: DefaultMaxAttempts,
		backoff:     time.Second,
	}
}

// Send posts text to a channel, split into Discord-sized chunks
func (e *DiscordEffector) Send(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return fmt.Errorf("missing channel_id")
	}

	chunks := chunkMessage(text, DiscordMaxMessageLength)
	for i, chunk := range chunks {
		err := sendWithRetry(ctx, "discord-effector", e.maxAttempts, e.backoff, func() error {
			_, err := e.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	logging.Debug("discord-effector", "Sent %d chunk(s) to %s", len(chunks), channelID)
	return nil
}

// Typing shows the typing indicator in a channel
func (e *DiscordEffector) Typing(ctx context.Context, channelID string) error {
	return e.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// ResolveDM returns the direct message channel with a user
func (e *DiscordEffector) ResolveDM(userID string) (string, error) {
	ch, err := e.session.UserChannelCreate(userID)
	if err != nil {
		return "", fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return ch.ID, nil
}
