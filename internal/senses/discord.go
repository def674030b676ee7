package senses

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// DiscordSense listens to Discord and forwards chat messages
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	botID     string

	mu     sync.RWMutex
	handle func(types.Inbound)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string // only this channel (and DMs) are read when set
}

// NewDiscordSense creates a new Discord sense
func NewDiscordSense(cfg DiscordConfig) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := &DiscordSense{
		session:   session,
		channelID: cfg.ChannelID,
	}

	// Register message handler
	session.AddHandler(sense.handleMessage)

	// We only need message content
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return sense, nil
}

// Start connects to Discord and begins listening
func (d *DiscordSense) Start(ctx context.Context, handle func(types.Inbound)) error {
	d.mu.Lock()
	d.handle = handle
	d.mu.Unlock()

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	// Get bot's user ID for self-filtering
	d.botID = d.session.State.User.ID
	logging.Info("discord-sense", "Connected as %s", d.session.State.User.Username)

	return nil
}

// Stop disconnects from Discord
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// Session returns the underlying Discord session (for sharing with effector)
func (d *DiscordSense) Session() *discordgo.Session {
	return d.session
}

// handleMessage processes incoming Discord messages
func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := d.toInbound(m)
	if !ok {
		return
	}

	d.mu.RLock()
	handle := d.handle
	d.mu.RUnlock()

	logging.Debug("discord-sense", "Message from %s: %s", msg.Sender, logging.Truncate(msg.Text, 50))
	if handle != nil {
		handle(msg)
	}
}

func (d *DiscordSense) toInbound(m *discordgo.MessageCreate) (types.Inbound, bool) {
	if m.Author == nil {
		return types.Inbound{}, false
	}
	// Ignore messages from self and other bots
	if m.Author.ID == d.botID || m.Author.Bot {
		return types.Inbound{}, false
	}

	// Guild messages only from the configured channel; DMs always
	isDM := m.GuildID == ""
	if !isDM && d.channelID != "" && m.ChannelID != d.channelID {
		return types.Inbound{}, false
	}

	text := strings.TrimSpace(d.stripMention(m.Content))
	if text == "" {
		return types.Inbound{}, false
	}

	return types.Inbound{
		ID:        fmt.Sprintf("discord-%s-%s", m.ChannelID, m.ID),
		Source:    "discord",
		ChatID:    m.ChannelID,
		SenderID:  m.Author.ID,
		Sender:    m.Author.Username,
		Text:      text,
		Timestamp: m.Timestamp,
	}, true
}

// stripMention removes a leading mention of the bot
func (d *DiscordSense) stripMention(content string) string {
	if d.botID == "" {
		return content
	}
	for _, prefix := range []string{"<@" + d.botID + ">", "<@!" + d.botID + ">"} {
		if strings.HasPrefix(content, prefix) {
			return strings.TrimPrefix(content, prefix)
		}
	}
	return content
}
