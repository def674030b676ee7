package senses

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/lifeos/internal/integrations/telegram"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// DefaultLongPollTimeout is the server-side getUpdates wait in seconds
const DefaultLongPollTimeout = 30

const maxPollBackoff = 30 * time.Second

// TelegramSense long-polls the Bot API for messages
type TelegramSense struct {
	client  *telegram.Client
	timeout int

	mu       sync.Mutex
	offset   int64
	stopChan chan struct{}
	done     chan struct{}
	stopped  bool
}

// NewTelegramSense creates a new Telegram sense
func NewTelegramSense(client *telegram.Client, timeout int) *TelegramSense {
	if timeout <= 0 {
		timeout = DefaultLongPollTimeout
	}
	return &TelegramSense{
		client:   client,
		timeout:  timeout,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start checks the token and begins polling in the background
func (t *TelegramSense) Start(ctx context.Context, handle func(types.Inbound)) error {
	me, err := t.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	logging.Info("telegram-sense", "Connected as @%s", me.Username)

	pollCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-t.stopChan:
		case <-pollCtx.Done():
		}
		cancel()
	}()
	go t.pollLoop(pollCtx, handle)
	return nil
}

// Stop ends polling and waits for the loop to exit
func (t *TelegramSense) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	close(t.stopChan)
	t.mu.Unlock()

	<-t.done
	logging.Info("telegram-sense", "Stopped")
	return nil
}

func (t *TelegramSense) pollLoop(ctx context.Context, handle func(types.Inbound)) {
	defer close(t.done)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		if err := t.poll(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn("telegram-sense", "Poll failed, retrying in %v: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = time.Second
	}
}

func (t *TelegramSense) poll(ctx context.Context, handle func(types.Inbound)) error {
	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	updates, err := t.client.GetUpdates(ctx, offset, t.timeout)
	if err != nil {
		return err
	}

	for _, upd := range updates {
		t.mu.Lock()
		if upd.UpdateID >= t.offset {
			t.offset = upd.UpdateID + 1
		}
		t.mu.Unlock()

		if msg, ok := toInbound(upd); ok {
			handle(msg)
		}
	}
	return nil
}

// toInbound converts an update to a chat message. Updates without text are skipped.
func toInbound(upd telegram.Update) (types.Inbound, bool) {
	m := upd.Message
	if m == nil || m.From == nil {
		return types.Inbound{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}
	if text == "" {
		return types.Inbound{}, false
	}

	sender := m.From.Username
	if sender == "" {
		sender = m.From.FirstName
	}
	ts := time.Now()
	if m.Date > 0 {
		ts = time.Unix(m.Date, 0)
	}
	return types.Inbound{
		ID:        fmt.Sprintf("telegram-%d-%d", m.Chat.ID, m.MessageID),
		Source:    "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
	}, true
}
