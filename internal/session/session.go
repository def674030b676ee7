// Package session connects a chat transport to the agent loop: it checks who
// is talking, handles slash commands, runs one turn per message and sends the
// reply. It also pushes scheduler notifications through the same transport.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/lifeos/internal/executive"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/state"
	"github.com/vthunder/lifeos/internal/types"
)

// Sense delivers inbound messages
type Sense interface {
	Start(ctx context.Context, handle func(types.Inbound)) error
	Stop() error
}

// Effector sends text to a chat
type Effector interface {
	Send(ctx context.Context, chatID, text string) error
}

// Typer is implemented by effectors that can show a typing indicator
type Typer interface {
	Typing(ctx context.Context, chatID string) error
}

// Transport is a chat platform: a sense and an effector
type Transport interface {
	Sense
	Effector
}

type transport struct {
	Sense
	Effector
}

// NewTransport pairs a sense with an effector
func NewTransport(s Sense, e Effector) Transport {
	return transport{Sense: s, Effector: e}
}

// Runner runs one agent turn. *executive.Loop implements it.
type Runner interface {
	Run(ctx context.Context, chatID, text string) executive.Outcome
	Clear(chatID string)
}

const greeting = "Hi. Tell me what to remember: tasks, reminders or notes. /clear starts over, /status shows what I'm holding."

// Config holds handler settings
type Config struct {
	PrincipalID string           // the only sender whose messages are processed
	Inspector   *state.Inspector // optional, for /status
	SendTimeout time.Duration
}

// Handler processes inbound messages for the single authorized principal
type Handler struct {
	runner    Runner
	transport Transport
	config    Config
	wg        sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]queued // pending messages per chat; a chat has a worker while its key is present
}

type queued struct {
	ctx context.Context
	msg types.Inbound
}

// NewHandler creates a handler
func NewHandler(runner Runner, transport Transport, cfg Config) *Handler {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Handler{runner: runner, transport: transport, config: cfg, queues: make(map[string][]queued)}
}

// Run starts the transport and processes messages until ctx is done, then
// stops the transport and waits for in-flight turns.
func (h *Handler) Run(ctx context.Context) error {
	if err := h.transport.Start(ctx, func(msg types.Inbound) { h.Dispatch(ctx, msg) }); err != nil {
		return err
	}
	logging.Info("session", "Listening for messages from principal %s", h.config.PrincipalID)

	<-ctx.Done()
	if err := h.transport.Stop(); err != nil {
		logging.Warn("session", "Failed to stop transport: %v", err)
	}
	h.Wait()
	return nil
}

// Dispatch queues msg for its chat and returns. Each chat with pending
// messages has one worker goroutine that handles them in arrival order;
// different chats proceed independently.
func (h *Handler) Dispatch(ctx context.Context, msg types.Inbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, running := h.queues[msg.ChatID]
	h.queues[msg.ChatID] = append(q, queued{ctx: ctx, msg: msg})
	if running {
		return
	}
	h.wg.Add(1)
	go h.drain(msg.ChatID)
}

// drain handles queued messages for chatID until none are left
func (h *Handler) drain(chatID string) {
	defer h.wg.Done()
	for {
		h.mu.Lock()
		q := h.queues[chatID]
		if len(q) == 0 {
			delete(h.queues, chatID)
			h.mu.Unlock()
			return
		}
		next := q[0]
		h.queues[chatID] = q[1:]
		h.mu.Unlock()

		h.Handle(next.ctx, next.msg)
	}
}

// Wait blocks until dispatched messages are done
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Handle processes one message synchronously. Messages from anyone other
// than the principal are dropped without a reply.
func (h *Handler) Handle(ctx context.Context, msg types.Inbound) {
	if msg.SenderID != h.config.PrincipalID {
		logging.Debug("session", "Dropped message from unauthorized sender %s (%s)", msg.SenderID, msg.Source)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if reply, ok := h.command(ctx, msg.ChatID, text); ok {
		h.reply(ctx, msg.ChatID, reply)
		return
	}

	stopTyping := h.startTyping(ctx, msg.ChatID)
	out := h.runner.Run(ctx, msg.ChatID, text)
	stopTyping()

	if out.State == executive.StateFailed {
		logging.Warn("session", "Turn %s for chat %s failed: %v", out.TurnID, msg.ChatID, out.Err)
	}
	if out.Reply == "" {
		return
	}
	h.reply(ctx, msg.ChatID, out.Reply)
}

// Notify sends a message that was not prompted by the user
func (h *Handler) Notify(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("no chat to notify")
	}
	return h.transport.Send(ctx, chatID, text)
}

func (h *Handler) reply(ctx context.Context, chatID, text string) {
	// the reply still goes out when the turn finished during shutdown
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.SendTimeout)
	defer cancel()
	if err := h.transport.Send(sendCtx, chatID, text); err != nil {
		logging.Error("session", "Failed to send reply to %s: %v", chatID, err)
	}
}

func (h *Handler) command(ctx context.Context, chatID, text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0]
	// "/status@lifeos_bot" in group chats
	if i := strings.Index(name, "@"); i > 0 {
		name = name[:i]
	}

	switch strings.ToLower(name) {
	case "/start", "/help":
		return greeting, true
	case "/clear":
		h.runner.Clear(chatID)
		return "Conversation cleared.", true
	case "/status":
		return h.status(ctx), true
	}
	return "", false
}

func (h *Handler) status(ctx context.Context) string {
	if h.config.Inspector == nil {
		return "Status is not available."
	}
	summary, err := h.config.Inspector.Summary(ctx)
	if err != nil {
		logging.Error("session", "Status failed: %v", err)
		return "Couldn't read status right now."
	}
	health, err := h.config.Inspector.Health(ctx)
	if err != nil {
		logging.Warn("session", "Health check failed: %v", err)
	}
	return state.Format(summary, health)
}

// startTyping refreshes the typing indicator until the returned func is called
func (h *Handler) startTyping(ctx context.Context, chatID string) func() {
	typer, ok := h.transport.(Typer)
	if !ok {
		if t, ok2 := h.transport.(transport); ok2 {
			typer, ok = t.Effector.(Typer)
		}
	}
	if !ok {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		for {
			if err := typer.Typing(ctx, chatID); err != nil {
				logging.Debug("session", "Typing indicator failed: %v", err)
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() { close(done) }
}
