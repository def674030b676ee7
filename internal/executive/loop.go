// Package executive runs the tool-calling conversation loop between the user,
// the model and the execute_sql tool.
package executive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// State is the position of a turn in the loop
type State string

const (
	StateAwaitingModel State = "AWAITING_MODEL"
	StateExecutingTool State = "EXECUTING_TOOL"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

const (
	DefaultMaxTurns        = 8
	DefaultProviderTimeout = 60 * time.Second
)

// Replies shown to the user when a turn fails
const (
	ReplyProviderError = "Sorry, something went wrong talking to the model. Try again in a moment."
	ReplyStuck         = "I got stuck working on that. Try rephrasing?"
	ReplyEmpty         = "Done."
)

var (
	// ErrStuck means the model kept calling tools past the turn limit
	ErrStuck = errors.New("executive: too many model round-trips")
	// ErrProvider wraps model failures and timeouts
	ErrProvider = errors.New("executive: provider failed")
)

// Config controls a Loop
type Config struct {
	MaxTurns        int           // model round-trips allowed per user message
	ProviderTimeout time.Duration // bound on each model call
	HistoryLimit    int           // messages kept per chat
	Schema          string        // schema text included in the instructions
	Location        *time.Location
	Now             func() time.Time
}

// Outcome is the result of one user message
type Outcome struct {
	TurnID string
	State  State
	Reply  string
	Turns  int // model round-trips made
	Err    error
}

// Loop drives conversations. It is safe for concurrent use; turns for the
// same chat are serialized, different chats run in parallel.
type Loop struct {
	provider Provider
	tools    map[string]ToolRunner
	defs     []types.ToolDefinition
	history  *History
	config   Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a loop offering tools to provider
func New(provider Provider, tools []ToolRunner, cfg Config) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Loop{
		provider: provider,
		tools:    make(map[string]ToolRunner, len(tools)),
		history:  NewHistory(cfg.HistoryLimit),
		config:   cfg,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, t := range tools {
		def := t.Definition()
		l.tools[def.Name] = t
		l.defs = append(l.defs, def)
	}
	return l
}

// History returns the loop's conversation store
func (l *Loop) History() *History {
	return l.history
}

// Clear resets the chat's conversation
func (l *Loop) Clear(chatID string) {
	lock := l.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()
	l.history.Clear(chatID)
	logging.Info("executive", "Cleared history for chat %s", chatID)
}

func (l *Loop) chatLock(chatID string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[chatID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[chatID] = m
	}
	return m
}

// Run processes one user message to completion and returns the reply to send.
// Writes made by tool calls stay committed whatever the outcome.
func (l *Loop) Run(ctx context.Context, chatID, text string) Outcome {
	lock := l.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	out := Outcome{TurnID: uuid.NewString(), State: StateAwaitingModel}
	started := time.Now()
	logging.Info("executive", "Turn %s started: chat=%s, text=%q", out.TurnID, chatID, logging.Truncate(text, 80))

	user := Message{Role: RoleUser, Content: text}
	msgs := append(l.history.Get(chatID), user)
	turn := []Message{user}

	for out.Turns < l.config.MaxTurns {
		out.Turns++
		out.State = StateAwaitingModel

		resp, err := l.complete(ctx, msgs)
		if err != nil {
			l.fail(chatID, user, &out, err)
			return out
		}

		assistant := Message{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls}
		msgs = append(msgs, assistant)
		turn = append(turn, assistant)

		if len(resp.ToolCalls) == 0 {
			out.State = StateDone
			out.Reply = strings.TrimSpace(resp.Text)
			if out.Reply == "" {
				out.Reply = ReplyEmpty
			}
			l.history.Append(chatID, turn...)
			logging.Info("executive", "Turn %s done after %d round-trip(s) in %s",
				out.TurnID, out.Turns, time.Since(started).Round(time.Millisecond))
			return out
		}

		out.State = StateExecutingTool
		for _, call := range resp.ToolCalls {
			result, err := l.runTool(ctx, call)
			if err != nil {
				l.fail(chatID, user, &out, err)
				return out
			}
			res := Message{Role: RoleTool, Content: result, ToolCallID: call.ID}
			msgs = append(msgs, res)
			turn = append(turn, res)
		}
	}

	l.fail(chatID, user, &out, ErrStuck)
	return out
}

func (l *Loop) complete(ctx context.Context, msgs []Message) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.config.ProviderTimeout)
	defer cancel()

	req := &Request{
		Instructions: buildInstructions(l.config.Schema, l.config.Now(), l.config.Location),
		Messages:     msgs,
		Tools:        l.defs,
	}
	resp, err := l.provider.Complete(callCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrProvider)
	}
	return resp, nil
}

func (l *Loop) runTool(ctx context.Context, call types.ToolCall) (string, error) {
	tool, ok := l.tools[call.Name]
	if !ok {
		logging.Warn("executive", "Model called unknown tool %q", call.Name)
		out, _ := sjson.Set(`{}`, "error.kind", "unknown_tool")
		out, _ = sjson.Set(out, "error.message", fmt.Sprintf("no tool named %q; use execute_sql", call.Name))
		return out, nil
	}
	return tool.Execute(ctx, call.Arguments)
}

// fail records a failed turn. Only the user message and the reply are kept so
// the history never holds a tool call without its result.
func (l *Loop) fail(chatID string, user Message, out *Outcome, err error) {
	out.State = StateFailed
	out.Err = err

	switch {
	case errors.Is(err, ErrStuck):
		out.Reply = ReplyStuck
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// the caller went away; there is nobody to reply to
		out.Reply = ""
	default:
		out.Reply = ReplyProviderError
	}

	logging.Warn("executive", "Turn %s failed after %d round-trip(s): %v", out.TurnID, out.Turns, err)

	msgs := []Message{user}
	if out.Reply != "" {
		msgs = append(msgs, Message{Role: RoleAssistant, Content: out.Reply})
	}
	l.history.Append(chatID, msgs...)
}
