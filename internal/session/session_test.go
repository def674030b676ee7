package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/sjson"
	"github.com/vthunder/lifeos/internal/effectors"
	"github.com/vthunder/lifeos/internal/executive"
	"github.com/vthunder/lifeos/internal/gateway"
	"github.com/vthunder/lifeos/internal/scheduler"
	"github.com/vthunder/lifeos/internal/state"
	"github.com/vthunder/lifeos/internal/store"
	"github.com/vthunder/lifeos/internal/types"
)

// fakeSense hands messages to the handler when Push is called
type fakeSense struct {
	mu     sync.Mutex
	handle func(types.Inbound)
}

func (f *fakeSense) Start(ctx context.Context, handle func(types.Inbound)) error {
	f.mu.Lock()
	f.handle = handle
	f.mu.Unlock()
	return nil
}

func (f *fakeSense) Stop() error { return nil }

func (f *fakeSense) Push(msg types.Inbound) {
	f.mu.Lock()
	h := f.handle
	f.mu.Unlock()
	h(msg)
}

// countingRunner records turns without a model
type countingRunner struct {
	mu      sync.Mutex
	turns   []string
	cleared []string
}

func (c *countingRunner) Run(ctx context.Context, chatID, text string) executive.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, text)
	return executive.Outcome{State: executive.StateDone, Reply: "ok: " + text}
}

func (c *countingRunner) Clear(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, chatID)
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "lifeos.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return db
}

func inbound(sender, text string) types.Inbound {
	return types.Inbound{Source: "test", ChatID: sender, SenderID: sender, Text: text, Timestamp: time.Now()}
}

func TestHandle_UnauthorizedSenderIgnored(t *testing.T) {
	runner := &countingRunner{}
	rec := effectors.NewRecorder("", nil)
	h := NewHandler(runner, NewTransport(&fakeSense{}, rec), Config{PrincipalID: "42"})

	h.Handle(context.Background(), inbound("666", "delete everything"))

	if len(runner.turns) != 0 {
		t.Errorf("expected no turn for unauthorized sender, got %v", runner.turns)
	}
	if len(rec.Sent()) != 0 {
		t.Errorf("expected no reply, got %v", rec.Sent())
	}
}

func TestHandle_PrincipalGetsOneReply(t *testing.T) {
	runner := &countingRunner{}
	rec := effectors.NewRecorder("", nil)
	h := NewHandler(runner, NewTransport(&fakeSense{}, rec), Config{PrincipalID: "42"})

	h.Handle(context.Background(), inbound("42", "add milk"))
	h.Handle(context.Background(), inbound("42", "   "))

	sent := rec.Sent()
	if len(sent) != 1 || sent[0].Text != "ok: add milk" || sent[0].ChatID != "42" {
		t.Errorf("expected one reply, got %v", sent)
	}
}

func TestHandle_Commands(t *testing.T) {
	db := openTestDB(t)
	runner := &countingRunner{}
	rec := effectors.NewRecorder("", nil)
	h := NewHandler(runner, NewTransport(&fakeSense{}, rec), Config{
		PrincipalID: "42",
		Inspector:   state.NewInspector(db, db.Path(), time.Now()),
	})
	ctx := context.Background()

	h.Handle(ctx, inbound("42", "/clear"))
	h.Handle(ctx, inbound("42", "/status@lifeos_bot"))
	h.Handle(ctx, inbound("42", "/start"))

	if len(runner.turns) != 0 {
		t.Errorf("commands must not reach the model, got %v", runner.turns)
	}
	if len(runner.cleared) != 1 || runner.cleared[0] != "42" {
		t.Errorf("expected chat 42 cleared, got %v", runner.cleared)
	}

	sent := rec.Sent()
	if len(sent) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(sent))
	}
	if sent[0].Text != "Conversation cleared." {
		t.Errorf("unexpected /clear reply %q", sent[0].Text)
	}
	if !strings.Contains(sent[1].Text, "Tasks: 0 open") {
		t.Errorf("unexpected /status reply %q", sent[1].Text)
	}
	if sent[2].Text != greeting {
		t.Errorf("unexpected /start reply %q", sent[2].Text)
	}
}

func TestHandle_UnknownCommandGoesToModel(t *testing.T) {
	runner := &countingRunner{}
	h := NewHandler(runner, NewTransport(&fakeSense{}, effectors.NewRecorder("", nil)), Config{PrincipalID: "42"})
	h.Handle(context.Background(), inbound("42", "/tasks"))
	if len(runner.turns) != 1 {
		t.Errorf("expected unknown command to reach the model, got %v", runner.turns)
	}
}

func TestRun_DispatchesUntilCancelled(t *testing.T) {
	runner := &countingRunner{}
	sense := &fakeSense{}
	rec := effectors.NewRecorder("", nil)
	h := NewHandler(runner, NewTransport(sense, rec), Config{PrincipalID: "42"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Run(ctx) }()

	for i := 0; i < 100; i++ {
		sense.mu.Lock()
		ready := sense.handle != nil
		sense.mu.Unlock()
		if ready {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	sense.Push(inbound("42", "hello"))
	sense.Push(inbound("7", "hello"))

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(rec.Sent()) != 1 {
		t.Errorf("expected exactly one reply, got %v", rec.Sent())
	}
}

// gatedRunner holds turns for one chat until release is closed
type gatedRunner struct {
	countingRunner
	gatedChat string
	release   chan struct{}
}

func (g *gatedRunner) Run(ctx context.Context, chatID, text string) executive.Outcome {
	if chatID == g.gatedChat {
		<-g.release
	}
	return g.countingRunner.Run(ctx, chatID, text)
}

func TestDispatch_KeepsArrivalOrderPerChat(t *testing.T) {
	runner := &gatedRunner{gatedChat: "42", release: make(chan struct{})}
	rec := effectors.NewRecorder("", nil)
	h := NewHandler(runner, NewTransport(&fakeSense{}, rec), Config{PrincipalID: "42"})
	ctx := context.Background()

	var want []string
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("message %d", i)
		want = append(want, text)
		h.Dispatch(ctx, inbound("42", text))
	}

	// another chat is not held up by the first one
	other := inbound("42", "elsewhere")
	other.ChatID = "dm"
	h.Dispatch(ctx, other)
	deadline := time.Now().Add(2 * time.Second)
	for {
		runner.mu.Lock()
		n := len(runner.turns)
		runner.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected the other chat's turn to run, got %d turns", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(runner.release)
	h.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	got := runner.turns[1:]
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected turn %d to be %q, got %q (all: %v)", i, want[i], got[i], got)
		}
	}
	if len(rec.Sent()) != len(want)+1 {
		t.Errorf("expected %d replies, got %d", len(want)+1, len(rec.Sent()))
	}
}

// TestCallMomScenario drives a full conversation and the reminder it creates:
// the model inserts a reminder through the gateway, the scheduler fires it at
// the right wall-clock time, exactly once.
func TestCallMomScenario(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	db := openTestDB(t)
	db.SetLocation(loc)
	gw := gateway.New(db, gateway.Options{})

	insert, _ := sjson.Set(`{}`, "query", `INSERT INTO reminders (message, fire_at) VALUES (?, ?)`)
	insert, _ = sjson.Set(insert, "params", []string{"call mom", "2026-01-15T17:00:00-05:00"})

	pending, _ := sjson.Set(`{}`, "query", `SELECT id, message FROM reminders WHERE status = 'pending'`)

	var mu sync.Mutex
	var lastToolResult string
	script := []*executive.Response{
		{ToolCalls: []types.ToolCall{{ID: "call_1", Name: gateway.ToolName, Arguments: insert}}},
		{Text: "Got it. I'll remind you to call mom at 5pm."},
		{ToolCalls: []types.ToolCall{{ID: "call_2", Name: gateway.ToolName, Arguments: pending}}},
		{Text: "Nothing pending."},
	}
	provider := executive.ProviderFunc(func(ctx context.Context, req *executive.Request) (*executive.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == executive.RoleTool {
			lastToolResult = req.Messages[n-1].Content
		}
		r := script[0]
		script = script[1:]
		return r, nil
	})

	clock := time.Date(2026, 1, 15, 14, 0, 0, 0, loc)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	setClock := func(t time.Time) {
		mu.Lock()
		clock = t
		mu.Unlock()
	}

	loop := executive.New(provider, []executive.ToolRunner{gw}, executive.Config{
		Schema:   gw.Schema(),
		Location: loc,
		Now:      now,
	})
	rec := effectors.NewRecorder("", nil)
	h := NewHandler(loop, NewTransport(&fakeSense{}, rec), Config{PrincipalID: "42"})
	sched := scheduler.New(scheduler.Config{Store: db, Notifier: h, DefaultChatID: "42", Now: now})

	h.Handle(context.Background(), inbound("42", "remind me to call mom at 5pm"))

	sent := rec.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "call mom at 5pm") {
		t.Fatalf("expected confirmation reply, got %v", sent)
	}

	res, _ := db.Execute(context.Background(), `SELECT status FROM reminders`)
	if len(res.Rows) != 1 || res.Rows[0]["status"] != "pending" {
		t.Fatalf("expected one pending reminder, got %v", res.Rows)
	}

	setClock(time.Date(2026, 1, 15, 16, 59, 0, 0, loc))
	sched.RunOnce(context.Background())
	if len(rec.Sent()) != 1 {
		t.Fatalf("reminder fired early: %v", rec.Sent())
	}

	setClock(time.Date(2026, 1, 15, 17, 0, 30, 0, loc))
	sched.RunOnce(context.Background())
	sched.RunOnce(context.Background())

	sent = rec.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected exactly one notification, got %v", sent)
	}
	if sent[1].ChatID != "42" || sent[1].Text != "⏰ Reminder: call mom" {
		t.Errorf("unexpected notification %+v", sent[1])
	}

	res, _ = db.Execute(context.Background(), `SELECT status, sent_at FROM reminders`)
	if res.Rows[0]["status"] != "sent" || res.Rows[0]["sent_at"] == nil {
		t.Errorf("expected reminder marked sent, got %v", res.Rows[0])
	}

	// asking afterwards finds nothing pending
	h.Handle(context.Background(), inbound("42", "what reminders are pending"))
	sent = rec.Sent()
	if len(sent) != 3 || sent[2].Text != "Nothing pending." {
		t.Fatalf("expected a third reply, got %v", sent)
	}
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(lastToolResult, `"row_count":0`) {
		t.Errorf("expected no pending reminders in the tool result, got %s", lastToolResult)
	}
}
