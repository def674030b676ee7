// Package scheduler delivers due reminders on a fixed cadence.
//
// Each cycle sends a notification first and marks the reminder sent only
// after the send succeeded. A crash between the two can deliver the same
// reminder twice; it can never drop one.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// DefaultInterval is how often due reminders are checked
const DefaultInterval = time.Minute

// DefaultCycleTimeout bounds the work done in one cycle
const DefaultCycleTimeout = 30 * time.Second

// markTimeout bounds recording a delivery. It is not tied to the cycle, so a
// cycle cancelled after a send still records it.
const markTimeout = 5 * time.Second

// failureAlertAfter is how many consecutive failed cycles a reminder goes
// through before its failure is logged at error level
const failureAlertAfter = 10

// ErrCycleInProgress is returned by RunOnce while another cycle is running
var ErrCycleInProgress = errors.New("scheduler: cycle already in progress")

// Store is the part of the database the scheduler needs. *store.DB implements it.
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]types.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) (bool, error)
}

// Notifier pushes a message to a chat without a user prompt
type Notifier interface {
	Notify(ctx context.Context, chatID, text string) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, chatID, text string) error

func (f NotifierFunc) Notify(ctx context.Context, chatID, text string) error {
	return f(ctx, chatID, text)
}

// Config holds scheduler settings
type Config struct {
	Store         Store
	Notifier      Notifier
	Interval      time.Duration
	CycleTimeout  time.Duration
	DefaultChatID string // used for reminders without a chat_id
	Now           func() time.Time
}

// CycleReport summarizes one cycle
type CycleReport struct {
	At     time.Time
	Due    int
	Sent   int
	Failed int
}

// Scheduler polls for due reminders and notifies
type Scheduler struct {
	config Config

	cycle    sync.Mutex    // held for the duration of a cycle
	failures map[int64]int // consecutive failed sends per reminder, guarded by cycle

	mu        sync.RWMutex
	lastCycle time.Time
	started   bool
	stopped   bool
	stopChan  chan struct{}
	done      chan struct{}
}

// New creates a scheduler
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		config:   cfg,
		failures: make(map[int64]int),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a cycle immediately and then one per interval until Stop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	logging.Info("scheduler", "Starting with interval %v", s.config.Interval)
	go s.loop()
	return nil
}

// Stop ends the loop and waits for an in-flight cycle to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()

	<-s.done
	logging.Info("scheduler", "Stopped")
	return nil
}

// LastCycle returns when the last cycle began, zero if none has run
func (s *Scheduler) LastCycle() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle
}

func (s *Scheduler) loop() {
	defer close(s.done)

	s.tick()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.CycleTimeout)
	defer cancel()

	// Stop cancels an in-flight cycle
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		logging.Warn("scheduler", "Cycle failed: %v", err)
	}
}

// RunOnce runs a single cycle: every due reminder is sent, oldest fire time
// first, and marked sent after a successful send. Failed sends stay pending
// and are retried next cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleReport, error) {
	if !s.cycle.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer s.cycle.Unlock()

	now := s.config.Now()
	s.mu.Lock()
	s.lastCycle = now
	s.mu.Unlock()

	report := CycleReport{At: now}
	due, err := s.config.Store.DueReminders(ctx, now)
	if err != nil {
		return report, err
	}
	report.Due = len(due)
	s.forgetFailures(due)
	if len(due) == 0 {
		return report, nil
	}
	logging.Debug("scheduler", "%d reminder(s) due", len(due))

	for _, r := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		chatID := r.ChatID
		if chatID == "" {
			chatID = s.config.DefaultChatID
		}

		if err := s.config.Notifier.Notify(ctx, chatID, Format(r)); err != nil {
			report.Failed++
			s.deliveryFailed(r.ID, chatID, err)
			continue
		}
		if n := s.failures[r.ID]; n > 0 {
			logging.Info("scheduler", "Reminder %d delivered after %d failed attempt(s)", r.ID, n)
			delete(s.failures, r.ID)
		}

		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
		ok, err := s.config.Store.MarkReminderSent(markCtx, r.ID, s.config.Now())
		cancel()
		if err != nil {
			// already delivered; the next cycle will send it again
			report.Failed++
			logging.Error("scheduler", "Reminder %d sent but not marked: %v", r.ID, err)
			continue
		}
		if !ok {
			logging.Info("scheduler", "Reminder %d changed state during delivery", r.ID)
		}
		report.Sent++
		logging.Info("scheduler", "Delivered reminder %d to %s", r.ID, chatID)
	}
	return report, nil
}

// deliveryFailed logs a failed send. The first failure is a warning and a
// reminder still failing after failureAlertAfter cycles is an error; repeats
// in between only show at debug level.
func (s *Scheduler) deliveryFailed(id int64, chatID string, err error) {
	s.failures[id]++
	switch n := s.failures[id]; {
	case n == 1:
		logging.Warn("scheduler", "Failed to deliver reminder %d to %s: %v", id, chatID, err)
	case n == failureAlertAfter:
		logging.Error("scheduler", "Reminder %d to %s has failed %d times in a row, still retrying: %v", id, chatID, n, err)
	default:
		logging.Debug("scheduler", "Failed to deliver reminder %d to %s (attempt %d): %v", id, chatID, n, err)
	}
}

// forgetFailures drops counts for reminders that are no longer due
func (s *Scheduler) forgetFailures(due []types.Reminder) {
	if len(s.failures) == 0 {
		return
	}
	pending := make(map[int64]bool, len(due))
	for _, r := range due {
		pending[r.ID] = true
	}
	for id := range s.failures {
		if !pending[id] {
			delete(s.failures, id)
		}
	}
}

// Format renders the notification text for a reminder
func Format(r types.Reminder) string {
	return "⏰ Reminder: " + r.Message
}
