package effectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// Recorder is an effector that keeps what it is asked to send instead of
// delivering it. Messages are held in memory, optionally appended to a JSONL
// file, and passed to an optional callback.
type Recorder struct {
	outputPath string
	onSend     func(types.Outbound)

	mu   sync.Mutex
	sent []types.Outbound
}

// NewRecorder creates a recorder. outputPath and onSend may be empty.
func NewRecorder(outputPath string, onSend func(types.Outbound)) *Recorder {
	return &Recorder{outputPath: outputPath, onSend: onSend}
}

// Send records the message
func (r *Recorder) Send(ctx context.Context, chatID, text string) error {
	out := types.Outbound{ChatID: chatID, Text: text, Kind: "message", Timestamp: time.Now()}

	r.mu.Lock()
	r.sent = append(r.sent, out)
	err := r.appendFile(out)
	r.mu.Unlock()

	logging.Debug("recorder", "Message to %s: %s", chatID, logging.Truncate(text, 80))
	if r.onSend != nil {
		r.onSend(out)
	}
	return err
}

// Sent returns a copy of everything recorded so far
func (r *Recorder) Sent() []types.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Outbound(nil), r.sent...)
}

// Clear forgets recorded messages and removes the output file
func (r *Recorder) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	if r.outputPath == "" {
		return nil
	}
	if err := os.Remove(r.outputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear output: %w", err)
	}
	return nil
}

func (r *Recorder) appendFile(out types.Outbound) error {
	if r.outputPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(r.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
