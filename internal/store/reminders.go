package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// timestamp layouts accepted in fire_at, most specific first. Layouts without
// an offset are read in the database's location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a stored timestamp. Values without an offset are
// interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i < 2 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// DueReminders returns pending reminders whose fire time is at or before now,
// oldest first. Rows with an unparseable fire_at are logged and skipped.
func (d *DB) DueReminders(ctx context.Context, now time.Time) ([]types.Reminder, error) {
	res, err := d.Execute(ctx, `
		SELECT id, message, fire_at, status, chat_id, created_at, sent_at
		FROM reminders WHERE status = 'pending'`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending reminders: %w", err)
	}

	due := make([]types.Reminder, 0)
	for _, row := range res.Rows {
		r, err := d.reminderFromRow(row)
		if err != nil {
			logging.Warn("store", "Skipping reminder %v: %v", row["id"], err)
			continue
		}
		if r.Due(now) {
			due = append(due, r)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].FireAt.Equal(due[j].FireAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].FireAt.Before(due[j].FireAt)
	})
	return due, nil
}

// MarkReminderSent flips a reminder from pending to sent. It reports false if
// the reminder was no longer pending (already sent or cancelled meanwhile).
func (d *DB) MarkReminderSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := d.Execute(ctx,
		`UPDATE reminders SET status = 'sent', sent_at = ? WHERE id = ? AND status = 'pending'`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder %d sent: %w", id, err)
	}
	return res.RowsAffected == 1, nil
}

// Counts summarizes the store for status reports
type Counts struct {
	OpenTasks        int64 `json:"open_tasks"`
	DoneTasks        int64 `json:"done_tasks"`
	PendingReminders int64 `json:"pending_reminders"`
	SentReminders    int64 `json:"sent_reminders"`
	Notes            int64 `json:"notes"`
}

// Counts returns row counts per table and status
func (d *DB) Counts(ctx context.Context) (Counts, error) {
	res, err := d.Execute(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks WHERE status = 'open') AS open_tasks,
			(SELECT COUNT(*) FROM tasks WHERE status = 'done') AS done_tasks,
			(SELECT COUNT(*) FROM reminders WHERE status = 'pending') AS pending_reminders,
			(SELECT COUNT(*) FROM reminders WHERE status = 'sent') AS sent_reminders,
			(SELECT COUNT(*) FROM notes) AS notes`)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	if len(res.Rows) == 0 {
		return Counts{}, nil
	}
	row := res.Rows[0]
	return Counts{
		OpenTasks:        asInt(row["open_tasks"]),
		DoneTasks:        asInt(row["done_tasks"]),
		PendingReminders: asInt(row["pending_reminders"]),
		SentReminders:    asInt(row["sent_reminders"]),
		Notes:            asInt(row["notes"]),
	}, nil
}

func (d *DB) reminderFromRow(row map[string]any) (types.Reminder, error) {
	r := types.Reminder{
		ID:      asInt(row["id"]),
		Message: asString(row["message"]),
		Status:  types.ReminderStatus(asString(row["status"])),
		ChatID:  asString(row["chat_id"]),
	}

	fireAt, err := ParseTimestamp(asString(row["fire_at"]), d.loc)
	if err != nil {
		return r, err
	}
	r.FireAt = fireAt

	if created, err := ParseTimestamp(asString(row["created_at"]), time.UTC); err == nil {
		r.CreatedAt = created
	}
	if sent := asString(row["sent_at"]); sent != "" {
		if t, err := ParseTimestamp(sent, time.UTC); err == nil {
			r.SentAt = &t
		}
	}
	return r, nil
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
