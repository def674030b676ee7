package state

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/vthunder/lifeos/internal/store"
	"github.com/vthunder/lifeos/internal/types"
)

// OverdueGrace is how late a pending reminder may be before health reports it
const OverdueGrace = 10 * time.Minute

// Source is the part of the store the inspector reads. *store.DB implements it.
type Source interface {
	Counts(ctx context.Context) (store.Counts, error)
	DueReminders(ctx context.Context, now time.Time) ([]types.Reminder, error)
}

// Inspector provides state introspection capabilities
type Inspector struct {
	db        Source
	dbPath    string
	started   time.Time
	lastCycle func() time.Time
	now       func() time.Time
}

// NewInspector creates a new state inspector. started is the process start
// time used for uptime.
func NewInspector(db Source, dbPath string, started time.Time) *Inspector {
	return &Inspector{db: db, dbPath: dbPath, started: started, now: time.Now}
}

// SetSchedulerClock lets the inspector report when reminders were last checked
func (i *Inspector) SetSchedulerClock(lastCycle func() time.Time) {
	i.lastCycle = lastCycle
}

// ProcessStats holds resource usage of this process
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"-"`
}

// Summary holds a snapshot of the store and the process
type Summary struct {
	Counts    store.Counts  `json:"counts"`
	DBPath    string        `json:"db_path"`
	DBBytes   int64         `json:"db_bytes"`
	Uptime    time.Duration `json:"uptime"`
	LastCycle time.Time     `json:"last_cycle,omitempty"`
	Process   *ProcessStats `json:"process,omitempty"`
}

// HealthReport holds health check results
type HealthReport struct {
	Status   string   `json:"status"` // "healthy", "warnings"
	Warnings []string `json:"warnings,omitempty"`
}

// Summary returns a summary of all state components
func (i *Inspector) Summary(ctx context.Context) (*Summary, error) {
	counts, err := i.db.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	summary := &Summary{
		Counts: counts,
		DBPath: i.dbPath,
		Uptime: i.now().Sub(i.started),
	}
	if fi, err := os.Stat(i.dbPath); err == nil {
		summary.DBBytes = fi.Size()
	}
	if i.lastCycle != nil {
		summary.LastCycle = i.lastCycle()
	}
	if stats, err := CurrentProcess(); err == nil {
		summary.Process = stats
	}
	return summary, nil
}

// Health runs health checks and returns a report
func (i *Inspector) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Status: "healthy"}
	now := i.now()

	due, err := i.db.DueReminders(ctx, now.Add(-OverdueGrace))
	if err != nil {
		return nil, fmt.Errorf("failed to read reminders: %w", err)
	}
	if len(due) > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d reminder(s) overdue by more than %v", len(due), OverdueGrace))
	}

	if i.lastCycle != nil {
		last := i.lastCycle()
		if last.IsZero() {
			report.Warnings = append(report.Warnings, "Reminder scheduler has not run yet")
		} else if now.Sub(last) > OverdueGrace {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Reminder scheduler last ran %v ago", now.Sub(last).Round(time.Second)))
		}
	}

	if len(report.Warnings) > 0 {
		report.Status = "warnings"
	}
	return report, nil
}

// CurrentProcess reports resource usage of the running process
func CurrentProcess() (*ProcessStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return nil, err
	}
	stats := &ProcessStats{PID: proc.Pid, RSSBytes: mem.RSS}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}

// Format renders the summary and health report as chat text
func Format(s *Summary, h *HealthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tasks: %d open, %d done\n", s.Counts.OpenTasks, s.Counts.DoneTasks)
	fmt.Fprintf(&b, "Reminders: %d pending, %d sent\n", s.Counts.PendingReminders, s.Counts.SentReminders)
	fmt.Fprintf(&b, "Notes: %d\n", s.Counts.Notes)
	fmt.Fprintf(&b, "Database: %s (%s)\n", s.DBPath, formatBytes(uint64(max(s.DBBytes, 0))))
	fmt.Fprintf(&b, "Uptime: %v\n", s.Uptime.Round(time.Second))
	if !s.LastCycle.IsZero() {
		fmt.Fprintf(&b, "Reminders checked: %s\n", s.LastCycle.Format(time.RFC3339))
	}
	if s.Process != nil {
		fmt.Fprintf(&b, "Memory: %s RSS\n", formatBytes(s.Process.RSSBytes))
	}
	if h != nil {
		fmt.Fprintf(&b, "Health: %s", h.Status)
		for _, w := range h.Warnings {
			fmt.Fprintf(&b, "\n- %s", w)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
