package types

import "time"

// Inbound is a chat message received from a transport
type Inbound struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`    // telegram, discord, cli
	ChatID    string    `json:"chat_id"`   // conversation to reply into
	SenderID  string    `json:"sender_id"` // who wrote it; checked against the principal
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Outbound is a message sent to a transport, either a reply or a pushed notification
type Outbound struct {
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"` // reply, reminder
	Timestamp time.Time `json:"timestamp"`
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskOpen TaskStatus = "open"
	TaskDone TaskStatus = "done"
)

// Task is an actionable item
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ReminderStatus is the delivery state of a reminder
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is a scheduled notification
type Reminder struct {
	ID        int64          `json:"id"`
	Message   string         `json:"message"`
	FireAt    time.Time      `json:"fire_at"`
	Status    ReminderStatus `json:"status"`
	ChatID    string         `json:"chat_id,omitempty"` // empty means the principal's default chat
	CreatedAt time.Time      `json:"created_at"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
}

// Due reports whether the reminder should fire at now
func (r *Reminder) Due(now time.Time) bool {
	return r.Status == ReminderPending && !r.FireAt.After(now)
}

// Note is a free-form text artifact
type Note struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolDefinition describes a capability offered to the model
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema of the arguments object
}

// ToolCall is a model request to run a tool with JSON-encoded arguments
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
