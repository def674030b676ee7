package executive

import "sync"

// DefaultHistoryLimit is the number of messages kept per chat
const DefaultHistoryLimit = 40

// History holds the in-memory conversation of each chat
type History struct {
	mu    sync.Mutex
	limit int
	chats map[string][]Message
}

// NewHistory creates a history keeping at most limit messages per chat
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		limit: limit,
		chats: make(map[string][]Message),
	}
}

// Get returns a copy of the chat's messages
func (h *History) Get(chatID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.chats[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Append adds messages to the chat and trims the oldest exchanges past the limit
func (h *History) Append(chatID string, msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats[chatID] = trim(append(h.chats[chatID], msgs...), h.limit)
}

// Clear forgets the chat's conversation
func (h *History) Clear(chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chats, chatID)
}

// Len returns the number of messages held for the chat
func (h *History) Len(chatID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chats[chatID])
}

// trim drops whole exchanges from the front so the history always starts with
// a user message and never splits a tool call from its result.
func trim(msgs []Message, limit int) []Message {
	for len(msgs) > limit {
		next := -1
		for i := 1; i < len(msgs); i++ {
			if msgs[i].Role == RoleUser {
				next = i
				break
			}
		}
		if next < 0 {
			// one exchange longer than the limit; keep it whole
			break
		}
		msgs = msgs[next:]
	}
	return msgs
}
