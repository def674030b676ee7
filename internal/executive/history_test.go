package executive

import (
	"fmt"
	"testing"

	"github.com/vthunder/lifeos/internal/types"
)

func TestHistory_TrimsAtUserBoundary(t *testing.T) {
	h := NewHistory(5)
	h.Append("c",
		Message{Role: RoleUser, Content: "1"},
		Message{Role: RoleAssistant, ToolCalls: []types.ToolCall{{ID: "a"}}},
		Message{Role: RoleTool, ToolCallID: "a"},
		Message{Role: RoleAssistant, Content: "one"},
	)
	h.Append("c",
		Message{Role: RoleUser, Content: "2"},
		Message{Role: RoleAssistant, Content: "two"},
	)

	msgs := h.Get("c")
	if len(msgs) != 2 {
		t.Fatalf("expected oldest exchange dropped, got %d messages", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "2" {
		t.Errorf("expected history to start at user message 2, got %+v", msgs[0])
	}
}

func TestHistory_KeepsOversizedExchange(t *testing.T) {
	h := NewHistory(2)
	h.Append("c",
		Message{Role: RoleUser},
		Message{Role: RoleAssistant, ToolCalls: []types.ToolCall{{ID: "a"}}},
		Message{Role: RoleTool, ToolCallID: "a"},
	)
	if h.Len("c") != 3 {
		t.Errorf("expected single exchange kept whole, got %d", h.Len("c"))
	}
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 100; i++ {
		h.Append("c", Message{Role: RoleUser, Content: fmt.Sprint(i)}, Message{Role: RoleAssistant})
	}
	if h.Len("c") != DefaultHistoryLimit {
		t.Errorf("expected %d messages, got %d", DefaultHistoryLimit, h.Len("c"))
	}
	if got := h.Get("c")[0].Content; got != "80" {
		t.Errorf("expected oldest kept message 80, got %s", got)
	}
}

func TestHistory_GetReturnsCopy(t *testing.T) {
	h := NewHistory(10)
	h.Append("c", Message{Role: RoleUser, Content: "x"})
	msgs := h.Get("c")
	msgs[0].Content = "changed"
	if h.Get("c")[0].Content != "x" {
		t.Error("Get must not expose internal storage")
	}
}
