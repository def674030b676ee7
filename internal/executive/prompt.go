package executive

import (
	"fmt"
	"strings"
	"time"
)

const preamble = `You are a personal assistant that keeps the user's tasks, reminders and notes.
All state lives in a SQLite database you reach with the execute_sql tool. Read before you
write when you need ids. Store every timestamp as RFC 3339 with an explicit offset.
A reminder is a row in reminders with status 'pending'; it is delivered automatically at
fire_at. To cancel one, set status = 'cancelled'. Never delete reminders.
Be direct. No pleasantries.`

// buildInstructions assembles the system instructions for one model call.
// The clock is read on every call so long conversations see the current time.
func buildInstructions(schema string, now time.Time, loc *time.Location) string {
	local := now.In(loc)

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nDatabase schema:\n")
	b.WriteString(strings.TrimSpace(schema))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Current time: %s (%s)\n", local.Format(time.RFC3339), local.Weekday())
	fmt.Fprintf(&b, "Timezone: %s\n", loc.String())
	return b.String()
}
