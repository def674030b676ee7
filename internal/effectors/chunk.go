package effectors

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/vthunder/lifeos/internal/integrations/telegram"
	"github.com/vthunder/lifeos/internal/logging"
)

// DefaultMaxAttempts is how many times a chunk is tried before giving up
const DefaultMaxAttempts = 3

// chunkMessage splits content into pieces of at most maxLen runes,
// preferring paragraph, then line, then word boundaries.
func chunkMessage(content string, maxLen int) []string {
	if utf8.RuneCountInString(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	for utf8.RuneCountInString(content) > maxLen {
		pt := findSplitPoint(content, maxLen)
		chunks = append(chunks, content[:pt])
		content = content[pt:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// findSplitPoint returns the byte offset to cut content at so the first part
// holds at most maxLen runes. Natural breaks in the second half of the window
// win over a hard cut.
func findSplitPoint(content string, maxLen int) int {
	if utf8.RuneCountInString(content) <= maxLen {
		return len(content)
	}

	limit := 0
	for i := 0; i < maxLen; i++ {
		_, size := utf8.DecodeRuneInString(content[limit:])
		limit += size
	}

	window := content[:limit]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 && i >= limit/2 {
			return i + len(sep)
		}
	}
	return limit
}

// isNonRetryableError reports whether resending can't help: client errors
// from Discord (4xx, rate limits are handled by discordgo itself) or
// permanent Bot API errors.
func isNonRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response == nil {
			return false
		}
		code := restErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return false
}

// retryBackoff returns the wait before attempt n+1 (1s, 2s, 4s ... capped at 60s)
func retryBackoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > 60*time.Second || d <= 0 {
		d = 60 * time.Second
	}
	return d
}

// sendWithRetry calls send until it succeeds, fails permanently or runs out of attempts
func sendWithRetry(ctx context.Context, subsystem string, attempts int, base time.Duration, send func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = send(); err == nil {
			return nil
		}
		if isNonRetryableError(err) || attempt == attempts {
			break
		}

		wait := retryBackoff(base, attempt)
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		logging.Warn(subsystem, "Send failed (attempt %d/%d), retrying in %v: %v", attempt, attempts, wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
