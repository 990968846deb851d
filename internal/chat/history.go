package chat

import (
	"fmt"
	"strings"

	"github.com/docchat/backend/internal/storage/models"
)

// CompactHistory bounds and deduplicates prior turns before prompt
// injection. It keeps the most recent load messages, drops a message whose
// content repeats its immediate predecessor (retried or double-submitted
// turns), then keeps the most recent keep messages. Deliberately a cheap
// deterministic heuristic, not a summarizer.
func CompactHistory(msgs []models.ChatMessage, load, keep int) []models.ChatMessage {
	if len(msgs) > load {
		msgs = msgs[len(msgs)-load:]
	}

	deduped := make([]models.ChatMessage, 0, len(msgs))
	for i, msg := range msgs {
		if i > 0 && msg.Content == msgs[i-1].Content {
			continue
		}
		deduped = append(deduped, msg)
	}

	if len(deduped) > keep {
		deduped = deduped[len(deduped)-keep:]
	}

	return deduped
}

// RenderTranscript formats turns as "{role}: {content}" lines for the
// conversation block of the prompt.
func RenderTranscript(msgs []models.ChatMessage) string {
	if len(msgs) == 0 {
		return ""
	}

	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", msg.Role, msg.Content)
	}
	return strings.Join(lines, "\n")
}
