package chat

import (
	"fmt"
	"testing"

	"github.com/docchat/backend/internal/storage/models"
)

func msg(role, content string) models.ChatMessage {
	return models.ChatMessage{Role: role, Content: content}
}

func TestCompactHistoryEmpty(t *testing.T) {
	if got := CompactHistory(nil, 6, 4); len(got) != 0 {
		t.Fatalf("expected no messages, got %d", len(got))
	}
}

func TestCompactHistoryKeepsRecentTail(t *testing.T) {
	var msgs []models.ChatMessage
	for i := 0; i < 10; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, msg(role, fmt.Sprintf("turn %d", i)))
	}

	got := CompactHistory(msgs, 6, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}

	// The kept turns must be the most recent ones, in order.
	for i, m := range got {
		want := fmt.Sprintf("turn %d", 6+i)
		if m.Content != want {
			t.Errorf("message %d: got %q, want %q", i, m.Content, want)
		}
	}
}

func TestCompactHistoryDropsConsecutiveDuplicates(t *testing.T) {
	msgs := []models.ChatMessage{
		msg(models.RoleUser, "what is this?"),
		msg(models.RoleAssistant, "a document"),
		msg(models.RoleUser, "tell me more"),
		msg(models.RoleUser, "tell me more"),
		msg(models.RoleAssistant, "more detail"),
	}

	got := CompactHistory(msgs, 6, 4)
	for i := 1; i < len(got); i++ {
		if got[i].Content == got[i-1].Content {
			t.Fatalf("adjacent duplicate survived at position %d: %q", i, got[i].Content)
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 messages after dedup, got %d", len(got))
	}
}

func TestCompactHistoryDedupRunsBeforeFinalTrim(t *testing.T) {
	// Six loaded messages collapse to five after dedup, then trim to four.
	msgs := []models.ChatMessage{
		msg(models.RoleUser, "a"),
		msg(models.RoleUser, "a"),
		msg(models.RoleAssistant, "b"),
		msg(models.RoleUser, "c"),
		msg(models.RoleAssistant, "d"),
		msg(models.RoleUser, "e"),
	}

	got := CompactHistory(msgs, 6, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	want := []string{"b", "c", "d", "e"}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("message %d: got %q, want %q", i, got[i].Content, want[i])
		}
	}
}

func TestCompactHistoryKeepsNonAdjacentRepeats(t *testing.T) {
	msgs := []models.ChatMessage{
		msg(models.RoleUser, "same"),
		msg(models.RoleAssistant, "answer"),
		msg(models.RoleUser, "same"),
	}

	got := CompactHistory(msgs, 6, 4)
	if len(got) != 3 {
		t.Fatalf("non-adjacent repeat was dropped: got %d messages", len(got))
	}
}

func TestRenderTranscript(t *testing.T) {
	if got := RenderTranscript(nil); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}

	msgs := []models.ChatMessage{
		msg(models.RoleUser, "hello"),
		msg(models.RoleAssistant, "hi there"),
	}

	want := "user: hello\nassistant: hi there"
	if got := RenderTranscript(msgs); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
