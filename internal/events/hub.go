// Package events is an in-process publish/subscribe hub. State changes such
// as membership flips and document lifecycle transitions are published here
// and pushed to connected UI clients over WebSocket.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docchat/backend/pkg/logger"
)

const (
	TypeSubscriptionUpdated = "subscription.updated"
	TypeDocumentUploaded    = "document.uploaded"
	TypeDocumentIndexed     = "document.indexed"
	TypeDocumentDeleted     = "document.deleted"
)

type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Publish delivers the event to every subscriber of the target user.
// Slow subscribers are skipped rather than blocking the publisher.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[event.UserID] {
		select {
		case ch <- event:
		default:
			logger.Warn("Dropping event for slow subscriber",
				zap.String("type", event.Type),
				zap.String("user_id", event.UserID),
			)
		}
	}
}

// Subscribe registers a listener for one user's events. The returned cancel
// function unregisters and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}
