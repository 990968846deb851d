package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("alice")
	defer cancel()

	hub.Publish(Event{Type: TypeDocumentUploaded, UserID: "alice", DocumentID: "doc-1"})

	select {
	case event := <-ch:
		if event.Type != TypeDocumentUploaded {
			t.Errorf("unexpected type: %q", event.Type)
		}
		if event.DocumentID != "doc-1" {
			t.Errorf("unexpected document: %q", event.DocumentID)
		}
		if event.Timestamp.IsZero() {
			t.Error("timestamp should be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishIsScopedToUser(t *testing.T) {
	hub := NewHub()

	aliceCh, cancelAlice := hub.Subscribe("alice")
	defer cancelAlice()
	bobCh, cancelBob := hub.Subscribe("bob")
	defer cancelBob()

	hub.Publish(Event{Type: TypeSubscriptionUpdated, UserID: "alice"})

	select {
	case <-aliceCh:
	case <-time.After(time.Second):
		t.Fatal("alice did not receive her event")
	}

	select {
	case event := <-bobCh:
		t.Fatalf("bob received alice's event: %+v", event)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("alice")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}

	// Cancel twice and publish after cancel; neither may panic.
	cancel()
	hub.Publish(Event{Type: TypeDocumentDeleted, UserID: "alice"})
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("alice")
	defer cancel()

	// Nobody drains; publishing past the buffer must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(Event{Type: TypeDocumentIndexed, UserID: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	hub := NewHub()

	first, cancelFirst := hub.Subscribe("alice")
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe("alice")
	defer cancelSecond()

	hub.Publish(Event{Type: TypeDocumentUploaded, UserID: "alice"})

	for name, ch := range map[string]<-chan Event{"first": first, "second": second} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber missed the event", name)
		}
	}
}
