package notifications

import (
	"testing"
	"time"
)

// TestPublishDeliversToSubscriber проверяет доставку события подписчику.
func TestPublishDeliversToSubscriber(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("user_abc")
	defer unsubscribe()

	hub.Publish("user_abc", Event{Type: EventBillAnalyzed})

	select {
	case event := <-ch:
		if event.Type != EventBillAnalyzed {
			t.Fatalf("unexpected event type: %q", event.Type)
		}
		if event.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

// TestPublishIsolatesUsers проверяет, что чужие события не доставляются.
func TestPublishIsolatesUsers(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("user_abc")
	defer unsubscribe()

	hub.Publish("user_xyz", Event{Type: EventBillCreated})

	select {
	case event := <-ch:
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestUnsubscribeClosesChannel проверяет закрытие канала при отписке.
func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("user_abc")
	unsubscribe()

	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed")
	}

	// Публикация после отписки не должна паниковать.
	hub.Publish("user_abc", Event{Type: EventBillCreated})
}

// TestPublishDropsWhenBufferFull проверяет, что медленный подписчик не блокирует публикацию.
func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()

	_, unsubscribe := hub.Subscribe("user_abc")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("user_abc", Event{Type: EventBillCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber buffer")
	}
}
