package eventbus

import (
	"testing"
	"time"
)

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("turn.created")

	bus.Publish("turn.created", "hello")

	select {
	case evt := <-ch:
		if evt.Topic != "turn.created" {
			t.Errorf("expected topic 'turn.created', got %q", evt.Topic)
		}
		if evt.Payload != "hello" {
			t.Errorf("expected payload 'hello', got %v", evt.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout: expected event to be received within 100ms")
	}
}

func TestEventBus_MultipleSubscribers_AllReceive(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe("multi.topic")
	ch2 := bus.Subscribe("multi.topic")

	bus.Publish("multi.topic", 42)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Payload != 42 {
				t.Errorf("subscriber %d: expected payload 42, got %v", i, evt.Payload)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestEventBus_DifferentTopics_NoInterference(t *testing.T) {
	bus := New()
	chA := bus.Subscribe("topic.a")
	chB := bus.Subscribe("topic.b")

	bus.Publish("topic.a", "for-a")

	select {
	case evt := <-chA:
		if evt.Payload != "for-a" {
			t.Errorf("topic.a: unexpected payload %v", evt.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("topic.a: timeout waiting for event")
	}

	// topic.b should have received nothing
	select {
	case evt := <-chB:
		t.Errorf("topic.b: received unexpected event: %v", evt)
	default:
		// correct, no event
	}
}

func TestEventBus_NonBlockingPublish_FullBuffer(t *testing.T) {
	bus := New()
	// Subscribe but never consume, buffer will fill up
	_ = bus.Subscribe("overflow.topic")

	// Publish more events than the buffer size; must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i <= defaultBufferSize+10; i++ {
			bus.Publish("overflow.topic", i)
		}
		close(done)
	}()

	select {
	case <-done:
		// correct, publish never blocked
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Publish blocked when buffer was full (should be non-blocking)")
	}

	if got := bus.Dropped(); got != 11 {
		t.Errorf("expected 11 dropped deliveries, got %d", got)
	}
}

func TestEventBus_Close_ClosesSubscriberChannels(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("turn.completed")

	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel, got an event")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("subscriber channel not closed by Close")
	}

	// Publishing and closing again after Close must be harmless.
	bus.Publish("turn.completed", "late")
	bus.Close()
}

func TestEventBus_SubscribeAfterClose_ReturnsClosedChannel(t *testing.T) {
	bus := New()
	bus.Close()

	ch := bus.Subscribe("turn.created")
	if _, ok := <-ch; ok {
		t.Error("expected closed channel from Subscribe after Close")
	}
}
