package events

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, fmt.Sprintf(format, args...))
}

func (c *captureLogger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *captureLogger) contains(fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if strings.Contains(entry, fragment) {
			return true
		}
	}
	return false
}

func waitForEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func containsType(types []string, want string) bool {
	for _, got := range types {
		if got == want {
			return true
		}
	}
	return false
}

func TestPublishDeliversToSpecificSubscribers(t *testing.T) {
	t.Parallel()

	bus := New(WithLogger(&captureLogger{}))

	iterationEvents := make(chan Event, 1)
	timeoutEvents := make(chan Event, 1)

	bus.Subscribe(EventTypeIterationCompleted, func(event Event) {
		iterationEvents <- event
	})
	bus.Subscribe(EventTypeSearchTimeout, func(event Event) {
		timeoutEvents <- event
	})

	bus.Publish(Event{
		Type:      EventTypeIterationCompleted,
		SessionID: "s-1",
		Severity:  SeverityInfo,
	})

	select {
	case got := <-iterationEvents:
		if got.Type != EventTypeIterationCompleted {
			t.Fatalf("received type = %q, want %q", got.Type, EventTypeIterationCompleted)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for iteration subscriber event")
	}

	select {
	case got := <-timeoutEvents:
		t.Fatalf("unexpected timeout event delivered: %#v", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEveryEvent(t *testing.T) {
	t.Parallel()

	bus := New(WithLogger(&captureLogger{}))
	all := make(chan Event, 2)

	bus.SubscribeAll(func(event Event) {
		all <- event
	})

	bus.Publish(Event{
		Type:      EventTypeSessionStarted,
		SessionID: "s-1",
		Severity:  SeverityInfo,
	})
	bus.Publish(Event{
		Type:      EventTypeSessionError,
		SessionID: "s-1",
		Severity:  SeverityError,
	})

	gotFirst := waitForEvent(t, all)
	gotSecond := waitForEvent(t, all)
	got := []string{gotFirst.Type, gotSecond.Type}

	if !containsType(got, EventTypeSessionStarted) {
		t.Fatalf("wildcard subscriber missing %q event; got %v", EventTypeSessionStarted, got)
	}
	if !containsType(got, EventTypeSessionError) {
		t.Fatalf("wildcard subscriber missing %q event; got %v", EventTypeSessionError, got)
	}
}

func TestPublishDropsWhenSubscriberBufferIsFullAndReturnsQuickly(t *testing.T) {
	t.Parallel()

	logger := &captureLogger{}
	bus := New(WithBufferSize(1), WithLogger(logger))

	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	defer close(unblock)

	bus.Subscribe(EventTypeEngineLine, func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-unblock
	})

	baseEvent := Event{
		Type:      EventTypeEngineLine,
		SessionID: "s-42",
		Severity:  SeverityInfo,
	}

	bus.Publish(baseEvent)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler to block")
	}

	bus.Publish(baseEvent)

	start := time.Now()
	bus.Publish(baseEvent)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Publish blocked %v on a full subscriber, want non-blocking", elapsed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for logger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if logger.count() == 0 {
		t.Fatal("dropped event was not logged")
	}
	if !logger.contains("session_id=s-42") {
		t.Fatalf("drop log missing session id; entries = %v", logger.entries)
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	t.Parallel()

	bus := New(WithLogger(&captureLogger{}))
	got := make(chan Event, 1)
	bus.Subscribe(EventTypeSessionFinished, func(event Event) { got <- event })

	bus.Publish(Event{Type: EventTypeSessionFinished, SessionID: "s-1"})

	event := waitForEvent(t, got)
	if event.Timestamp.IsZero() {
		t.Fatal("Publish did not stamp a timestamp")
	}
}
