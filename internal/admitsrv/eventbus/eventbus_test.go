package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/common/uuid"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Shutdown()
	eventID := uuid.New()

	ch, unsubscribe := bus.Subscribe(TopicCheckIn(eventID), 4)
	defer unsubscribe()

	bus.Publish(TopicCheckIn(eventID), "payload", 100*time.Millisecond)

	select {
	case got := <-ch:
		assert.Equal(t, TopicCheckIn(eventID), got.Topic)
		assert.Equal(t, "payload", got.Data)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestWildcardPattern(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe("checkin.*", 4)
	defer unsubscribe()

	bus.Publish(TopicCheckIn(uuid.New()), 1, 100*time.Millisecond)
	bus.Publish(TopicScanner(uuid.New()), 2, 100*time.Millisecond)

	select {
	case got := <-ch:
		assert.Equal(t, 1, got.Data)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event on scanner topic: %+v", got)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe("*", 1)
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	bus.Publish("checkin.x", nil, 10*time.Millisecond)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe("*", 1)
	defer unsubscribe()

	start := time.Now()
	bus.Publish("checkin.a", 1, 20*time.Millisecond)
	bus.Publish("checkin.a", 2, 20*time.Millisecond) // buffer full, dropped
	require.Less(t, time.Since(start), 500*time.Millisecond)

	got := <-ch
	assert.Equal(t, 1, got.Data)
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"*", "checkin.abc", true},
		{"checkin.abc", "checkin.abc", true},
		{"checkin.*", "checkin.abc", true},
		{"checkin.*", "scanner.abc", false},
		{"checkin.*", "checkin.abc.extra", false},
		{"", "checkin.abc", false},
		{"checkin.abc", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchTopic(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}
