package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe(TopicTrackChanged)
	defer sub.Unsubscribe()

	bus.Publish(TopicTrackChanged, "now playing X")

	select {
	case msg := <-sub.C:
		assert.Equal(t, TopicTrackChanged, msg.Topic)
		assert.Equal(t, "now playing X", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected message, got none")
	}
}

func TestPublishSkipsNonMatchingTopic(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe(TopicDJState)
	defer sub.Unsubscribe()

	bus.Publish(TopicTrackChanged, "irrelevant")

	select {
	case <-sub.C:
		t.Fatal("subscriber should not have received a non-matching topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe(TopicDJState)
	defer sub.Unsubscribe()

	for i := 0; i < subscriberBufferSize+5; i++ {
		bus.Publish(TopicDJState, i)
	}

	assert.Positive(t, bus.DroppedCount(TopicDJState))

	// The channel should still only hold at most its capacity.
	count := 0
	for {
		select {
		case <-sub.C:
			count++
		default:
			assert.LessOrEqual(t, count, subscriberBufferSize)
			return
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe()
	sub.Unsubscribe()

	require.Equal(t, 0, bus.SubscriberCount())
	_, ok := <-sub.C
	assert.False(t, ok)
}
