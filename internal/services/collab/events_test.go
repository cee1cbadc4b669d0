package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe("sess-1")
	defer cancel()

	hub.Publish(SessionEvent{SessionID: "sess-1", Type: EventPlanReady, Message: "4 subtasks"})

	evt := <-ch
	assert.Equal(t, EventPlanReady, evt.Type)
	assert.Equal(t, "4 subtasks", evt.Message)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestHubIsolatesSessions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe("sess-1")
	defer cancel()

	hub.Publish(SessionEvent{SessionID: "sess-2", Type: EventSessionStarted})

	assert.Empty(t, ch)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe("sess-1")

	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic or block.
	hub.Publish(SessionEvent{SessionID: "sess-1", Type: EventSessionCompleted})
}

func TestHubFansOut(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a, cancelA := hub.Subscribe("sess-1")
	defer cancelA()
	b, cancelB := hub.Subscribe("sess-1")
	defer cancelB()

	hub.Publish(SessionEvent{SessionID: "sess-1", Type: EventSubtaskDone, SubtaskID: "task_1"})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "task_1", (<-a).SubtaskID)
	assert.Equal(t, "task_1", (<-b).SubtaskID)
}

func TestHubDropsWhenSubscriberStalls(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe("sess-1")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(SessionEvent{SessionID: "sess-1", Type: EventGateResult})
	}

	// The buffer keeps the first events; overflow is dropped, not blocking.
	assert.Len(t, ch, subscriberBuffer)
}
