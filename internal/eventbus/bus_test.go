package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	bus.PublishNew(EventTranslationCompleted, "T-1", "a1", "", map[string]string{"userId": "u1"})

	event := <-ch
	assert.Equal(t, EventTranslationCompleted, event.Type)
	assert.Equal(t, "T-1", event.TaskID)
	assert.Equal(t, "a1", event.ResourceID)
	assert.Equal(t, "u1", event.Metadata["userId"])
	require.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	bus.PublishNew(EventSubmissionQueued, "T-1", "", "", nil)
	bus.PublishNew(EventSubmissionQueued, "T-2", "", "", nil)

	first := <-ch
	assert.Equal(t, "T-1", first.TaskID)
	select {
	case extra := <-ch:
		t.Fatalf("expected second event to be dropped, got %v", extra.TaskID)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}
