package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitter_DeliversInOrder(t *testing.T) {
	e := NewEventEmitter(4)
	e.Emit(Event{Type: EventTaskReady, TaskID: "t1"})
	e.Emit(Event{Type: EventTaskDispatched, TaskID: "t1"})

	evs := drain(e)
	require.Len(t, evs, 2)
	assert.Equal(t, EventTaskReady, evs[0].Type)
	assert.Equal(t, EventTaskDispatched, evs[1].Type)
	assert.False(t, evs[0].Timestamp.IsZero())
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.sendTimeout = time.Millisecond

	e.Emit(Event{Type: EventTaskReady})
	e.Emit(Event{Type: EventTaskReady})
	e.Emit(Event{Type: EventTaskReady})

	assert.Equal(t, uint64(2), e.DroppedCount())
	assert.Len(t, drain(e), 1)
}

func TestEventEmitter_NilIsSafe(t *testing.T) {
	var e *EventEmitter
	e.Emit(Event{Type: EventPlanDone})
}

func TestEventEmitter_Close(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventPlanDone})
	e.Close()

	ev, ok := <-e.Events()
	assert.True(t, ok)
	assert.Equal(t, EventPlanDone, ev.Type)
	_, ok = <-e.Events()
	assert.False(t, ok)
}
