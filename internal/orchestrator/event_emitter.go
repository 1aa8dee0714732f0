package orchestrator

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventEmitter fans executor events out to a single subscriber through a
// buffered channel. A slow subscriber loses events rather than stalling
// the scheduler.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	sendTimeout  time.Duration
	logger       *zap.Logger
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events:      make(chan Event, bufferSize),
		sendTimeout: 100 * time.Millisecond,
		logger:      zap.NewNop(),
	}
}

// SetLogger sets the logger used to report dropped events.
func (e *EventEmitter) SetLogger(l *zap.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Emit sends an event. If the buffer is full it waits briefly for the
// subscriber to drain before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	timer := time.NewTimer(e.sendTimeout)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropping events",
				zap.Uint64("dropped", count),
				zap.String("type", string(event.Type)),
			)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call it once no run will emit again.
func (e *EventEmitter) Close() {
	close(e.events)
}
