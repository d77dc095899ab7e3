package services

import (
	"log/slog"
	"sync"
)

// RunEventType names the kind of run event, and doubles as the SSE event
// name on the wire.
type RunEventType string

const (
	// RunEventStatus marks scheduler lifecycle changes (queued, running,
	// completed, failed).
	RunEventStatus RunEventType = "status"
	// RunEventPhase marks an orchestrator phase transition.
	RunEventPhase RunEventType = "phase"
	// RunEventReport carries the finished report as JSON.
	RunEventReport RunEventType = "report"
)

// RunEvent is one observable moment of an analysis run.
type RunEvent struct {
	RunID     string
	Type      RunEventType
	Data      string // JSON payload
	Timestamp int64  // unix milliseconds
}

// eventBuffer is the per-subscriber channel capacity. Publish never blocks;
// events beyond this are dropped.
const eventBuffer = 100

// RunEvents is the in-process pub/sub for run events. Subscribers pick a
// single run or the firehose; slow subscribers lose events instead of
// stalling the publisher.
type RunEvents struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan RunEvent // key: run id
	global []chan RunEvent
}

func NewRunEvents(logger *slog.Logger) *RunEvents {
	return &RunEvents{
		logger: logger,
		subs:   make(map[string][]chan RunEvent),
	}
}

// Subscribe returns a channel that receives events for one run. The second
// return value unsubscribes and closes the channel.
func (b *RunEvents) Subscribe(runID string) (<-chan RunEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan RunEvent, eventBuffer)
	b.subs[runID] = append(b.subs[runID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[runID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[runID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[runID]) == 0 {
			delete(b.subs, runID)
		}
	}

	return ch, unsub
}

// SubscribeAll returns a channel that receives every event regardless of
// run. The second return value unsubscribes and closes the channel.
func (b *RunEvents) SubscribeAll() (<-chan RunEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan RunEvent, eventBuffer)
	b.global = append(b.global, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, sub := range b.global {
			if sub == ch {
				close(ch)
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish delivers the event to the run's subscribers and the firehose.
// Full channels drop the event with a warning instead of blocking.
func (b *RunEvents) Publish(e RunEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.RunID] {
		b.send(ch, e)
	}
	for _, ch := range b.global {
		b.send(ch, e)
	}
}

func (b *RunEvents) send(ch chan RunEvent, e RunEvent) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("run event channel full, dropping event",
			"run_id", e.RunID, "type", e.Type)
	}
}
