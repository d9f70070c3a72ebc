// Package stream carries typed events from the agent core to subscribers.
//
// Each turn owns one bounded channel. Producers (coordinator, agent loop,
// tool dispatcher) publish through a Publisher and block when the buffer
// is full; the subscriber side drains it, typically into an SSE response.
// Subscriber disconnect trips the turn's cancellation.
package stream

import (
	"context"
	"sync"
	"time"
)

// EventType enumerates the event variants on the wire.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventCodeOutput EventType = "code_output"
	EventTextDelta  EventType = "text_delta"
	EventError      EventType = "error"
	EventDone       EventType = "done"
	EventDisconnect EventType = "disconnect"
)

// Event is one tagged record on a turn's stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventDone, EventError, EventDisconnect:
		return true
	}
	return false
}

// Thinking builds a thinking event.
func Thinking(content string) Event {
	return newEvent(EventThinking, map[string]any{"content": content})
}

// ToolStart builds a tool_start event.
func ToolStart(tool string, input map[string]any) Event {
	return newEvent(EventToolStart, map[string]any{"tool": tool, "input": input})
}

// ToolResult builds a tool_result event.
func ToolResult(tool, output string, elapsed time.Duration) Event {
	return newEvent(EventToolResult, map[string]any{
		"tool":           tool,
		"output":         output,
		"execution_time": elapsed.Seconds(),
	})
}

// CodeOutput builds a code_output event.
func CodeOutput(stdout, stderr string, plots []string, elapsed time.Duration) Event {
	return newEvent(EventCodeOutput, map[string]any{
		"stdout":         stdout,
		"stderr":         stderr,
		"plots":          plots,
		"execution_time": elapsed.Seconds(),
	})
}

// TextDelta builds a text_delta event.
func TextDelta(delta string) Event {
	return newEvent(EventTextDelta, map[string]any{"delta": delta})
}

// ErrorEvent builds an error event.
func ErrorEvent(err string, details string) Event {
	return newEvent(EventError, map[string]any{"error": err, "details": details})
}

// Done builds the normal terminal event.
func Done(totalTokens int, elapsed time.Duration, toolsUsed []string) Event {
	payload := map[string]any{
		"execution_time": elapsed.Seconds(),
		"tools_used":     toolsUsed,
	}
	if totalTokens > 0 {
		payload["total_tokens"] = totalTokens
	}
	return newEvent(EventDone, payload)
}

// Disconnect builds the terminal event for a dropped subscriber.
func Disconnect() Event {
	return newEvent(EventDisconnect, map[string]any{})
}

func newEvent(t EventType, payload map[string]any) Event {
	return Event{Type: t, Timestamp: time.Now(), Payload: payload}
}

// DefaultBufferSize is the per-turn channel capacity. Producers block
// once it fills, which is the backpressure mechanism.
const DefaultBufferSize = 64

// turnStream is the state for one turn.
type turnStream struct {
	ch     chan Event
	cancel context.CancelFunc
	once   sync.Once
	closed chan struct{}
}

// Broker owns the per-turn streams in one process.
type Broker struct {
	mu      sync.RWMutex
	turns   map[string]*turnStream
	bufSize int
}

// NewBroker creates a Broker.
func NewBroker() *Broker {
	return &Broker{turns: make(map[string]*turnStream), bufSize: DefaultBufferSize}
}

// Open registers a turn and returns a context derived from parent that is
// cancelled when the turn's subscriber disconnects, together with the
// publisher producers use.
func (b *Broker) Open(parent context.Context, turnID string) (context.Context, *Publisher) {
	ctx, cancel := context.WithCancel(parent)

	ts := &turnStream{
		ch:     make(chan Event, b.bufSize),
		cancel: cancel,
		closed: make(chan struct{}),
	}

	b.mu.Lock()
	b.turns[turnID] = ts
	b.mu.Unlock()

	return ctx, &Publisher{broker: b, turnID: turnID, ts: ts, ctx: ctx}
}

// Subscribe returns the event channel for a live turn, or nil if the turn
// is unknown. Late joiners receive only events published after this call
// drains begin; already-consumed events are gone.
func (b *Broker) Subscribe(turnID string) <-chan Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ts, ok := b.turns[turnID]
	if !ok {
		return nil
	}
	return ts.ch
}

// Cancel trips the turn's cancellation token. Idempotent.
func (b *Broker) Cancel(turnID string) {
	b.mu.RLock()
	ts, ok := b.turns[turnID]
	b.mu.RUnlock()
	if ok {
		ts.cancel()
	}
}

// closedTurnGrace is how long a finished turn stays subscribable. The
// buffered events survive the channel close, so a subscriber that
// raced the turn's completion can still drain them.
const closedTurnGrace = 5 * time.Minute

// close finalizes a turn: the channel is closed and the turn forgotten
// after a grace period.
func (b *Broker) close(turnID string, ts *turnStream) {
	ts.once.Do(func() {
		close(ts.closed)
		close(ts.ch)
	})
	time.AfterFunc(closedTurnGrace, func() {
		b.mu.Lock()
		delete(b.turns, turnID)
		b.mu.Unlock()
	})
}

// Publisher is the producer-side handle for one turn.
type Publisher struct {
	broker *Broker
	turnID string
	ts     *turnStream
	ctx    context.Context

	mu        sync.Mutex
	toolsUsed []string
	started   time.Time
}

// Publish sends an event, blocking if the buffer is full. Returns false
// when the turn is cancelled or already closed; producers should unwind.
func (p *Publisher) Publish(ev Event) bool {
	select {
	case <-p.ts.closed:
		return false
	case <-p.ctx.Done():
		// Only terminal events may pass after cancellation, so the
		// subscriber still sees the disconnect/error frame.
		if !ev.Terminal() {
			return false
		}
	default:
	}

	select {
	case p.ts.ch <- ev:
		return true
	case <-p.ts.closed:
		return false
	}
}

// RecordTool notes a tool name for the final done event.
func (p *Publisher) RecordTool(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.toolsUsed {
		if t == name {
			return
		}
	}
	p.toolsUsed = append(p.toolsUsed, name)
}

// ToolsUsed returns the recorded tool names in first-use order.
func (p *Publisher) ToolsUsed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.toolsUsed))
	copy(out, p.toolsUsed)
	return out
}

// Close publishes a terminal event and finalizes the turn.
func (p *Publisher) Close(final Event) {
	select {
	case p.ts.ch <- final:
	case <-p.ts.closed:
	}
	p.broker.close(p.turnID, p.ts)
}

// TurnID returns the turn this publisher belongs to.
func (p *Publisher) TurnID() string { return p.turnID }

type publisherKey struct{}

// WithPublisher attaches the turn's publisher to a context. The tool
// dispatcher does this so handlers that produce intermediate output
// (code execution) can stream it.
func WithPublisher(ctx context.Context, p *Publisher) context.Context {
	return context.WithValue(ctx, publisherKey{}, p)
}

// PublisherFromContext returns the attached publisher, or nil.
func PublisherFromContext(ctx context.Context) *Publisher {
	p, _ := ctx.Value(publisherKey{}).(*Publisher)
	return p
}
