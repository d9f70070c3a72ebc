package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndDrain(t *testing.T) {
	b := NewBroker()
	_, pub := b.Open(context.Background(), "t1")

	events := b.Subscribe("t1")
	require.NotNil(t, events)

	require.True(t, pub.Publish(Thinking("routing")))
	require.True(t, pub.Publish(TextDelta("hello")))
	pub.Close(Done(42, time.Second, []string{"search_literature"}))

	var types []EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventThinking, EventTextDelta, EventDone}, types)
}

func TestSubscribeUnknownTurn(t *testing.T) {
	b := NewBroker()
	assert.Nil(t, b.Subscribe("missing"))
}

func TestFinishedTurnStaysSubscribable(t *testing.T) {
	b := NewBroker()
	_, pub := b.Open(context.Background(), "t1")

	pub.Publish(TextDelta("already done"))
	pub.Close(Done(0, 0, nil))

	// A subscriber that arrives after the turn finished still drains
	// the buffered events.
	events := b.Subscribe("t1")
	require.NotNil(t, events)

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventTextDelta, ev.Type)

	ev, ok = <-events
	require.True(t, ok)
	assert.Equal(t, EventDone, ev.Type)
}

func TestCancelTripsTurnContext(t *testing.T) {
	b := NewBroker()
	ctx, pub := b.Open(context.Background(), "t1")

	b.Cancel("t1")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("turn context not cancelled")
	}

	// Non-terminal events are refused after cancellation; terminal ones
	// still pass so the subscriber sees the final frame.
	assert.False(t, pub.Publish(TextDelta("late")))
	assert.True(t, pub.Publish(Disconnect()))
}

func TestPublishBlocksWhenBufferFull(t *testing.T) {
	b := NewBroker()
	b.bufSize = 2
	_, pub := b.Open(context.Background(), "t1")

	require.True(t, pub.Publish(TextDelta("1")))
	require.True(t, pub.Publish(TextDelta("2")))

	blocked := make(chan bool, 1)
	go func() {
		blocked <- pub.Publish(TextDelta("3"))
	}()

	select {
	case <-blocked:
		t.Fatal("publish should block on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	// Draining one event unblocks the producer.
	<-b.Subscribe("t1")
	assert.True(t, <-blocked)
}

func TestRecordToolDedups(t *testing.T) {
	b := NewBroker()
	_, pub := b.Open(context.Background(), "t1")

	pub.RecordTool("a")
	pub.RecordTool("b")
	pub.RecordTool("a")

	assert.Equal(t, []string{"a", "b"}, pub.ToolsUsed())
}

func TestTerminalClassification(t *testing.T) {
	assert.True(t, Done(0, 0, nil).Terminal())
	assert.True(t, ErrorEvent("x", "").Terminal())
	assert.True(t, Disconnect().Terminal())
	assert.False(t, Thinking("x").Terminal())
	assert.False(t, ToolStart("t", nil).Terminal())
}

func TestPublisherContextRoundTrip(t *testing.T) {
	b := NewBroker()
	_, pub := b.Open(context.Background(), "t1")

	ctx := WithPublisher(context.Background(), pub)
	assert.Same(t, pub, PublisherFromContext(ctx))
	assert.Nil(t, PublisherFromContext(context.Background()))
}
