package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("req-1")
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "req-1", sub.RequestID)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_Notify_MatchingRequest(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("req-1")
	b.Notify("req-1", analyzer.Progress{Package: "react", Stage: analyzer.StageBundling})

	select {
	case p := <-sub.Events:
		assert.Equal(t, analyzer.StageBundling, p.Stage)
		assert.Equal(t, "react", p.Package)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected progress not received")
	}
}

func TestBroadcaster_Notify_OtherRequest(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("req-1")
	b.Notify("req-2", analyzer.Progress{Stage: analyzer.StageResolving})
	b.Notify("", analyzer.Progress{Stage: analyzer.StageResolving})

	select {
	case <-sub.Events:
		t.Fatal("should not receive progress of another request")
	case <-time.After(50 * time.Millisecond):
		// Expected
	}
}

func TestBroadcaster_Notify_DropsWhenFull(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("req-1")
	for range eventBuffer + 10 {
		b.Notify("req-1", analyzer.Progress{Stage: analyzer.StageBundling})
	}
	assert.Len(t, sub.Events, eventBuffer)
}

func TestBroadcaster_Finish(t *testing.T) {
	b := New()
	defer b.Close()

	first := b.Subscribe("req-1")
	second := b.Subscribe("req-1")
	other := b.Subscribe("req-2")

	b.Notify("req-1", analyzer.Progress{Stage: analyzer.StageDone})
	b.Finish("req-1")
	assert.Equal(t, 1, b.SubscriberCount())

	for _, sub := range []*Subscriber{first, second} {
		p, ok := <-sub.Events
		require.True(t, ok, "buffered report should survive Finish")
		assert.Equal(t, analyzer.StageDone, p.Stage)
		_, ok = <-sub.Events
		assert.False(t, ok, "channel should be closed")
	}

	// Unsubscribing a finished subscription is a no-op.
	b.Unsubscribe(first.ID)
	b.Unsubscribe(other.ID)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe("req-1")

	b.Close()
	_, ok := <-sub.Events
	assert.False(t, ok)

	assert.Nil(t, b.Subscribe("req-2"))
	b.Notify("req-1", analyzer.Progress{})
	b.Close()
}
