package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunEventsFanOutToAllWatchers(t *testing.T) {
	r := NewRunRegistry()
	r.create("run-1")

	first, ok := r.Watch("run-1")
	require.True(t, ok)
	second, ok := r.Watch("run-1")
	require.True(t, ok)

	r.publish("run-1", Event{Type: EventProgress, Step: "segment_summary", Percent: 30})
	r.publish("run-1", Event{Type: EventProgress, Step: "executive", Percent: 70})
	r.finish("run-1", Event{Type: EventComplete, Percent: 100})

	for _, ch := range []<-chan Event{first, second} {
		got := collectEvents(t, ch)
		require.Len(t, got, 3)
		require.Equal(t, EventProgress, got[0].Type)
		require.Equal(t, 30, got[0].Percent)
		require.Equal(t, EventComplete, got[2].Type)
	}
}

func TestWatchReplaysHistoryMidRun(t *testing.T) {
	r := NewRunRegistry()
	r.create("run-1")
	r.publish("run-1", Event{Type: EventProgress, Step: "key_points", Percent: 40})

	ch, ok := r.Watch("run-1")
	require.True(t, ok)
	r.finish("run-1", Event{Type: EventComplete, Percent: 100})

	got := collectEvents(t, ch)
	require.Len(t, got, 2)
	require.Equal(t, "key_points", got[0].Step)
	require.Equal(t, EventComplete, got[1].Type)
}

func TestWatchAfterFinishSeesFullHistory(t *testing.T) {
	r := NewRunRegistry()
	r.create("run-1")
	r.publish("run-1", Event{Type: EventProgress, Percent: 50})
	r.finish("run-1", Event{Type: EventError, Message: "model unavailable"})

	ch, ok := r.Watch("run-1")
	require.True(t, ok)
	got := collectEvents(t, ch)
	require.Len(t, got, 2)
	require.Equal(t, EventError, got[1].Type)
	require.Equal(t, "model unavailable", got[1].Message)
}

func TestWatchUnknownRunID(t *testing.T) {
	r := NewRunRegistry()
	_, ok := r.Watch("missing")
	require.False(t, ok)

	r.publish("missing", Event{Type: EventProgress})
	r.finish("missing", Event{Type: EventComplete})
}
