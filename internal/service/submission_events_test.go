package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmissionEventsLocalFanOut(t *testing.T) {
	hub := NewSubmissionEvents(nil, "", nil, testLogger())

	first, cleanupFirst := hub.Subscribe(1)
	second, cleanupSecond := hub.Subscribe(1)
	other, cleanupOther := hub.Subscribe(2)
	defer cleanupSecond()
	defer cleanupOther()

	hub.Publish(context.Background(), SubmissionEvent{SubmissionID: 1, From: "in_progress", To: "paused"})

	for _, ch := range []<-chan SubmissionEvent{first, second} {
		select {
		case event := <-ch:
			require.Equal(t, "paused", event.To)
			require.False(t, event.OccurredAt.IsZero())
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}
	}

	select {
	case event := <-other:
		t.Fatalf("unexpected event for another submission: %+v", event)
	default:
	}

	cleanupFirst()
	cleanupFirst()
	_, open := <-first
	require.False(t, open)
}

func TestSubmissionEventsCrossReplicaViaRedis(t *testing.T) {
	_, client := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin := NewSubmissionEvents(client, "gema:test", nil, testLogger())
	replica := NewSubmissionEvents(client, "gema:test", nil, testLogger())
	replica.Start(ctx)

	stream, cleanup := replica.Subscribe(7)
	defer cleanup()

	// The replica subscribes asynchronously, so keep publishing until it hears one.
	require.Eventually(t, func() bool {
		origin.Publish(ctx, SubmissionEvent{SubmissionID: 7, From: "in_progress", To: "submitted", Trigger: TriggerSweep})
		select {
		case event := <-stream:
			return event.To == "submitted" && event.Trigger == TriggerSweep
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
