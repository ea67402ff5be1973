package commissioning

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversInOrderPerSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()

	h.Publish(ScanStateChanged{State: "scanning"})
	h.Publish(ScanStateChanged{State: "finished"})

	first := (<-sub.Events).(ScanStateChanged)
	second := (<-sub.Events).(ScanStateChanged)
	require.Equal(t, "scanning", first.State)
	require.Equal(t, "finished", second.State)
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()

	for i := 0; i < subscriberQueueSize+5; i++ {
		h.Publish(ScanStateChanged{State: "scanning"})
	}

	require.Equal(t, 5, h.DroppedCount(sub))
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	h.Publish(ScanStateChanged{State: "scanning"})

	_, ok := <-sub.Events
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestHubDoesNotBlockPublisherOnSlowSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueSize*2; i++ {
			h.Publish(ScanStateChanged{State: "scanning"})
		}
		close(done)
	}()

	select {
	case <-done:
	default:
	}
	<-done
}
