package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInboxDeliversToEverySubscriber(t *testing.T) {
	b := NewInbox()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish("hello\n")

	require.Equal(t, "hello\n", <-ch1)
	require.Equal(t, "hello\n", <-ch2)
}

func TestInboxDropsForSlowSubscriber(t *testing.T) {
	b := NewInbox()
	slow, cancelSlow := b.Subscribe()
	defer cancelSlow()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish("line\n")
	}

	// A subscriber that never drained holds at most its buffer; the
	// overflow was dropped, not queued.
	require.Len(t, slow, subscriberBuffer)

	// A fresh subscriber still receives new lines immediately.
	fresh, cancelFresh := b.Subscribe()
	defer cancelFresh()
	b.Publish("after\n")
	require.Equal(t, "after\n", <-fresh)
}

func TestInboxCancelDetaches(t *testing.T) {
	b := NewInbox()
	ch, cancel := b.Subscribe()
	cancel()

	_, open := <-ch
	require.False(t, open, "canceled subscription must be closed")

	b.Publish("ignored\n")
}

func TestInboxPumpSplitsLines(t *testing.T) {
	b := NewInbox()
	ch, cancelFn := b.Subscribe()
	defer cancelFn()

	b.Pump(strings.NewReader("one\ntwo\n"))

	require.Equal(t, "one\n", <-ch)
	require.Equal(t, "two\n", <-ch)
}

func TestInboxCloseClosesSubscribers(t *testing.T) {
	b := NewInbox()
	ch, _ := b.Subscribe()
	b.Close()

	_, open := <-ch
	require.False(t, open)

	// Subscribing after Close yields an already-closed channel.
	ch2, cancel := b.Subscribe()
	cancel()
	_, open = <-ch2
	require.False(t, open)
}
