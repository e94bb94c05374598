package peer

import (
	"testing"
	"time"
)

func testEvents(remote string) linkEvents {
	return linkEvents{q: newEventQueue(), remote: remote, gen: 1}
}

func TestStoppedLinkNeverCreatesChannel(t *testing.T) {
	f := newFakeFactory()
	prev := make(chan struct{})
	close(prev)

	for range 50 {
		l := newLink("b", 1, true)
		l.shutdown()
		l.run(f, testEvents("b"), prev)
	}
	f.expectNone(t, 20*time.Millisecond)
}

func TestStoppedLinkWaitsForPredecessor(t *testing.T) {
	f := newFakeFactory()
	prev := make(chan struct{})

	l := newLink("b", 2, false)
	go l.run(f, testEvents("b"), prev)
	l.shutdown()

	select {
	case <-l.done:
		t.Fatal("done closed while the previous channel is still open")
	case <-time.After(50 * time.Millisecond):
	}

	close(prev)
	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("done not closed after the previous channel closed")
	}
	f.expectNone(t, 20*time.Millisecond)
}

// A chain of links destroyed before their predecessors finished must still
// hand over one at a time.
func TestDestroyedChainKeepsOneChannelOpen(t *testing.T) {
	f := newFakeFactory()
	first := make(chan struct{})

	mid := newLink("b", 2, false)
	go mid.run(f, testEvents("b"), first)
	mid.shutdown()

	last := newLink("b", 3, false)
	go last.run(f, testEvents("b"), mid.done)

	f.expectNone(t, 50*time.Millisecond)

	close(first)
	f.next(t)
	if peak := f.peakFor("b"); peak != 1 {
		t.Errorf("peak open channels = %d, want 1", peak)
	}
	last.shutdown()
	<-last.done
}
