package notifier

import (
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu      sync.Mutex
	batches []struct {
		entity Entity
		op     Op
		ids    []int64
	}
}

func (c *capture) Notify(entity Entity, op Op, ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, struct {
		entity Entity
		op     Op
		ids    []int64
	}{entity, op, ids})
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestCoalescesAndDeduplicates(t *testing.T) {
	sink := &capture{}
	n := New(sink)
	defer n.Stop()

	n.Post(EntityMedia, OpAdded, 3)
	n.Post(EntityMedia, OpAdded, 1)
	n.Post(EntityMedia, OpAdded, 3)
	n.Post(EntityMedia, OpAdded, 2)

	deadline := time.Now().Add(3 * DebounceWindow)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 1 {
		t.Fatalf("expected one coalesced batch, got %d", len(sink.batches))
	}
	b := sink.batches[0]
	if b.entity != EntityMedia || b.op != OpAdded {
		t.Errorf("wrong batch routing: %+v", b)
	}
	if len(b.ids) != 3 || b.ids[0] != 1 || b.ids[1] != 2 || b.ids[2] != 3 {
		t.Errorf("expected deduplicated ascending ids [1 2 3], got %v", b.ids)
	}
}

func TestRemovalCancelsPendingAdd(t *testing.T) {
	sink := &capture{}
	n := New(sink)

	n.Post(EntityAlbum, OpAdded, 7)
	n.Post(EntityAlbum, OpRemoved, 7)
	n.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		if b.op == OpAdded {
			t.Errorf("add delivered for a row removed within the window: %v", b.ids)
		}
	}
}

func TestStopDrainsSynchronously(t *testing.T) {
	sink := &capture{}
	n := New(sink)

	n.Post(EntityArtist, OpModified, 1)
	n.Post(EntityPlaylist, OpRemoved, 2)
	n.Stop()

	if sink.count() != 2 {
		t.Errorf("expected 2 drained batches after Stop, got %d", sink.count())
	}

	// posts after stop are dropped
	n.Post(EntityMedia, OpAdded, 9)
	time.Sleep(2 * DebounceWindow)
	if sink.count() != 2 {
		t.Error("post after Stop was delivered")
	}
}
