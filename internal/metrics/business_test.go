package metrics

import "testing"

func TestCollectorSnapshot(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	c := NewCollector("kv")
	c.Hit()
	c.Hit()
	c.Miss()
	c.Expire(3)
	c.Store()

	snap := c.Snapshot()
	if snap.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", snap.Hits)
	}
	if snap.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", snap.Misses)
	}
	if snap.Expired != 3 {
		t.Errorf("expected 3 expired, got %d", snap.Expired)
	}
	if snap.Stores != 1 {
		t.Errorf("expected 1 store, got %d", snap.Stores)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	a := NewCollector("kv")
	b := NewCollector("lookup")

	a.Hit()
	if got := b.Snapshot().Hits; got != 0 {
		t.Errorf("expected untouched collector to report 0 hits, got %d", got)
	}
}
