package mask

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

type memMaskStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*store.MaskEntry
}

func newMemMaskStore() *memMaskStore {
	return &memMaskStore{entries: make(map[uuid.UUID]*store.MaskEntry)}
}

func (s *memMaskStore) Holdings(_ context.Context, groupID uuid.UUID) ([]*store.MaskEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.MaskEntry
	for _, e := range s.entries {
		if e.GroupID == groupID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memMaskStore) Upsert(_ context.Context, e *store.MaskEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *e
	s.entries[e.MemberID] = &copied
	return nil
}

func (s *memMaskStore) Delete(_ context.Context, _, memberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, memberID)
	return nil
}

func member() *store.Member {
	return &store.Member{ID: store.NewID(), Role: store.RoleMember}
}

func TestGetIsStable(t *testing.T) {
	p := NewPool(store.NewID(), []string{"🦊", "🐸", "🐙"}, time.Hour, newMemMaskStore())
	m := member()

	first, changed, err := p.Get(context.Background(), m, false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("first draw should report a change")
	}
	m.LastMask = first

	second, changed, err := p.Get(context.Background(), m, false)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("mask changed without renew: %q -> %q", first, second)
	}
	if changed {
		t.Error("unchanged mask reported as changed")
	}
}

func TestRenewDrawsDifferentMask(t *testing.T) {
	p := NewPool(store.NewID(), []string{"🦊", "🐸"}, time.Hour, newMemMaskStore())
	m := member()

	first, _, err := p.Get(context.Background(), m, false)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := p.Get(context.Background(), m, true)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Errorf("renew returned the same mask %q", first)
	}
}

func TestMasksAreUniquePerGroup(t *testing.T) {
	universe := []string{"🦊", "🐸", "🐙", "🦉", "🐼"}
	p := NewPool(store.NewID(), universe, time.Hour, newMemMaskStore())

	seen := make(map[string]bool)
	for i := 0; i < len(universe); i++ {
		mask, _, err := p.Get(context.Background(), member(), false)
		if err != nil {
			t.Fatal(err)
		}
		if seen[mask] {
			t.Fatalf("mask %q handed out twice", mask)
		}
		seen[mask] = true
	}
}

func TestExhaustedPool(t *testing.T) {
	p := NewPool(store.NewID(), []string{"🦊", "🐸", "🐙"}, time.Hour, newMemMaskStore())

	for i := 0; i < 3; i++ {
		if _, _, err := p.Get(context.Background(), member(), false); err != nil {
			t.Fatal(err)
		}
	}
	_, _, err := p.Get(context.Background(), member(), false)
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("want ErrNotAvailable, got %v", err)
	}
}

func TestExpiredHoldingIsRecycled(t *testing.T) {
	p := NewPool(store.NewID(), []string{"🦊"}, time.Hour, newMemMaskStore())

	now := time.Now()
	p.now = func() time.Time { return now }

	idle := member()
	mask, _, err := p.Get(context.Background(), idle, false)
	if err != nil {
		t.Fatal(err)
	}

	// Within the TTL the single mask is taken.
	if _, _, err := p.Get(context.Background(), member(), false); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("want ErrNotAvailable, got %v", err)
	}

	p.now = func() time.Time { return now.Add(2 * time.Hour) }
	got, _, err := p.Get(context.Background(), member(), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != mask {
		t.Errorf("recycled mask = %q, want %q", got, mask)
	}
}

func TestPinnedMaskBypassesPool(t *testing.T) {
	p := NewPool(store.NewID(), []string{"🦊"}, time.Hour, newMemMaskStore())

	// Exhaust the universe first.
	if _, _, err := p.Get(context.Background(), member(), false); err != nil {
		t.Fatal(err)
	}

	pinned := member()
	pinned.PinnedMask = "👑"
	mask, _, err := p.Get(context.Background(), pinned, false)
	if err != nil {
		t.Fatal(err)
	}
	if mask != "👑" {
		t.Errorf("pinned mask = %q, want 👑", mask)
	}
}

func TestLoadRestoresHoldings(t *testing.T) {
	ms := newMemMaskStore()
	groupID := store.NewID()
	m := member()

	p := NewPool(groupID, []string{"🦊", "🐸"}, time.Hour, ms)
	mask, _, err := p.Get(context.Background(), m, false)
	if err != nil {
		t.Fatal(err)
	}

	restored := NewPool(groupID, []string{"🦊", "🐸"}, time.Hour, ms)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _, err := restored.Get(context.Background(), m, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != mask {
		t.Errorf("restored mask = %q, want %q", got, mask)
	}
}
