package mask

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// ErrNotAvailable means every mask in the group's universe is held by
// an active member and none has aged out yet.
var ErrNotAvailable = errors.New("no mask is available in this group")

// Pool hands out per-group unique masks. Each member holds at most one
// mask; a holding not refreshed within the TTL is recyclable. Pinned
// masks bypass the pool entirely and carry no uniqueness guarantee.
//
// The pool is the authority while the process runs; the store is a
// write-through so holdings survive restarts.
type Pool struct {
	groupID  uuid.UUID
	universe []string
	ttl      time.Duration
	masks    store.MaskStore

	now func() time.Time

	mu       sync.Mutex
	holdings map[uuid.UUID]*holding
}

type holding struct {
	mask    string
	updated time.Time
}

// NewPool builds an empty pool; call Load before first use.
func NewPool(groupID uuid.UUID, universe []string, ttl time.Duration, masks store.MaskStore) *Pool {
	if len(universe) == 0 {
		universe = DefaultUniverse
	}
	return &Pool{
		groupID:  groupID,
		universe: universe,
		ttl:      ttl,
		masks:    masks,
		now:      time.Now,
		holdings: make(map[uuid.UUID]*holding),
	}
}

// Load restores persisted holdings. Masks no longer in the universe
// are dropped so a shrunk universe cannot leak stale holdings.
func (p *Pool) Load(ctx context.Context) error {
	entries, err := p.masks.Holdings(ctx, p.groupID)
	if err != nil {
		return fmt.Errorf("load mask holdings: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if !p.inUniverse(e.Mask) {
			continue
		}
		p.holdings[e.MemberID] = &holding{mask: e.Mask, updated: e.Updated}
	}
	return nil
}

// Get returns the member's mask. A pinned mask always wins. Otherwise
// the member's current holding is refreshed and returned, unless renew
// is set, in which case a different mask is drawn. The second result
// reports whether the returned mask differs from the member's previous
// one.
func (p *Pool) Get(ctx context.Context, m *store.Member, renew bool) (string, bool, error) {
	if m.PinnedMask != "" {
		return m.PinnedMask, m.PinnedMask != m.LastMask, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	cur := p.holdings[m.ID]
	if cur != nil && !renew {
		cur.updated = now
		if err := p.persist(ctx, m.ID, cur); err != nil {
			return "", false, err
		}
		return cur.mask, cur.mask != m.LastMask, nil
	}

	mask, ok := p.draw(m.ID, now)
	if !ok {
		return "", false, ErrNotAvailable
	}

	h := &holding{mask: mask, updated: now}
	p.holdings[m.ID] = h
	if err := p.persist(ctx, m.ID, h); err != nil {
		return "", false, err
	}
	return mask, mask != m.LastMask, nil
}

// Release frees the member's holding, e.g. when a pinned mask replaces
// it or the member leaves the group.
func (p *Pool) Release(ctx context.Context, memberID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.holdings[memberID]; !ok {
		return nil
	}
	delete(p.holdings, memberID)
	return p.masks.Delete(ctx, p.groupID, memberID)
}

// draw picks a random mask not held by anyone else within the TTL.
// Expired holders are evicted as a side effect.
func (p *Pool) draw(memberID uuid.UUID, now time.Time) (string, bool) {
	used := make(map[string]bool, len(p.holdings))
	for id, h := range p.holdings {
		if id == memberID {
			continue
		}
		if p.ttl > 0 && now.Sub(h.updated) > p.ttl {
			delete(p.holdings, id)
			continue
		}
		used[h.mask] = true
	}
	if old := p.holdings[memberID]; old != nil {
		// Renewing: the old mask goes back to the free set but must
		// not be redrawn for the same member.
		used[old.mask] = true
	}

	var free []string
	for _, mask := range p.universe {
		if !used[mask] {
			free = append(free, mask)
		}
	}
	if len(free) == 0 {
		return "", false
	}
	return free[rand.Intn(len(free))], true
}

func (p *Pool) persist(ctx context.Context, memberID uuid.UUID, h *holding) error {
	return p.masks.Upsert(ctx, &store.MaskEntry{
		GroupID:  p.groupID,
		MemberID: memberID,
		Mask:     h.mask,
		Updated:  h.updated,
	})
}

func (p *Pool) inUniverse(mask string) bool {
	for _, m := range p.universe {
		if m == mask {
			return true
		}
	}
	return false
}
