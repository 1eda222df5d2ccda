// Package memory provides an in-memory Repository for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
)

// Repository keeps identities, targets and records in process memory.
// Method semantics mirror the Postgres implementation row for row.
type Repository struct {
	mu         sync.Mutex
	identities map[int64]*crawl.CrawlerIdentity
	targets    map[int64]*crawl.TargetAccount
	heavy      []crawl.HeavyRecord
	light      []crawl.LightRecord
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		identities: make(map[int64]*crawl.CrawlerIdentity),
		targets:    make(map[int64]*crawl.TargetAccount),
	}
}

// AddIdentity seeds one identity.
func (r *Repository) AddIdentity(id crawl.CrawlerIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := id
	r.identities[id.ID] = &cp
}

// AddTarget seeds one target.
func (r *Repository) AddTarget(t crawl.TargetAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := t
	r.targets[t.ID] = &cp
}

// NextIdentity returns the requested identity when alive, otherwise the
// least recently used alive identity.
func (r *Repository) NextIdentity(_ context.Context, requestedID *int64) (crawl.CrawlerIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestedID != nil {
		id, ok := r.identities[*requestedID]
		if !ok || !id.Alive {
			return crawl.CrawlerIdentity{}, crawl.ErrNoIdentity
		}
		return *id, nil
	}

	var best *crawl.CrawlerIdentity
	for _, id := range r.identities {
		if !id.Alive {
			continue
		}
		if best == nil || lessTime(id.LastUsedAt, best.LastUsedAt) {
			best = id
		}
	}
	if best == nil {
		return crawl.CrawlerIdentity{}, crawl.ErrNoIdentity
	}
	return *best, nil
}

// NextTargets orders candidates the way the scheduler expects: targets
// already assigned to the identity first, never-crawled before crawled,
// then priority descending, then least recently crawled.
func (r *Repository) NextTargets(_ context.Context, identityID int64, max int, recrawl bool) ([]crawl.TargetAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]crawl.TargetAccount, 0, len(r.targets))
	for _, t := range r.targets {
		if !t.Alive {
			continue
		}
		if t.AssignedIdentityID != nil && *t.AssignedIdentityID != identityID {
			continue
		}
		if !recrawl && t.LastCrawledAt != nil {
			continue
		}
		candidates = append(candidates, *t)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if aAssigned, bAssigned := assignedTo(a, identityID), assignedTo(b, identityID); aAssigned != bAssigned {
			return aAssigned
		}
		if aNever, bNever := a.LastCrawledAt == nil, b.LastCrawledAt == nil; aNever != bNever {
			return aNever
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.LastCrawledAt != nil && b.LastCrawledAt != nil && !a.LastCrawledAt.Equal(*b.LastCrawledAt) {
			return a.LastCrawledAt.Before(*b.LastCrawledAt)
		}
		return a.ID < b.ID
	})

	if max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}

// SaveHeavy appends a heavy record.
func (r *Repository) SaveHeavy(_ context.Context, rec crawl.HeavyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heavy = append(r.heavy, rec)
	return nil
}

// SaveLight appends a light record.
func (r *Repository) SaveLight(_ context.Context, rec crawl.LightRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.light = append(r.light, rec)
	return nil
}

// MarkTargetDead clears the target's liveness flag.
func (r *Repository) MarkTargetDead(_ context.Context, targetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.targets[targetID]; ok {
		t.Alive = false
	}
	return nil
}

// TouchTarget advances last_crawled_at, never backwards.
func (r *Repository) TouchTarget(_ context.Context, targetID int64, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.targets[targetID]; ok {
		if t.LastCrawledAt == nil || t.LastCrawledAt.Before(ts) {
			cp := ts
			t.LastCrawledAt = &cp
		}
	}
	return nil
}

// AssignTarget claims the target for the identity. A claim held by another
// identity is reported, not overwritten.
func (r *Repository) AssignTarget(_ context.Context, targetID, identityID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.targets[targetID]; ok {
		if t.AssignedIdentityID != nil && *t.AssignedIdentityID != identityID {
			return crawl.ErrTargetClaimed
		}
		cp := identityID
		t.AssignedIdentityID = &cp
	}
	return nil
}

// MarkIdentityDead clears the identity's liveness flag.
func (r *Repository) MarkIdentityDead(_ context.Context, identityID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.identities[identityID]; ok {
		id.Alive = false
	}
	return nil
}

// TouchIdentity advances the identity's last-used timestamp.
func (r *Repository) TouchIdentity(_ context.Context, identityID int64, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.identities[identityID]; ok {
		if id.LastUsedAt == nil || id.LastUsedAt.Before(ts) {
			cp := ts
			id.LastUsedAt = &cp
		}
	}
	return nil
}

// Identity returns a copy of the identity row, for assertions.
func (r *Repository) Identity(id int64) (crawl.CrawlerIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.identities[id]
	if !ok {
		return crawl.CrawlerIdentity{}, false
	}
	return *v, true
}

// Target returns a copy of the target row, for assertions.
func (r *Repository) Target(id int64) (crawl.TargetAccount, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.targets[id]
	if !ok {
		return crawl.TargetAccount{}, false
	}
	return *v, true
}

// HeavyRecords returns a copy of the saved heavy records.
func (r *Repository) HeavyRecords() []crawl.HeavyRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]crawl.HeavyRecord(nil), r.heavy...)
}

// LightRecords returns a copy of the saved light records.
func (r *Repository) LightRecords() []crawl.LightRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]crawl.LightRecord(nil), r.light...)
}

func assignedTo(t crawl.TargetAccount, identityID int64) bool {
	return t.AssignedIdentityID != nil && *t.AssignedIdentityID == identityID
}

func lessTime(a, b *time.Time) bool {
	switch {
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}
