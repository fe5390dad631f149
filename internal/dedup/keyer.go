// Package dedup tracks which event identifiers are already stored or already seen in a run.
package dedup

import (
	"sync"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

// Keyer answers "is this uid already known?" for the duration of one run.
// The existing set is loaded once from storage; uids seen during the run can be
// added with Mark. It is safe for concurrent use.
type Keyer struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKeyer copies existing so later Marks never mutate the caller's map.
func NewKeyer(existing map[string]struct{}) *Keyer {
	seen := make(map[string]struct{}, len(existing))
	for uid := range existing {
		seen[uid] = struct{}{}
	}
	return &Keyer{seen: seen}
}

// Seen reports whether uid is known.
func (k *Keyer) Seen(uid string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.seen[uid]
	return ok
}

// Mark records uids as known.
func (k *Keyer) Mark(uids ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, uid := range uids {
		k.seen[uid] = struct{}{}
	}
}

// Len returns the number of known uids.
func (k *Keyer) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.seen)
}

// Filter drops events whose uid is known. Order is preserved.
func (k *Keyer) Filter(events []*domain.Event) []*domain.Event {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*domain.Event, 0, len(events))
	for _, e := range events {
		if _, ok := k.seen[e.UID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// Dedupe keeps the first occurrence of each uid in batch, preserving order.
func Dedupe(batch []*domain.Event) []*domain.Event {
	seen := make(map[string]struct{}, len(batch))
	out := make([]*domain.Event, 0, len(batch))
	for _, e := range batch {
		if e == nil {
			continue
		}
		if _, ok := seen[e.UID]; ok {
			continue
		}
		seen[e.UID] = struct{}{}
		out = append(out, e)
	}
	return out
}
