package snapshot

import "sync/atomic"

// Holder owns the currently served snapshot behind an atomic pointer.
// Readers borrow the snapshot per request via Load; a rebuild publishes a
// fully built replacement with a single pointer swap, so in-flight queries
// keep the snapshot they started with and never observe a partial one.
type Holder struct {
	cur atomic.Pointer[Snapshot]
}

// NewHolder returns an empty holder. Load returns nil until the first
// Publish, which callers must treat as "index unavailable".
func NewHolder() *Holder {
	return &Holder{}
}

// Load returns the current snapshot, or nil when none has been published.
func (h *Holder) Load() *Snapshot {
	return h.cur.Load()
}

// Publish replaces the served snapshot. The previous one is released to the
// garbage collector once the last in-flight reader drops it.
func (h *Holder) Publish(s *Snapshot) {
	h.cur.Store(s)
}
