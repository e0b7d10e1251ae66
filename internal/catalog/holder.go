package catalog

import "sync/atomic"

// Holder publishes the current catalog snapshot to concurrent readers.
type Holder struct {
	cur atomic.Pointer[Catalog]
}

// NewHolder returns a Holder serving c.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.cur.Store(c)
	return h
}

// Current returns the active snapshot.
func (h *Holder) Current() *Catalog {
	return h.cur.Load()
}

// Replace swaps in a new snapshot.
func (h *Holder) Replace(c *Catalog) {
	h.cur.Store(c)
}
