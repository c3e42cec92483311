package session

import "reels/internal/feed"

// Paginator decides when the next page is due and guards against overlapping fetches.
// It is owned by the Controller and used only under its lock.
type Paginator struct {
	base      feed.Query
	threshold int

	inFlight  bool
	exhausted bool
	fetches   int
}

func NewPaginator(base feed.Query, threshold int) *Paginator {
	if threshold < 0 {
		threshold = 0
	}
	return &Paginator{base: base, threshold: threshold}
}

// Due reports whether a fetch should start with current pointing into a window of length items.
func (p *Paginator) Due(current, length int) bool {
	if p == nil || p.inFlight || p.exhausted || length == 0 {
		return false
	}
	return current >= length-1-p.threshold
}

// Begin marks a fetch in flight and returns its query, offset by the items already loaded.
func (p *Paginator) Begin(loaded int) feed.Query {
	p.inFlight = true
	p.fetches++
	q := p.base
	q.Offset = loaded
	return q
}

// Finish clears the in-flight flag. A successful page without more items
// disables the paginator for good.
func (p *Paginator) Finish(page feed.Page, err error) {
	p.inFlight = false
	if err == nil && !page.HasMore {
		p.exhausted = true
	}
}

// Stop disables the paginator; used on close.
func (p *Paginator) Stop() {
	if p == nil {
		return
	}
	p.exhausted = true
	p.inFlight = false
}

func (p *Paginator) InFlight() bool  { return p != nil && p.inFlight }
func (p *Paginator) Exhausted() bool { return p == nil || p.exhausted }
func (p *Paginator) Fetches() int {
	if p == nil {
		return 0
	}
	return p.fetches
}
