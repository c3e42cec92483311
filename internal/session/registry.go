package session

import (
	"sort"

	"reels/internal/feed"
	"reels/internal/metrics"
	"reels/internal/player"
)

// Registry maps item id to its realized handle. Only the Controller touches it,
// always under the controller lock.
type Registry struct {
	handles map[string]*player.Handle
	// creations in flight, keyed by item id, valued by ticket
	pending map[string]uint64
	ticket  uint64
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*player.Handle),
		pending: make(map[string]uint64),
	}
}

func (r *Registry) Get(id string) (*player.Handle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.handles[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.handles)
}

// IDs returns the realized ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Put(h *player.Handle) {
	r.handles[h.ID()] = h
	metrics.RealizedPlayers.Set(float64(len(r.handles)))
}

// Evict destroys and forgets the handle for id.
func (r *Registry) Evict(id string) {
	h, ok := r.handles[id]
	if !ok {
		return
	}
	delete(r.handles, id)
	_ = h.Destroy()
	metrics.PlayerDestroysTotal.Inc()
	metrics.RealizedPlayers.Set(float64(len(r.handles)))
}

// Reserve marks a creation for id as in flight and returns its ticket,
// or false when one is already running.
func (r *Registry) Reserve(id string) (uint64, bool) {
	if _, busy := r.pending[id]; busy {
		return 0, false
	}
	r.ticket++
	r.pending[id] = r.ticket
	return r.ticket, true
}

// Release clears the reservation for id if it still belongs to ticket.
func (r *Registry) Release(id string, ticket uint64) bool {
	if cur, ok := r.pending[id]; ok && cur == ticket {
		delete(r.pending, id)
		return true
	}
	return false
}

func (r *Registry) Pending(id string) bool {
	_, ok := r.pending[id]
	return ok
}

// Clear destroys every handle and drops all reservations.
func (r *Registry) Clear() {
	for id := range r.handles {
		r.Evict(id)
	}
	clear(r.pending)
}

// realizationWindow returns the ids at current-radius..current+radius that exist in w.
func realizationWindow(w *feed.Window, current, radius int) map[string]bool {
	set := make(map[string]bool, 2*radius+1)
	for i := current - radius; i <= current+radius; i++ {
		if it, ok := w.At(i); ok {
			set[it.ID] = true
		}
	}
	return set
}
