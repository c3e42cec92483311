package session

import "sort"

// Placement is where one item sits in the scrollable column, in rows.
type Placement struct {
	ID     string
	Top    int
	Height int
}

// Layout is a snapshot of the scroll position and the observed items.
type Layout struct {
	ViewportTop    int
	ViewportHeight int
	Items          []Placement
}

type Transition struct {
	ID      string
	Entered bool
}

// Observer tracks which items intersect the margin-extended viewport by at least
// the threshold ratio and reports each crossing exactly once.
type Observer struct {
	threshold float64
	margin    float64

	observed  map[string]bool
	inside    map[string]bool
	connected bool
}

func NewObserver(threshold, margin float64) *Observer {
	if threshold <= 0 || threshold > 1 {
		threshold = 1
	}
	if margin < 0 {
		margin = 0
	}
	return &Observer{
		threshold: threshold,
		margin:    margin,
		observed:  make(map[string]bool),
		inside:    make(map[string]bool),
		connected: true,
	}
}

func (o *Observer) Observe(id string) {
	if o == nil || !o.connected {
		return
	}
	o.observed[id] = true
}

func (o *Observer) Unobserve(id string) {
	if o == nil {
		return
	}
	delete(o.observed, id)
	delete(o.inside, id)
}

func (o *Observer) Observing(id string) bool {
	return o != nil && o.observed[id]
}

func (o *Observer) Connected() bool {
	return o != nil && o.connected
}

// Disconnect stops all observation. Later updates report nothing.
func (o *Observer) Disconnect() {
	if o == nil {
		return
	}
	o.connected = false
	clear(o.observed)
	clear(o.inside)
}

// Update evaluates l and returns the crossings since the previous update.
// Leaves come first; among entries the item closest to the viewport center comes last.
func (o *Observer) Update(l Layout) []Transition {
	if !o.Connected() || l.ViewportHeight <= 0 {
		return nil
	}

	ext := int(float64(l.ViewportHeight) * o.margin)
	top := l.ViewportTop - ext
	bottom := l.ViewportTop + l.ViewportHeight + ext
	center := l.ViewportTop + l.ViewportHeight/2

	type entry struct {
		id   string
		dist int
	}
	var left []string
	var entered []entry
	seen := make(map[string]bool, len(l.Items))

	for _, p := range l.Items {
		if !o.observed[p.ID] || p.Height <= 0 {
			continue
		}
		seen[p.ID] = true
		visible := overlap(p.Top, p.Top+p.Height, top, bottom)
		in := float64(visible)/float64(p.Height) >= o.threshold

		switch {
		case in && !o.inside[p.ID]:
			o.inside[p.ID] = true
			entered = append(entered, entry{id: p.ID, dist: abs(p.Top + p.Height/2 - center)})
		case !in && o.inside[p.ID]:
			delete(o.inside, p.ID)
			left = append(left, p.ID)
		}
	}
	// Items missing from the layout are no longer on screen.
	for id := range o.inside {
		if !seen[id] {
			delete(o.inside, id)
			left = append(left, id)
		}
	}

	sort.Strings(left)
	sort.SliceStable(entered, func(i, j int) bool { return entered[i].dist > entered[j].dist })

	out := make([]Transition, 0, len(left)+len(entered))
	for _, id := range left {
		out = append(out, Transition{ID: id})
	}
	for _, e := range entered {
		out = append(out, Transition{ID: e.id, Entered: true})
	}
	return out
}

func overlap(aTop, aBottom, bTop, bBottom int) int {
	lo := max(aTop, bTop)
	hi := min(aBottom, bBottom)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
