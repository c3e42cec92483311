package feed

// Window is the ordered list of items a session scrolls through.
// It only grows by Append and never holds the same id twice.
type Window struct {
	items []Item
	index map[string]int
}

func NewWindow(items []Item) *Window {
	w := &Window{index: make(map[string]int, len(items))}
	w.Append(items)
	return w
}

// Append adds the items whose ids are not present yet, keeping their order,
// and returns the ones actually added.
func (w *Window) Append(items []Item) []Item {
	if w.index == nil {
		w.index = make(map[string]int)
	}
	var added []Item
	for _, it := range items {
		if _, dup := w.index[it.ID]; dup {
			continue
		}
		w.index[it.ID] = len(w.items)
		w.items = append(w.items, it)
		added = append(added, it)
	}
	return added
}

func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	return len(w.items)
}

// IndexOf returns the position of id, or -1.
func (w *Window) IndexOf(id string) int {
	if w == nil {
		return -1
	}
	if i, ok := w.index[id]; ok {
		return i
	}
	return -1
}

func (w *Window) At(i int) (Item, bool) {
	if w == nil || i < 0 || i >= len(w.items) {
		return Item{}, false
	}
	return w.items[i], true
}

func (w *Window) Get(id string) (Item, bool) {
	return w.At(w.IndexOf(id))
}

func (w *Window) Contains(id string) bool {
	return w.IndexOf(id) >= 0
}

// Items returns a copy of the ordered items.
func (w *Window) Items() []Item {
	if w == nil {
		return nil
	}
	out := make([]Item, len(w.items))
	copy(out, w.items)
	return out
}

// IDs returns the ordered ids.
func (w *Window) IDs() []string {
	if w == nil {
		return nil
	}
	out := make([]string, len(w.items))
	for i, it := range w.items {
		out[i] = it.ID
	}
	return out
}
