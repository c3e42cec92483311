// Package progress draws the per-item playback overlay: a rounded border and a bar.
package progress

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const accent = "#FF5500"

// Indicator holds nothing but the current percentage of one item.
type Indicator struct {
	mu      sync.RWMutex
	id      string
	percent float64
	bar     progress.Model
}

func New(id string) *Indicator {
	return &Indicator{
		id:  id,
		bar: progress.New(progress.WithSolidFill(accent), progress.WithoutPercentage()),
	}
}

func (i *Indicator) ID() string {
	return i.id
}

// Set stores pct clamped to 0..100.
func (i *Indicator) Set(pct float64) {
	switch {
	case pct != pct, pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	i.mu.Lock()
	i.percent = pct
	i.mu.Unlock()
}

func (i *Indicator) Reset() {
	i.Set(0)
}

func (i *Indicator) Percent() float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.percent
}

// Bar renders only the bar, width cells wide.
func (i *Indicator) Bar(width int) string {
	if width < 1 {
		width = 1
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	bar := i.bar
	bar.Width = width
	return bar.ViewAs(i.percent / 100)
}

// Frame wraps content in the accent border with the bar and percentage underneath.
func (i *Indicator) Frame(content string, width int) string {
	inner := width - 2
	if inner < 4 {
		inner = 4
	}
	label := fmt.Sprintf("%3.0f%%", i.Percent())
	footer := lipgloss.JoinHorizontal(lipgloss.Center, i.Bar(inner-len(label)-1), " ", label)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(accent)).
		Width(inner).
		Render(lipgloss.JoinVertical(lipgloss.Left, content, footer))
}

// Board is the set of indicators currently on screen, keyed by item id.
type Board struct {
	mu    sync.RWMutex
	items map[string]*Indicator
}

func NewBoard() *Board {
	return &Board{items: make(map[string]*Indicator)}
}

// Attach places ind on the board, replacing any indicator left for the same id.
func (b *Board) Attach(ind *Indicator) {
	if b == nil || ind == nil {
		return
	}
	b.mu.Lock()
	b.items[ind.id] = ind
	b.mu.Unlock()
}

// Detach removes the indicator for id. Only the exact indicator is removed when one is given.
func (b *Board) Detach(id string, ind *Indicator) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.items[id]; ok && (ind == nil || cur == ind) {
		delete(b.items, id)
	}
}

func (b *Board) Get(id string) (*Indicator, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	ind, ok := b.items[id]
	return ind, ok
}

func (b *Board) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
