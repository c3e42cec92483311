package ui

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"

	"reels/internal/config"
	"reels/internal/service"
	"reels/internal/session"
)

type scrollTickMsg struct{}

// scroll animates the feed column toward a target row with a spring.
type scroll struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
	target float64
	moving bool
}

func newScroll() scroll {
	fps := int(time.Second / config.ScrollStep)
	return scroll{spring: harmonica.NewSpring(harmonica.FPS(fps), 9.0, 1.0)}
}

// jump places the column at row without animating.
func (s *scroll) jump(row int) {
	s.pos = float64(row)
	s.target = s.pos
	s.vel = 0
	s.moving = false
}

func (s *scroll) to(row int) {
	s.target = float64(row)
	s.moving = math.Abs(s.pos-s.target) >= 0.5
}

// step advances one frame and reports whether the animation is still running.
func (s *scroll) step() bool {
	if !s.moving {
		return false
	}
	s.pos, s.vel = s.spring.Update(s.pos, s.vel, s.target)
	if math.Abs(s.pos-s.target) < 0.5 && math.Abs(s.vel) < 0.5 {
		s.pos = s.target
		s.vel = 0
		s.moving = false
	}
	return s.moving
}

func (s *scroll) top() int {
	return max(int(math.Round(s.pos)), 0)
}

func tickScroll() tea.Cmd {
	return tea.Tick(config.ScrollStep, func(time.Time) tea.Msg { return scrollTickMsg{} })
}

// feedLayout places the cards one under another, each cardHeight rows tall.
func feedLayout(items []service.ItemView, cardHeight, top, viewHeight int) session.Layout {
	l := session.Layout{ViewportTop: top, ViewportHeight: viewHeight, Items: make([]session.Placement, len(items))}
	for i, it := range items {
		l.Items[i] = session.Placement{ID: it.ID, Top: i * cardHeight, Height: cardHeight}
	}
	return l
}
