package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"reels/internal/config"
	"reels/internal/service"
)

const (
	gridCellWidth  = 26
	gridCellHeight = 15
)

var (
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// View renders the UI
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	contentWidth := m.contentWidth()
	content := m.renderContent(contentWidth, m.height-1)
	status := m.renderStatus(config.StatusWidth, m.height-1)

	main := lipgloss.JoinHorizontal(lipgloss.Top, status, content)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.help.View(m.keys))
}

func (m *Model) renderContent(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height)
	center := style.Align(lipgloss.Center, lipgloss.Center)

	switch m.state {
	case StateLoading:
		return center.Render(m.spinner.View() + " Loading...")
	case StateJump:
		return center.Render(m.renderJump())
	case StateFeed:
		return style.Render(m.renderFeed(width, height))
	}

	if len(m.items) == 0 {
		return center.Render("No reels")
	}
	return style.Render(m.renderGrid(width, height))
}

func (m *Model) renderJump() string {
	title := lipgloss.NewStyle().Bold(true).MarginBottom(1).Render("Open reel")
	hint := dimStyle.MarginTop(1).Render("[Enter] open  [Esc] cancel")
	return lipgloss.JoinVertical(lipgloss.Center, title, m.jumpInput.View(), hint)
}

// ==================== Grid ====================

func (m *Model) gridColumns() int {
	return max(m.contentWidth()/gridCellWidth, 1)
}

func (m *Model) gridRows() int {
	return max((m.height-1)/gridCellHeight, 1)
}

func gridPosterSize() (int, int) {
	return gridCellWidth - 4, gridCellHeight - 5
}

func (m *Model) renderGrid(width, height int) string {
	cols, rows := m.gridColumns(), m.gridRows()
	first := max(m.cursor/cols-rows+1, 0) * cols

	var lines []string
	for r := 0; r < rows; r++ {
		var cells []string
		for c := 0; c < cols; c++ {
			i := first + r*cols + c
			if i >= len(m.items) {
				break
			}
			cells = append(cells, m.renderGridCell(m.items[i], i == m.cursor))
		}
		if len(cells) == 0 {
			break
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	footer := fmt.Sprintf("%d / %d", m.cursor+1, len(m.items))
	if m.fetching {
		footer += "  " + m.spinner.View()
	} else if m.hasMore {
		footer += "  [r] more"
	}
	lines = append(lines, dimStyle.Width(width).Align(lipgloss.Center).Render(footer))
	return fitLines(strings.Join(lines, "\n"), height)
}

func (m *Model) renderGridCell(item service.ItemView, selected bool) string {
	pw, ph := gridPosterSize()
	border := lipgloss.Color("238")
	if selected {
		border = lipgloss.Color("212")
	}

	poster := m.poster(item, pw, ph)
	title := titleStyle.Render(truncate(item.Title, pw))
	meta := dimStyle.Render(truncate(itemMeta(item), pw))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(pw+2).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, poster, title, meta))
}

// ==================== Feed ====================

// feedPosterSize is the poster area inside one full-height feed card.
func (m *Model) feedPosterSize() (int, int) {
	// 边框两行、进度条一行、文字四行
	return max(m.contentWidth()-4, 8), max(m.cardHeight()-7, 3)
}

// renderFeed draws the cards under the viewport, clipped at the scroll offset.
func (m *Model) renderFeed(width, height int) string {
	items := m.feedItems()
	if len(items) == 0 {
		return ""
	}
	h := m.cardHeight()
	top := m.scroll.top()
	first := top / h
	last := min((top+height-1)/h, len(items)-1)

	var lines []string
	for i := first; i <= last; i++ {
		card := fitLines(m.renderCard(items[i], width), h)
		lines = append(lines, strings.Split(card, "\n")...)
	}
	offset := top - first*h
	if offset >= len(lines) {
		return ""
	}
	lines = lines[offset:]
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderCard(item service.ItemView, width int) string {
	pw, ph := m.feedPosterSize()
	inner := width - 4

	title := titleStyle.Render(truncate(item.Title, inner))
	meta := dimStyle.Render(truncate(itemMeta(item), inner))
	cta := ""
	if item.CTA != nil {
		cta = highlightStyle.Render(truncate("→ "+item.CTA.Label, inner))
	}
	state := m.renderPlayerState(item.ID)

	body := lipgloss.NewStyle().Padding(0, 1).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.poster(item, pw, ph), title, meta, cta, state),
	)

	if ind, ok := m.opts.Board.Get(item.ID); ok {
		return ind.Frame(body, width)
	}
	// 没有播放器的卡片保持同样高度
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("238")).
		Width(width-2).
		Render(lipgloss.JoinVertical(lipgloss.Left, body, ""))
}

func (m *Model) renderPlayerState(id string) string {
	if m.session == nil {
		return ""
	}
	for _, p := range m.session.Players {
		if p.ID != id {
			continue
		}
		s := p.State
		if p.Muted {
			s += " · muted"
		} else if p.Audible {
			s += " · sound"
		}
		if m.session.Current != nil && m.session.Current.ID == id {
			return okStyle.Render("▶ " + s)
		}
		return dimStyle.Render(s)
	}
	return dimStyle.Render("not loaded")
}

func (m *Model) poster(item service.ItemView, width, height int) string {
	if img, ok := m.posters[posterKey(item.ID, width, height)]; ok && img != "" {
		return lipgloss.NewStyle().
			Width(width).
			Height(height).
			MaxWidth(width).
			MaxHeight(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(img)
	}
	return renderPlaceholder(width, height)
}

func itemMeta(item service.ItemView) string {
	var parts []string
	if item.DurationSec > 0 {
		parts = append(parts, formatDuration(item.DurationSec))
	}
	if len(item.Categories) > 0 {
		parts = append(parts, strings.Join(item.Categories, ", "))
	}
	if item.Loops > 0 {
		parts = append(parts, fmt.Sprintf("seen %dx", item.Loops))
	} else if item.Watched > 0 {
		parts = append(parts, fmt.Sprintf("%d%%", item.Watched))
	}
	return strings.Join(parts, " · ")
}

// ==================== Status ====================

func (m *Model) renderStatus(width, height int) string {
	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		Padding(1, 2)

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Render("REELS")
	divider := lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Render(strings.Repeat("─", width-4))

	mpvStatus := errStyle.Render(" N/A")
	if m.svc.MPVAvailable() {
		mpvStatus = " OK"
	}
	logStatus := " OFF"
	if m.loggingEnabled {
		logStatus = " ON"
	}
	logStatus = okStyle.Render(logStatus)

	lines := []string{
		title,
		dimStyle.Render(fmt.Sprintf("%d loaded", len(m.items))),
		divider,
	}

	if s := m.session; s != nil && s.Open {
		pos := fmt.Sprintf(" %d / %d", s.Index+1, s.Loaded)
		sound := "sound on"
		if s.GlobalMuted {
			sound = "muted"
		}
		feedState := "more on scroll"
		switch {
		case s.Fetching:
			feedState = "fetching..."
		case s.Exhausted:
			feedState = "end of feed"
		}
		lines = append(lines,
			highlightStyle.Render("Session:"),
			dimStyle.Render(pos),
			dimStyle.Render(" "+sound),
			dimStyle.Render(" "+feedState),
			dimStyle.Render(fmt.Sprintf(" %d players", len(s.Players))),
		)
		if s.Current != nil && s.Current.Link != "" {
			lines = append(lines, dimStyle.Render(truncate(" "+s.Current.Link, width-4)))
		}
		lines = append(lines, "", divider)
	}

	lines = append(lines,
		dimStyle.Render("Status:"),
		dimStyle.Render(" MPV:")+mpvStatus,
		dimStyle.Render(" Log:")+logStatus,
		"",
		dimStyle.Render(truncate(m.status, width-4)),
	)

	return style.Render(fitLines(strings.Join(lines, "\n"), height-2))
}

// ==================== Helpers ====================

// fitLines pads or cuts s to exactly n lines.
func fitLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) < n {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+3 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

func formatDuration(sec int64) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
