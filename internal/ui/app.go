package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/progress"
	"reels/internal/service"
	"reels/internal/session"
)

type State int

const (
	StateLoading State = iota
	StateGrid
	StateFeed
	StateJump
)

// Options configures the TUI.
type Options struct {
	Board  *progress.Board
	Bridge *Bridge
	// OpenID opens a session on this item once the feed is loaded.
	OpenID string
	// OpenFirst opens a session on the first item when OpenID is empty.
	OpenFirst bool
	// Opener hands a download link to the OS.
	Opener func(url string) error
	// Copier puts a share link on the clipboard. Defaults to the system clipboard.
	Copier func(text string) error
}

type Model struct {
	ctx  context.Context
	svc  *service.ReelService
	opts Options

	width  int
	height int
	state  State

	items    []service.ItemView
	hasMore  bool
	fetching bool
	cursor   int

	session *service.SessionView
	scroll  scroll

	keys      keyMap
	help      help.Model
	jumpInput textinput.Model
	spinner   spinner.Model
	status    string

	posters        map[string]string
	loggingEnabled bool
}

type feedMsg struct {
	view *service.FeedView
	err  error
}

type posterMsg struct {
	key   string
	image string
}

type downloadMsg struct {
	url string
	err error
}

type shareMsg struct {
	url string
	err error
}

func New(ctx context.Context, svc *service.ReelService, opts Options) *Model {
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	if opts.Copier == nil {
		opts.Copier = clipboard.WriteAll
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		ctx:            ctx,
		svc:            svc,
		opts:           opts,
		state:          StateLoading,
		scroll:         newScroll(),
		keys:           newKeyMap(),
		help:           help.New(),
		jumpInput:      newJumpInput(),
		spinner:        sp,
		status:         "Loading feed...",
		posters:        make(map[string]string),
		loggingEnabled: logging.IsEnabled(),
	}
}

func newJumpInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "item id"
	ti.CharLimit = 64
	ti.Width = 30
	return ti
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadFeed(false),
		m.spinner.Tick,
		m.opts.Bridge.listen(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width - config.StatusWidth
		// 尺寸变化后封面要按新尺寸重画
		m.posters = make(map[string]string)
		ClearImageCache()
		if m.state == StateFeed && m.session != nil {
			m.scroll.jump(m.session.Index * m.cardHeight())
			m.updateLayout()
		}
		return m, m.loadVisiblePosters()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case feedMsg:
		m.fetching = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			if m.state == StateLoading {
				m.state = StateGrid
			}
			return m, nil
		}
		m.items = msg.view.Items
		m.hasMore = msg.view.HasMore
		m.status = fmt.Sprintf("%d reels", len(m.items))
		if m.state == StateLoading {
			m.state = StateGrid
			if id := m.startupItem(); id != "" {
				return m.openItem(id)
			}
		}
		return m, m.loadVisiblePosters()

	case scrollMsg:
		cmds := []tea.Cmd{m.opts.Bridge.listen()}
		if m.state == StateFeed {
			m.scroll.to(msg.index * m.cardHeight())
			if m.scroll.moving {
				cmds = append(cmds, tickScroll())
			}
		}
		return m, tea.Batch(cmds...)

	case scrollTickMsg:
		moving := m.scroll.step()
		m.updateLayout()
		if moving {
			return m, tickScroll()
		}
		return m, m.loadVisiblePosters()

	case sessionEventMsg:
		cmds := []tea.Cmd{m.opts.Bridge.listen()}
		m.onSessionEvent(session.Event(msg))
		if msg.Kind == session.EventFetch || msg.Kind == session.EventEnteredView {
			cmds = append(cmds, m.loadVisiblePosters())
		}
		return m, tea.Batch(cmds...)

	case posterMsg:
		m.posters[msg.key] = msg.image
		return m, nil

	case downloadMsg:
		if msg.err != nil {
			m.status = "Download: " + msg.err.Error()
		} else {
			m.status = "Download: " + msg.url
		}
		return m, nil

	case shareMsg:
		if msg.err != nil {
			m.status = "Share: " + msg.err.Error()
		} else {
			m.status = "Copied " + msg.url
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) startupItem() string {
	id := m.opts.OpenID
	if id == "" && m.opts.OpenFirst && len(m.items) > 0 {
		id = m.items[0].ID
	}
	m.opts.OpenID, m.opts.OpenFirst = "", false
	return id
}

func (m *Model) onSessionEvent(ev session.Event) {
	if m.state != StateFeed {
		return
	}
	m.session = m.svc.Session()
	switch ev.Kind {
	case session.EventError:
		m.status = fmt.Sprintf("Error on %s: %s", ev.ItemID, ev.Err)
	case session.EventFetch:
		m.status = fmt.Sprintf("+%d reels", ev.Added)
		if ev.Err != "" {
			m.status = "Fetch failed: " + ev.Err
		}
	case session.EventEnteredView:
		m.status = ev.Title
	case session.EventComplete:
		m.status = "Looping " + ev.Title
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == StateJump {
		return m.handleJumpKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.svc.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Log):
		m.loggingEnabled = !m.loggingEnabled
		logging.SetEnabled(m.loggingEnabled)
		return m, nil
	}

	switch m.state {
	case StateGrid:
		return m.handleGridKey(msg)
	case StateFeed:
		return m.handleFeedKey(msg)
	}
	return m, nil
}

func (m *Model) handleGridKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.gridColumns()
	switch {
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-cols)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(cols)
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(m.items) {
			return m.openItem(m.items[m.cursor].ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Jump):
		m.state = StateJump
		m.jumpInput.SetValue("")
		m.jumpInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.More):
		return m, m.loadFeed(true)
	case key.Matches(msg, m.keys.Download):
		if m.cursor < len(m.items) {
			return m, m.download(m.items[m.cursor].ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Share):
		if m.cursor < len(m.items) {
			return m, m.share(m.items[m.cursor].ID)
		}
		return m, nil
	default:
		return m, nil
	}

	// 接近末尾时自动加载下一页
	var cmds []tea.Cmd
	if m.hasMore && m.cursor >= len(m.items)-cols {
		cmds = append(cmds, m.loadFeed(true))
	}
	cmds = append(cmds, m.loadVisiblePosters())
	return m, tea.Batch(cmds...)
}

func (m *Model) moveCursor(delta int) {
	next := m.cursor + delta
	if next < 0 || next >= len(m.items) {
		return
	}
	m.cursor = next
}

func (m *Model) handleFeedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.svc.Navigate(session.Previous)
		m.session = m.svc.Session()
	case key.Matches(msg, m.keys.Down):
		if !m.svc.Navigate(session.Next).Moved && m.session != nil && m.session.Exhausted {
			m.status = "End of feed"
		}
		m.session = m.svc.Session()
	case key.Matches(msg, m.keys.Close):
		m.closeFeed()
		return m, m.loadVisiblePosters()
	case key.Matches(msg, m.keys.Mute):
		if m.svc.ToggleMute() {
			m.status = "Muted"
		} else {
			m.status = "Sound on"
		}
		m.session = m.svc.Session()
	case key.Matches(msg, m.keys.Toggle):
		if err := m.svc.TogglePlayback(); err != nil {
			m.status = playbackError(err)
		}
	case key.Matches(msg, m.keys.SeekBack):
		m.seekBy(-10)
	case key.Matches(msg, m.keys.SeekFwd):
		m.seekBy(10)
	case key.Matches(msg, m.keys.Download):
		return m, m.download("")
	case key.Matches(msg, m.keys.Share):
		return m, m.share("")
	}
	return m, nil
}

func (m *Model) handleJumpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.jumpInput.Blur()
		m.state = StateGrid
		return m, nil
	case "enter":
		id := m.jumpInput.Value()
		m.jumpInput.Blur()
		m.state = StateGrid
		return m.openItem(id)
	}
	var cmd tea.Cmd
	m.jumpInput, cmd = m.jumpInput.Update(msg)
	return m, cmd
}

func (m *Model) openItem(id string) (tea.Model, tea.Cmd) {
	v, err := m.svc.Open(m.ctx, id)
	if err != nil {
		var nf *feed.ItemNotFoundError
		if errors.As(err, &nf) {
			m.status = "Not in feed: " + id
		} else {
			m.status = "Open failed: " + err.Error()
		}
		return m, nil
	}
	m.state = StateFeed
	m.session = v
	m.scroll.jump(v.Index * m.cardHeight())
	m.updateLayout()
	if v.Current != nil {
		m.status = v.Current.Title
	}
	return m, m.loadVisiblePosters()
}

func (m *Model) closeFeed() {
	if m.session != nil && m.session.Current != nil {
		for i, it := range m.items {
			if it.ID == m.session.Current.ID {
				m.cursor = i
			}
		}
	}
	m.svc.Close()
	m.session = nil
	m.state = StateGrid
	fv := m.svc.Feed()
	m.items, m.hasMore = fv.Items, fv.HasMore
	m.status = fmt.Sprintf("%d reels", len(m.items))
}

func (m *Model) seekBy(delta float64) {
	if m.session == nil || m.session.Current == nil {
		return
	}
	pct := 0.0
	for _, p := range m.session.Players {
		if p.ID == m.session.Current.ID {
			pct = p.Percent
		}
	}
	pct = min(max(pct+delta, 0), 99)
	if err := m.svc.Seek(pct); err != nil {
		m.status = playbackError(err)
	}
}

func playbackError(err error) string {
	if errors.Is(err, session.ErrNotRealized) {
		return "Player still loading"
	}
	return "Playback: " + err.Error()
}

// cardHeight is one full viewport: a feed card fills the content column.
func (m *Model) cardHeight() int {
	h := m.height - 1
	if h < 8 {
		h = config.CardHeight
	}
	return h
}

func (m *Model) contentWidth() int {
	return max(m.width-config.StatusWidth, 20)
}

func (m *Model) feedItems() []service.ItemView {
	if m.session == nil {
		return nil
	}
	return m.session.Items
}

func (m *Model) updateLayout() {
	if m.state != StateFeed {
		return
	}
	h := m.cardHeight()
	m.svc.Controller().UpdateLayout(feedLayout(m.feedItems(), h, m.scroll.top(), h))
	m.session = m.svc.Session()
}
