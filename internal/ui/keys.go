package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Open     key.Binding
	Close    key.Binding
	Mute     key.Binding
	Toggle   key.Binding
	SeekBack key.Binding
	SeekFwd  key.Binding
	Download key.Binding
	Share    key.Binding
	Jump     key.Binding
	More     key.Binding
	Log      key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
		Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Close:    key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "close")),
		Mute:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		Toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		SeekBack: key.NewBinding(key.WithKeys(","), key.WithHelp(",", "-10%")),
		SeekFwd:  key.NewBinding(key.WithKeys("."), key.WithHelp(".", "+10%")),
		Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Share:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "copy link")),
		Jump:     key.NewBinding(key.WithKeys("/", "g"), key.WithHelp("/", "jump to id")),
		More:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "load more")),
		Log:      key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "debug log")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Mute, k.Toggle, k.Close, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Open, k.Close, k.Jump, k.More},
		{k.Mute, k.Toggle, k.SeekBack, k.SeekFwd},
		{k.Download, k.Share, k.Log, k.Help, k.Quit},
	}
}
