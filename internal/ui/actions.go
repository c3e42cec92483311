package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"reels/internal/service"
)

func (m *Model) loadFeed(more bool) tea.Cmd {
	if m.fetching {
		return nil
	}
	m.fetching = true
	ctx := m.ctx
	return func() tea.Msg {
		var v *service.FeedView
		var err error
		if more {
			v, err = m.svc.LoadMore(ctx)
		} else {
			v, err = m.svc.Load(ctx)
		}
		return feedMsg{view: v, err: err}
	}
}

func posterKey(id string, width, height int) string {
	return fmt.Sprintf("%s@%dx%d", id, width, height)
}

func (m *Model) loadPoster(item service.ItemView, width, height int) tea.Cmd {
	k := posterKey(item.ID, width, height)
	if _, ok := m.posters[k]; ok || item.PosterURL == "" {
		return nil
	}
	// 占位，避免重复请求
	m.posters[k] = ""
	ctx, url := m.ctx, item.PosterURL
	return func() tea.Msg {
		return posterMsg{key: k, image: RenderPoster(ctx, url, width, height)}
	}
}

// loadVisiblePosters requests posters for what is on screen, plus one row or card either side.
func (m *Model) loadVisiblePosters() tea.Cmd {
	if m.width == 0 {
		return nil
	}
	var cmds []tea.Cmd
	switch m.state {
	case StateGrid:
		cols := m.gridColumns()
		w, h := gridPosterSize()
		row := m.cursor / cols
		start := max((row-1)*cols, 0)
		end := min((row+m.gridRows()+1)*cols, len(m.items))
		for i := start; i < end; i++ {
			cmds = append(cmds, m.loadPoster(m.items[i], w, h))
		}
	case StateFeed:
		if m.session == nil {
			return nil
		}
		w, h := m.feedPosterSize()
		items := m.feedItems()
		for i := m.session.Index - 1; i <= m.session.Index+1; i++ {
			if i >= 0 && i < len(items) {
				cmds = append(cmds, m.loadPoster(items[i], w, h))
			}
		}
	}
	return tea.Batch(cmds...)
}

// download resolves the link for id (the centered item when empty) and opens it.
func (m *Model) download(id string) tea.Cmd {
	opener := m.opts.Opener
	return func() tea.Msg {
		d, err := m.svc.Download(id)
		if err != nil {
			return downloadMsg{err: err}
		}
		if opener != nil {
			if err := opener(d.URL); err != nil {
				return downloadMsg{url: d.URL, err: err}
			}
		}
		return downloadMsg{url: d.URL}
	}
}

// share copies the item's deep link to the clipboard.
func (m *Model) share(id string) tea.Cmd {
	copier := m.opts.Copier
	return func() tea.Msg {
		res, err := m.svc.Share(id)
		if err != nil {
			return shareMsg{err: err}
		}
		if err := copier(res.URL); err != nil {
			return shareMsg{url: res.URL, err: err}
		}
		return shareMsg{url: res.URL}
	}
}
