package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"reels/internal/service"
)

// Run starts the TUI and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, svc *service.ReelService, opts Options) error {
	p := tea.NewProgram(
		New(ctx, svc, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		svc.Close()
		return nil
	}
	return err
}
