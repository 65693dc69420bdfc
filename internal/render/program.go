package render

import (
	"context"
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/roshanis/shopagent/internal/view"
)

const refreshInterval = time.Second

// Observer is the part of view.Machine the interactive display drives.
type Observer interface {
	View() view.View
	Changes() (<-chan struct{}, func())
	Cancel(ctx context.Context)
}

// changeMsg signals a store mutation.
type changeMsg struct{}

// tickMsg refreshes elapsed time between status updates.
type tickMsg time.Time

type watchModel struct {
	ctx       context.Context
	obs       Observer
	renderer  *Renderer
	changes   <-chan struct{}
	current   view.View
	cancelled bool
}

func newWatchModel(ctx context.Context, obs Observer, r *Renderer, changes <-chan struct{}) watchModel {
	return watchModel{
		ctx:      ctx,
		obs:      obs,
		renderer: r,
		changes:  changes,
		current:  obs.View(),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.changes), tickCmd())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.obs.Cancel(m.ctx)
			m.cancelled = true
			m.current = m.obs.View()
			return m, tea.Quit
		}

	case changeMsg:
		m.current = m.obs.View()
		if m.current.State != view.StateObserving {
			return m, tea.Quit
		}
		return m, waitForChange(m.changes)

	case tickMsg:
		m.current = m.obs.View()
		if m.current.State != view.StateObserving {
			return m, tea.Quit
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m watchModel) View() tea.View {
	if m.cancelled {
		return tea.NewView(m.renderer.theme.hintStyle().Render("Evaluation cancelled.") + "\n")
	}
	return tea.NewView(m.renderer.Render(m.current))
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changeMsg{}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Watch runs the interactive display until the observation leaves the
// observing state or the user cancels it. It returns the final view.
func Watch(ctx context.Context, obs Observer, r *Renderer) (view.View, error) {
	changes, stop := obs.Changes()
	defer stop()

	p := tea.NewProgram(newWatchModel(ctx, obs, r, changes))
	if _, err := p.Run(); err != nil {
		return obs.View(), fmt.Errorf("progress UI error: %w", err)
	}
	return obs.View(), nil
}
