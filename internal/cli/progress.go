package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/service"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries a driver event into the UI.
type eventMsg service.Event

// progressModel is the bubbletea model for a dataset run.
type progressModel struct {
	title     string
	total     int
	position  int
	processed int
	skipped   int
	failed    int
	lastID    string
	progress  progress.Model
	theme     Theme
	cancel    context.CancelFunc
	done      bool
	quitting  bool
	err       error
}

func newProgressModel(title string, cancel context.CancelFunc) progressModel {
	return progressModel{
		title: title,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme:  defaultTheme,
		cancel: cancel,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The driver stops after the current item; the run resumes later.
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case eventMsg:
		m.total = msg.Total
		if msg.Index > 0 {
			m.position = msg.Index
		}
		switch msg.Kind {
		case service.EventProcessed:
			m.processed++
			m.lastID = msg.ID
		case service.EventSkipped:
			m.skipped++
		case service.EventFailed:
			m.failed++
			m.lastID = msg.ID
		case service.EventDone:
			m.done = true
			m.err = msg.Err
			return m, tea.Quit
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.total == 0 {
		return m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.title)) + " loading dataset...\n"
	}

	pct := float64(m.position) / float64(m.total)
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.title))
	counts := fmt.Sprintf("%d/%d records", m.position, m.total)
	detail := fmt.Sprintf("processed %d, skipped %d", m.processed, m.skipped)
	if m.failed > 0 {
		detail += ", " + m.theme.errorStyle().Render(fmt.Sprintf("failed %d", m.failed))
	}
	if m.lastID != "" {
		detail += fmt.Sprintf(" (last id %s)", m.lastID)
	}
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop; the next run resumes where this one ended")

	return fmt.Sprintf("%s %s %s\n%s\n%s\n", status, m.progress.ViewAs(pct), counts, detail, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nStopped. Run the same command again to resume.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Run failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Completed") + "\n"
}

// runWithProgress runs the driver on its own goroutine and renders its events.
// Ctrl+C in the UI cancels the run context.
func runWithProgress(ctx context.Context, rc service.RunConfig, p *service.Processor, opts []service.DriverOption, t service.Transformer) (models.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newProgressModel(rc.Tool+"/"+rc.Dataset, cancel))
	opts = append(opts, service.WithObserver(func(e service.Event) {
		prog.Send(eventMsg(e))
	}))

	d, err := service.NewDriver(rc, p, opts...)
	if err != nil {
		return models.RunSummary{}, err
	}

	type outcome struct {
		summary models.RunSummary
		err     error
	}
	results := make(chan outcome, 1)
	go func() {
		s, err := d.Run(ctx, t)
		results <- outcome{s, err}
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-results
		return models.RunSummary{}, fmt.Errorf("progress UI error: %w", err)
	}

	res := <-results
	return res.summary, res.err
}
