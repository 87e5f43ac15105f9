package tui

import (
	"context"
	"fmt"
	"time"

	"homewatch/internal/anomaly"
	"homewatch/internal/engine"
	"homewatch/internal/narrator"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
	"homewatch/ui/tui/components"
	"homewatch/ui/tui/state"
	"homewatch/ui/tui/views"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
)

// HistorySource is the read side of the snapshot log.
type HistorySource interface {
	Query(ctx context.Context, since, until *time.Time) []snapshot.Snapshot
}

// Options configures the browser.
type Options struct {
	Window   time.Duration // how far back to load, default: 24h
	Refresh  time.Duration // reload interval, default: 30s
	Health   engine.Config
	Detector *anomaly.Detector
	Narrator *narrator.Narrator
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 24 * time.Hour
	}
	if o.Refresh <= 0 {
		o.Refresh = 30 * time.Second
	}
	if o.Health == (engine.Config{}) {
		o.Health = engine.DefaultConfig()
	}
	if o.Detector == nil {
		o.Detector = anomaly.New(anomaly.DefaultConfig())
	}
	if o.Narrator == nil {
		o.Narrator = narrator.New(narrator.DefaultConfig())
	}
	return o
}

// MainModel is the Bubble Tea Model acting as the Controller
type MainModel struct {
	source     HistorySource
	opts       Options
	state      state.AppState
	spinner    spinner.Model
	cpuSeries  components.Chart
	devSeries  components.Chart
	viewport   viewport.Model
	menuCursor int
	animCursor float64
	velocity   float64 // Physics velocity
	spring     harmonica.Spring
	mouseX     int
	mouseY     int
	quitting   bool
	width      int
	height     int
	now        func() time.Time
}

// Messages
type TickMsg time.Time
type AnimateMsg time.Time
type HistoryLoadedMsg struct {
	Snapshots []snapshot.Snapshot
	At        time.Time
}

func InitialModel(source HistorySource, opts Options) MainModel {
	opts = opts.withDefaults()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	// Increased frequency (12.0) for faster response and damping (0.9) to prevent overshoot
	spring := harmonica.NewSpring(harmonica.FPS(60), 12.0, 0.9)

	return MainModel{
		source:    source,
		opts:      opts,
		spinner:   s,
		cpuSeries: components.NewSeriesWidget("CPU %", 30, 10, 100),
		devSeries: components.NewSeriesWidget("Devices", 30, 10, 0),
		viewport:  viewport.New(80, 20),
		spring:    spring,
		now:       time.Now,
		state: state.AppState{
			Window:      opts.Window,
			CurrentPage: state.PageMenu,
		},
	}
}

func (m *MainModel) Init() tea.Cmd {
	zone.NewGlobal()
	m.state.Loading = true
	return tea.Batch(
		m.spinner.Tick,
		m.loadCmd(),
		tickCmd(m.opts.Refresh),
		animateCmd(),
	)
}

// Commands
func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func animateCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*16, func(t time.Time) tea.Msg {
		return AnimateMsg(t)
	})
}

func (m *MainModel) loadCmd() tea.Cmd {
	src, window, now := m.source, m.opts.Window, m.now()
	return func() tea.Msg {
		since := now.Add(-window)
		return HistoryLoadedMsg{Snapshots: src.Query(context.Background(), &since, nil), At: now}
	}
}

func (m *MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case AnimateMsg:
		return m.handleAnimateMsg(msg)

	case tea.WindowSizeMsg:
		return m.handleWindowSizeMsg(msg)

	case TickMsg:
		m.state.Loading = true
		return m, tea.Batch(m.loadCmd(), tickCmd(m.opts.Refresh))

	case HistoryLoadedMsg:
		return m.handleHistoryLoadedMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)
	}

	return m, nil
}

func (m *MainModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "r":
		m.state.Loading = true
		return m, m.loadCmd()
	}

	if m.state.CurrentPage == state.PageMenu {
		switch msg.String() {
		case "up", "k":
			if m.menuCursor > 0 {
				m.menuCursor--
			}
		case "down", "j":
			if m.menuCursor < len(views.MenuOptions)-1 {
				m.menuCursor++
			}
		case "enter":
			m.navigateTo(m.menuCursor)
		}
		return m, nil
	}

	if msg.String() == "b" || msg.String() == "esc" || msg.String() == "backspace" {
		m.state.CurrentPage = state.PageMenu
		return m, nil
	}

	if m.scrollable() {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MainModel) scrollable() bool {
	return m.state.CurrentPage == state.PageTimeline || m.state.CurrentPage == state.PageNarrative
}

func (m *MainModel) navigateTo(cursor int) {
	switch cursor {
	case 0:
		m.state.CurrentPage = state.PageTimeline
	case 1:
		m.state.CurrentPage = state.PageDashboard
	case 2:
		m.state.CurrentPage = state.PageAnomalies
	case 3:
		m.state.CurrentPage = state.PageNarrative
	case 4:
		m.state.CurrentPage = state.PageNetwork
	}
	m.refreshViewport()
	m.viewport.GotoTop()
}

// refreshViewport loads the current scroll page's text into the viewport.
func (m *MainModel) refreshViewport() {
	switch m.state.CurrentPage {
	case state.PageTimeline:
		m.viewport.SetContent(output.RenderTimeline(m.state.Narrative.TableRows()))
	case state.PageNarrative:
		m.viewport.SetContent(m.state.Narrative.Prose())
	}
}

func (m *MainModel) handleAnimateMsg(msg AnimateMsg) (tea.Model, tea.Cmd) {
	var v float64 = m.velocity
	m.animCursor, v = m.spring.Update(m.animCursor, float64(m.menuCursor), v)
	m.velocity = v
	return m, animateCmd()
}

func (m *MainModel) handleWindowSizeMsg(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	newW := msg.Width/2 - 6
	if newW > 10 {
		m.cpuSeries.Resize(newW, 10)
		m.devSeries.Resize(newW, 10)
	}
	// header (3 lines) + padding + footer
	if w, h := msg.Width-4, msg.Height-8; w > 0 && h > 0 {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	return m, nil
}

func (m *MainModel) handleHistoryLoadedMsg(msg HistoryLoadedMsg) (tea.Model, tea.Cmd) {
	snaps := msg.Snapshots
	anoms := m.opts.Detector.Detect(snaps)

	m.state.Loading = false
	m.state.Err = nil
	m.state.Snapshots = snaps
	m.state.Anomalies = anomaly.MostSevereFirst(anoms)
	m.state.Narrative = m.opts.Narrator.Build(snaps).WithAnomalies(anoms)
	m.state.LastUpdate = msg.At
	m.state.Latest = nil
	m.state.Results = nil
	if len(snaps) > 0 {
		m.state.Latest = &snaps[len(snaps)-1]
		m.state.Results = engine.Evaluate(m.opts.Health, m.state.Latest)
	}

	m.cpuSeries.Reset()
	m.devSeries.Reset()
	start := 0
	if len(snaps) > components.SeriesCapacity {
		start = len(snaps) - components.SeriesCapacity
	}
	for _, s := range snaps[start:] {
		if s.System != nil {
			m.cpuSeries.Push(s.System.CPUPercent)
		}
		if s.Network != nil {
			m.devSeries.Push(float64(s.Network.DeviceCount))
		}
	}

	m.refreshViewport()
	if len(snaps) == 0 {
		m.state.Err = fmt.Errorf("no snapshots in the last %s", m.opts.Window)
	}
	return m, nil
}

func (m *MainModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	m.mouseX = msg.X
	m.mouseY = msg.Y

	if msg.Action == tea.MouseActionRelease && m.state.CurrentPage == state.PageMenu {
		for i := range views.MenuOptions {
			if zone.Get(fmt.Sprintf("menu_%d", i)).InBounds(msg) {
				m.menuCursor = i
				m.navigateTo(i)
				return m, nil
			}
		}
	}

	if m.scrollable() {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MainModel) View() string {
	if m.quitting {
		return "Bye!\n"
	}

	switch m.state.CurrentPage {
	case state.PageMenu:
		return views.RenderMenu(m.state, m.width, m.height, m.menuCursor, m.animCursor, m.mouseX, m.mouseY)
	case state.PageDashboard:
		spin := ""
		if m.state.Loading {
			spin = m.spinner.View()
		}
		return views.RenderDashboard(m.state, spin, m.cpuSeries.View(), m.devSeries.View(), m.width)
	case state.PageTimeline:
		return views.RenderScroll(m.state, "TIMELINE", m.viewport.View(), m.viewport.ScrollPercent(), m.width, m.height)
	case state.PageNarrative:
		return views.RenderScroll(m.state, "HISTORY DIGEST", m.viewport.View(), m.viewport.ScrollPercent(), m.width, m.height)
	case state.PageAnomalies:
		return views.RenderAnomalies(m.state, m.width, m.height)
	case state.PageNetwork:
		return views.RenderNetwork(m.state, m.width, m.height)
	default:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Bold(true).Render("Unknown page\n\nPress 'b' to go back"),
		)
	}
}

// Start runs the browser until the user quits.
func Start(source HistorySource, opts Options) error {
	m := InitialModel(source, opts)
	p := tea.NewProgram(
		&m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}
