package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/courier/internal/events"
)

const (
	eventLogSize     = 50
	healthInterval   = 5 * time.Second
	reconnectBackoff = 3 * time.Second
)

// Model is the BubbleTea model behind courier watch.
type Model struct {
	apiURL string
	apiKey string

	width, height int

	health    HealthState
	board     *Board
	table     table.Model
	eventLog  []events.Event
	lastEvent time.Time
	spinner   spinner.Model
	theme     Theme
	lastError string

	// incoming outlives each SSE connection; reconnects feed the same channel.
	incoming chan events.Event
	now      func() time.Time
}

// New creates a watch model for the admin API at apiURL.
func New(apiURL, apiKey string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		apiURL:   apiURL,
		apiKey:   apiKey,
		board:    NewBoard(),
		table:    newDeliveryTable(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Status("delivered"))),
		theme:    theme,
		incoming: make(chan events.Event, 100),
		now:      time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.incoming),
		receiveNextEvent(m.incoming),
		m.pollHealth(0),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

// pollHealth fetches /healthz after delay.
func (m Model) pollHealth(delay time.Duration) tea.Cmd {
	if delay == 0 {
		return func() tea.Msg { return fetchHealth(m.apiURL) }
	}
	return tea.Tick(delay, func(time.Time) tea.Msg { return fetchHealth(m.apiURL) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if h := msg.Height/2 - 4; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog[:min(len(m.eventLog), eventLogSize-1)]...)
		m.lastEvent = m.now()
		m.board.Apply(e)
		m.table.SetRows(m.board.Rows())
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.incoming)

	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			UptimeSeconds: msg.UptimeSeconds,
			QueueDepth:    msg.QueueDepth,
			Connected:     true,
			LastCheck:     m.now(),
		}
		m.lastError = ""
		return m, m.pollHealth(healthInterval)

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(reconnectBackoff, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.incoming)

	case errMsg:
		m.lastError = msg.Error()
		return m, m.pollHealth(healthInterval)
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to courier..."
	}

	parts := []string{
		renderHeader(m.health, m.board.Counters(), m.spinner, m.lastEvent, m.now(), m.theme, m.width),
		renderDeliveries(m.table, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Alert.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Help.Render(" [q] quit  [↑/↓] scroll deliveries"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
