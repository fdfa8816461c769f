package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stocksim/internal/relay"
	"stocksim/pkg/realtime"
	"stocksim/tui/styles"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Subscriber is the dispatcher as seen by the UI.
type Subscriber interface {
	Subscribe(key string, fn relay.Listener) (unsubscribe func())
}

// Connection is the slice of the connection manager the UI drives.
type Connection interface {
	Status() realtime.ConnectionStatus
	Connect(ctx context.Context) error
}

type keyMap struct {
	Quit      key.Binding
	Reconnect key.Binding
	Dismiss   key.Binding
}

var keys = keyMap{
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c")),
	Reconnect: key.NewBinding(key.WithKeys("r")),
	Dismiss:   key.NewBinding(key.WithKeys("d")),
}

// eventMsg carries one dispatcher delivery into the update loop.
type eventMsg struct {
	key     string
	payload interface{}
}

type tickMsg time.Time

type reconnectMsg struct{ err error }

// Model is the live terminal view: connection status, active toasts and
// the stock table. It subscribes on Init and releases on quit.
type Model struct {
	sub    Subscriber
	conn   Connection
	stores relay.Stores

	events chan eventMsg

	mu     sync.Mutex
	unsubs []func()

	status    realtime.ConnectionStatus
	lastError string
	lastPong  time.Duration
	lastEvent string

	width  int
	height int
	now    func() time.Time
}

func NewModel(sub Subscriber, conn Connection, stores relay.Stores) *Model {
	return &Model{
		sub:    sub,
		conn:   conn,
		stores: stores,
		events: make(chan eventMsg, 64),
		status: conn.Status(),
		width:  80,
		height: 24,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Init subscribes to the dispatcher and starts the refresh tick.
func (m *Model) Init() tea.Cmd {
	m.subscribe(
		realtime.KeyConnectionStatus,
		realtime.KeyConnectionError,
		relay.KeyStockUpdate,
		relay.KeyNotification,
		relay.KeyPong,
	)
	return tea.Batch(m.listen(), tick())
}

func (m *Model) subscribe(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		k := k
		m.unsubs = append(m.unsubs, m.sub.Subscribe(k, func(payload interface{}) {
			select {
			case m.events <- eventMsg{key: k, payload: payload}:
			default:
				// UI is behind; the stores still hold the data
			}
		}))
	}
}

// Close releases every subscription. Safe to call more than once.
func (m *Model) Close() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, keys.Reconnect):
			return m, m.reconnect()
		case key.Matches(msg, keys.Dismiss):
			if active := m.stores.Notifications.Active(m.now()); len(active) > 0 {
				m.stores.Notifications.Dismiss(active[0].ID)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventMsg:
		m.apply(msg)
		return m, m.listen()

	case reconnectMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}

	case tickMsg:
		m.stores.Notifications.Prune(m.now())
		return m, tick()
	}

	return m, nil
}

func (m *Model) apply(msg eventMsg) {
	switch p := msg.payload.(type) {
	case realtime.ConnectionStatus:
		m.status = p
		if p.Connected {
			m.lastError = ""
		}
	case realtime.ConnectionError:
		m.lastError = fmt.Sprintf("gave up after %d attempts (press r to retry)", p.Attempts)
	case relay.StockEvent:
		m.lastEvent = p.Notification.Message
	case time.Duration:
		m.lastPong = p
	}
}

func (m *Model) reconnect() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return reconnectMsg{err: m.conn.Connect(ctx)}
	}
}

func (m *Model) View() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatus(),
		m.renderToasts(),
		m.renderStocks(),
	)

	bar := styles.StatusBarStyle.
		Width(m.width).
		Render(" stocksim | r reconnect | d dismiss | q quit ")

	return lipgloss.JoinVertical(lipgloss.Left, body, bar)
}

func (m *Model) renderStatus() string {
	var state string
	if m.status.Connected {
		state = styles.ConnectedStyle.Render("● connected")
		if m.status.SocketID != "" {
			state += styles.MutedStyle.Render(" sid=" + m.status.SocketID)
		}
		if m.lastPong > 0 {
			state += styles.MutedStyle.Render(fmt.Sprintf(" rtt=%dms", m.lastPong.Milliseconds()))
		}
	} else {
		state = styles.DisconnectedStyle.Render("○ disconnected")
		if m.status.ReconnectAttempts > 0 {
			state += styles.MutedStyle.Render(fmt.Sprintf(" retry %d", m.status.ReconnectAttempts))
		}
	}
	if m.lastError != "" {
		state += "  " + styles.DisconnectedStyle.Render(m.lastError)
	}
	return styles.PanelStyle.Width(m.panelWidth()).Render(styles.TitleStyle.Render("Realtime") + "\n" + state)
}

func (m *Model) renderToasts() string {
	active := m.stores.Notifications.Active(m.now())
	lines := []string{styles.TitleStyle.Render("Notifications")}
	if len(active) == 0 {
		lines = append(lines, styles.MutedStyle.Render("nothing new"))
	}
	for i, n := range active {
		if i == 5 {
			lines = append(lines, styles.MutedStyle.Render(fmt.Sprintf("+%d more", len(active)-i)))
			break
		}
		lines = append(lines, styles.ToastStyle(n.Type).Render(n.Message))
	}
	return styles.PanelStyle.Width(m.panelWidth()).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderStocks() string {
	rows := []string{
		styles.TitleStyle.Render("Stocks"),
		styles.HeaderStyle.Render(fmt.Sprintf("%-8s %12s %10s  %s", "SYMBOL", "PRICE", "QTY", "UPDATED")),
	}

	stocks := m.stores.Stocks.All()
	limit := m.height - 16
	if limit < 5 {
		limit = 5
	}
	for i, s := range stocks {
		if i == limit {
			rows = append(rows, styles.MutedStyle.Render(fmt.Sprintf("+%d more", len(stocks)-i)))
			break
		}
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Local().Format("15:04:05")
		}
		style := styles.RowStyle
		if s.Quantity == 0 {
			style = styles.DisconnectedStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%-8s %12s %10d  %s", s.Symbol, s.Price.StringFixed(2), s.Quantity, updated)))
	}
	if len(stocks) == 0 {
		rows = append(rows, styles.MutedStyle.Render("no stocks loaded"))
	}
	return styles.PanelStyle.Width(m.panelWidth()).Render(strings.Join(rows, "\n"))
}

func (m *Model) panelWidth() int {
	if m.width < 40 {
		return 38
	}
	return m.width - 2
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	defer m.Close()
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
