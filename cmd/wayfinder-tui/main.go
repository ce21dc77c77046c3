// Command wayfinder-tui is a terminal explorer for wayfinder navigation
// sessions. It follows one session, shows its stack and URL, and lets the
// user drill into related entity lists or walk back up the stack.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/wayfinder/pkg/client"
	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
)

const (
	defaultURL     = "/main/vulnerability-management/clusters"
	pollRate       = time.Second
	requestTimeout = 2 * time.Second
	maxEvents      = 20
	viewportHeight = 12
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	frameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)

	eventTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	eventTypeStyle = lipgloss.NewStyle().Width(18).Bold(true)
	trimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type tickMsg time.Time

// sessionMsg carries a fresh view of the followed session.
type sessionMsg struct {
	sess    store.Session
	related []entity.Type
	events  []store.Event
	err     error
}

type model struct {
	client    *client.Client
	startURL  string
	sessionID string

	spinner  spinner.Model
	viewport viewport.Model

	sess    store.Session
	related []entity.Type
	events  []store.Event
	cursor  int
	err     error
	ready   bool
}

func newModel(c *client.Client, startURL string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	vp := viewport.New(100, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)

	return model{
		client:   c,
		startURL: startURL,
		spinner:  s,
		viewport: vp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.open(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.related)-1 {
				m.cursor++
			}
			return m, nil
		case "enter", "l":
			if m.cursor < len(m.related) {
				return m, m.apply(navigator.Action{Op: navigator.OpPushList, Type: m.related[m.cursor]})
			}
			return m, nil
		case "backspace", "h":
			return m, m.apply(navigator.Action{Op: navigator.OpPop})
		case "b":
			return m, m.apply(navigator.Action{Op: navigator.OpBase})
		case "s":
			return m, m.apply(navigator.Action{Op: navigator.OpSkim})
		case "r":
			return m, m.apply(navigator.Action{Op: navigator.OpRemoveSidePanelParams})
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.sessionID == "" {
			if m.err != nil {
				return m, tea.Batch(m.open(), tick())
			}
			return m, tick()
		}
		return m, tea.Batch(m.refresh(), tick())

	case sessionMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.sessionID = msg.sess.ID
		m.sess = msg.sess
		m.related = msg.related
		m.events = msg.events
		if m.cursor >= len(m.related) {
			m.cursor = max(len(m.related)-1, 0)
		}
		m.updateViewportContent()

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, nil
}

func (m *model) updateViewportContent() {
	var sb strings.Builder
	for _, e := range m.events {
		line := fmt.Sprintf("%s %s %s",
			eventTimeStyle.Render(e.TsEvent.Local().Format("15:04:05")),
			eventTypeStyle.Render(string(e.EventType)),
			urlStyle.Render(e.URL),
		)
		if strings.Contains(string(e.Payload), `"trimmed":true`) {
			line += " " + trimStyle.Render("(trimmed)")
		}
		sb.WriteString(line + "\n")
	}
	m.viewport.SetContent(sb.String())
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting...", m.spinner.View())
	}

	var top strings.Builder
	top.WriteString(titleStyle.Render("Session "+m.sess.ID) + "\n")
	top.WriteString(urlStyle.Render(m.sess.URL) + "\n\n")

	stack := m.sess.State.Stack()
	if len(stack) == 0 {
		top.WriteString(subtleStyle.Render("Empty stack."))
	}
	for i, e := range stack {
		style := frameStyle
		if i == len(stack)-1 {
			style = currentStyle
		}
		top.WriteString(fmt.Sprintf("%s%s\n", strings.Repeat("  ", i), style.Render(e.String())))
	}

	var related strings.Builder
	related.WriteString(titleStyle.Render("Related") + "\n")
	if len(m.related) == 0 {
		related.WriteString(subtleStyle.Render("Nothing to drill into."))
	}
	for i, t := range m.related {
		if i == m.cursor {
			related.WriteString(cursorStyle.Render("> "+string(t)) + "\n")
		} else {
			related.WriteString("  " + string(t) + "\n")
		}
	}

	header := headerStyle.Render(fmt.Sprintf("%s History", m.spinner.View()))

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("v%d • %s • depth %d", m.sess.Version, m.sess.UseCase, len(stack)))
	}
	help := "enter open list • h pop • b base • s skim • r clear side panel • q quit"
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\n%s", status, help))

	return lipgloss.JoinVertical(lipgloss.Left,
		paneStyle.Render(top.String()),
		paneStyle.Render(related.String()),
		header,
		m.viewport.View(),
		footer,
	)
}

// open starts a session at startURL, or follows the most recently updated
// session when no URL was given.
func (m model) open() tea.Cmd {
	c, startURL := m.client, m.startURL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if startURL == "" {
			recent, err := c.Sessions(ctx, 1)
			if err != nil {
				return sessionMsg{err: err}
			}
			if len(recent) > 0 {
				return load(ctx, c, recent[0])
			}
			startURL = defaultURL
		}
		sess, err := c.OpenSession(ctx, startURL)
		if err != nil {
			return sessionMsg{err: err}
		}
		return load(ctx, c, sess)
	}
}

func (m model) refresh() tea.Cmd {
	c, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sess, err := c.Session(ctx, id)
		if err != nil {
			return sessionMsg{err: err}
		}
		return load(ctx, c, sess)
	}
}

func (m model) apply(a navigator.Action) tea.Cmd {
	c, id := m.client, m.sessionID
	if id == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sess, err := c.Apply(ctx, id, a)
		if err != nil {
			return sessionMsg{err: err}
		}
		return load(ctx, c, sess)
	}
}

// load fetches what the view shows next to the session itself.
func load(ctx context.Context, c *client.Client, sess store.Session) sessionMsg {
	msg := sessionMsg{sess: sess}

	var err error
	if t := sess.State.CurrentEntityType(); t != "" && sess.UseCase.IsWorkflow() {
		msg.related, err = c.Relationships(ctx, sess.UseCase, t, graph.RelContains)
		if err != nil {
			return sessionMsg{err: err}
		}
	}
	if msg.events, err = c.History(ctx, sess.ID, maxEvents); err != nil {
		return sessionMsg{err: err}
	}
	return msg
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := os.Getenv("WAYFINDER_ENDPOINT")
	startURL := ""
	if len(os.Args) > 1 {
		startURL = os.Args[1]
	}

	p := tea.NewProgram(newModel(client.NewClient(endpoint), startURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wayfinder-tui: %v\n", err)
		os.Exit(1)
	}
}
