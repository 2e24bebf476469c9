package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	voicechat "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/transcript"
)

type sessionUpdateMsg struct{}

type actionErrMsg struct{ err error }

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Padding(0, 1)
	micStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	debugStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const debugLines = 8

type model struct {
	ctx     context.Context
	session *voicechat.Session

	input    textinput.Model
	viewport viewport.Model
	snapshot voicechat.Snapshot
	width    int
	height   int
}

func newModel(ctx context.Context, session *voicechat.Session) model {
	input := textinput.New()
	input.Placeholder = "Type a message and press enter"
	input.CharLimit = 2000
	input.Focus()

	return model{
		ctx:      ctx,
		session:  session,
		input:    input,
		viewport: viewport.New(80, 20),
		snapshot: session.Snapshot(),
	}
}

func waitForUpdate(session *voicechat.Session) tea.Cmd {
	return func() tea.Msg {
		<-session.Updates()
		return sessionUpdateMsg{}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.session), m.connect())
}

func (m model) connect() tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Connect(m.ctx); err != nil {
			return actionErrMsg{err: err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		m.resize()
		m.refresh()

	case sessionUpdateMsg:
		m.snapshot = m.session.Snapshot()
		m.resize()
		m.refresh()
		cmds = append(cmds, waitForUpdate(m.session))

	case actionErrMsg:
		m.snapshot = m.session.Snapshot()
		if m.snapshot.Error == "" {
			m.snapshot.Error = msg.err.Error()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			m.input.SetValue("")
			session := m.session
			return m, func() tea.Msg {
				if err := session.SendText(text); err != nil {
					return actionErrMsg{err: err}
				}
				return nil
			}
		case "ctrl+t":
			session, ctx := m.session, m.ctx
			return m, func() tea.Msg {
				if err := session.ToggleMic(ctx); err != nil {
					return actionErrMsg{err: err}
				}
				return nil
			}
		case "ctrl+r":
			return m, m.connect()
		case "ctrl+x":
			session := m.session
			return m, func() tea.Msg {
				session.Disconnect()
				return nil
			}
		case "ctrl+d":
			m.session.SetDebugEnabled(!m.snapshot.DebugEnabled)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) resize() {
	if m.width == 0 {
		return
	}
	height := m.height - 6
	if m.snapshot.DebugEnabled {
		height -= debugLines + 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(height, 3)
}

func (m *model) refresh() {
	m.viewport.SetContent(renderTranscript(m.snapshot.Messages, max(m.viewport.Width-2, 20)))
	m.viewport.GotoBottom()
}

func renderTranscript(messages []transcript.Message, width int) string {
	if len(messages) == 0 {
		return pendingStyle.Render("No messages yet. Speak or type to start.")
	}

	var b strings.Builder
	for _, message := range messages {
		speaker := userStyle.Render("You")
		if message.Role == transcript.RoleAssistant {
			speaker = assistantStyle.Render("Grok")
		}
		text := message.Text
		if !message.Finalized {
			text += pendingStyle.Render(" ...")
		}
		fmt.Fprintf(&b, "%s %s\n", speaker, pendingStyle.Render(message.Timestamp.Format("15:04")))
		b.WriteString(wordwrap.String(text, width))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Render(m.snapshot.StatusText)
	if m.snapshot.VoiceID != "" {
		header += " " + micStyle.Render("voice: "+m.snapshot.VoiceID)
	}
	header += " " + micStyle.Render(m.snapshot.MicText)
	if m.snapshot.Error != "" {
		header += " " + errorStyle.Render(m.snapshot.Error)
	}

	sections := []string{header, m.viewport.View()}
	if m.snapshot.DebugEnabled {
		lines := m.snapshot.DebugLines
		if len(lines) > debugLines {
			lines = lines[:debugLines]
		}
		sections = append(sections, debugStyle.Render(strings.Join(lines, "\n")))
	}
	sections = append(sections,
		m.input.View(),
		helpStyle.Render("enter send • ctrl+t mic • ctrl+r reconnect • ctrl+x disconnect • ctrl+d debug • esc quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
