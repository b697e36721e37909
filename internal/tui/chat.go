package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"classchat/internal/app"
)

type chatOverlay int

const (
	overlayNone chatOverlay = iota
	overlayHistory
	overlaySettings
)

type sendResultMsg struct {
	sess *app.Session
	err  error
}

type loggedOutMsg struct{}

type chatModel struct {
	app   *app.Application
	theme Theme

	sess   *app.Session
	input  textarea.Model
	vp     viewport.Model
	ready  bool
	busy   bool
	status string

	overlay chatOverlay

	// History overlay: the user's own sessions, or the classroom's when a
	// teacher is reviewing.
	history    []app.Session
	historySel int

	// Settings overlay (teacher only): instruction first, credential second.
	settingsStep  int
	settingsInput textarea.Model
	instruction   string

	width  int
	height int
}

func newChatModel(application *app.Application, theme Theme) *chatModel {
	input := textarea.New()
	input.Placeholder = "Ask a question… (/image <prompt> for a picture)"
	input.SetHeight(3)
	input.CharLimit = 4000
	input.ShowLineNumbers = false
	input.Focus()

	settings := textarea.New()
	settings.SetHeight(3)
	settings.ShowLineNumbers = false

	return &chatModel{
		app:           application,
		theme:         theme,
		input:         input,
		settingsInput: settings,
	}
}

func (m *chatModel) setSize(width, height int) {
	m.width = width
	m.height = height
	vpHeight := height - m.input.Height() - 6
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.vp = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.vp.Width = width
		m.vp.Height = vpHeight
	}
	m.input.SetWidth(width - 4)
	m.settingsInput.SetWidth(width - 4)
	m.refreshViewport()
}

func (m *chatModel) Update(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case sendResultMsg:
		m.busy = false
		if msg.err != nil {
			// Storage faults abort the operation and surface here; they are
			// never written into the transcript.
			m.status = fmt.Sprintf("Could not save this conversation: %v", msg.err)
		} else {
			m.sess = msg.sess
			m.status = ""
		}
		m.refreshViewport()
		return nil, false

	case tea.KeyMsg:
		if m.overlay == overlayHistory {
			return m.updateHistory(msg), false
		}
		if m.overlay == overlaySettings {
			return m.updateSettings(msg), false
		}
		switch msg.String() {
		case "ctrl+n":
			m.startSession()
			return nil, false
		case "ctrl+h":
			m.openHistory()
			return nil, false
		case "ctrl+e":
			if u := m.app.User(); u != nil && u.Role == "teacher" {
				m.openSettings()
			}
			return nil, false
		case "ctrl+l":
			if err := m.app.Logout(); err != nil {
				m.status = fmt.Sprintf("Logout failed: %v", err)
				return nil, false
			}
			return nil, true
		case "enter":
			if m.busy {
				return nil, false
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return nil, false
			}
			m.input.Reset()
			return m.submit(text), false
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return cmd, false
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd, false
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return tea.Batch(cmds...), false
}

func (m *chatModel) startSession() {
	sess, err := m.app.NewSession()
	if err != nil {
		m.status = fmt.Sprintf("Could not start a session: %v", err)
		return
	}
	m.sess = sess
	m.status = ""
	m.refreshViewport()
}

func (m *chatModel) submit(text string) tea.Cmd {
	if m.sess == nil {
		m.startSession()
		if m.sess == nil {
			return nil
		}
	}

	if cmd, handled := m.handleSlash(text); handled {
		return cmd
	}

	m.busy = true
	m.status = "Thinking…"
	sess := m.sess
	application := m.app
	return func() tea.Msg {
		updated, err := application.SendMessage(context.Background(), sess, text)
		return sendResultMsg{sess: updated, err: err}
	}
}

func (m *chatModel) handleSlash(text string) (tea.Cmd, bool) {
	switch {
	case strings.HasPrefix(text, "/image "):
		prompt := strings.TrimSpace(strings.TrimPrefix(text, "/image "))
		if prompt == "" {
			m.status = "Usage: /image <what to draw>"
			return nil, true
		}
		m.busy = true
		m.status = "Drawing…"
		sess := m.sess
		application := m.app
		return func() tea.Msg {
			updated, err := application.RequestImage(context.Background(), sess, prompt)
			return sendResultMsg{sess: updated, err: err}
		}, true

	case strings.HasPrefix(text, "/feedback "):
		// Teacher review: /feedback <message number> <note> annotates one
		// reply in the open session.
		if u := m.app.User(); u == nil || u.Role != "teacher" {
			m.status = "Only teachers can leave feedback."
			return nil, true
		}
		rest := strings.TrimSpace(strings.TrimPrefix(text, "/feedback "))
		fields := strings.SplitN(rest, " ", 2)
		if len(fields) != 2 {
			m.status = "Usage: /feedback <message number> <note>"
			return nil, true
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 1 || n > len(m.sess.Messages) {
			m.status = "Usage: /feedback <message number> <note>"
			return nil, true
		}
		target := m.sess.Messages[n-1]
		if err := m.app.Sessions.AnnotateMessage(m.sess.ID, target.ID, fields[1]); err != nil {
			m.status = fmt.Sprintf("Could not save feedback: %v", err)
			return nil, true
		}
		if refreshed, err := m.app.Sessions.Get(m.sess.ID); err == nil && refreshed != nil {
			m.sess = refreshed
		}
		m.status = fmt.Sprintf("Feedback saved on message %d.", n)
		m.refreshViewport()
		return nil, true
	}
	return nil, false
}

func (m *chatModel) openHistory() {
	u := m.app.User()
	if u == nil {
		return
	}
	var sessions []app.Session
	var err error
	if u.Role == "teacher" && u.ClassCode != "" {
		sessions, err = m.app.Sessions.ListByClassroom(u.ClassCode)
	} else {
		sessions, err = m.app.Sessions.ListByUser(u.Name)
	}
	if err != nil {
		m.status = fmt.Sprintf("Could not load history: %v", err)
		return
	}
	m.history = sessions
	m.historySel = 0
	m.overlay = overlayHistory
}

func (m *chatModel) updateHistory(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "ctrl+h":
		m.overlay = overlayNone
	case "up", "k":
		if m.historySel > 0 {
			m.historySel--
		}
	case "down", "j":
		if m.historySel < len(m.history)-1 {
			m.historySel++
		}
	case "enter":
		if m.historySel < len(m.history) {
			sess := m.history[m.historySel]
			m.sess = &sess
			m.overlay = overlayNone
			m.status = ""
			m.refreshViewport()
		}
	}
	return nil
}

func (m *chatModel) openSettings() {
	room := m.app.Classroom()
	if room == nil {
		return
	}
	m.settingsStep = 0
	m.settingsInput.SetValue(room.SystemInstruction)
	m.settingsInput.Focus()
	m.overlay = overlaySettings
}

func (m *chatModel) updateSettings(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.overlay = overlayNone
		return nil
	case "enter":
		if m.settingsStep == 0 {
			m.instruction = m.settingsInput.Value()
			room := m.app.Classroom()
			key := ""
			if room != nil {
				key = room.APIKey
			}
			m.settingsStep = 1
			m.settingsInput.SetValue(key)
			return nil
		}
		if _, err := m.app.UpdateClassroom(m.instruction, strings.TrimSpace(m.settingsInput.Value())); err != nil {
			m.status = fmt.Sprintf("Could not save settings: %v", err)
		} else {
			m.status = "Classroom settings saved."
		}
		m.overlay = overlayNone
		return nil
	}
	var cmd tea.Cmd
	m.settingsInput, cmd = m.settingsInput.Update(msg)
	return cmd
}

func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.vp.SetContent(m.renderTranscript())
	m.vp.GotoBottom()
}

func (m *chatModel) renderTranscript() string {
	if m.sess == nil || len(m.sess.Messages) == 0 {
		return m.theme.Faint.Render("No messages yet. Say hello!")
	}
	var b strings.Builder
	for i, msg := range m.sess.Messages {
		tag := m.theme.UserTag.Render("You")
		if msg.Role == app.RoleModel {
			tag = m.theme.BotTag.Render("Tutor")
		}
		b.WriteString(fmt.Sprintf("%s %s\n", tag, m.theme.Faint.Render(fmt.Sprintf("#%d · %s", i+1, msg.Timestamp.Format("15:04")))))
		if msg.Text != "" {
			b.WriteString(msg.Text + "\n")
		}
		if msg.Attachment != "" {
			b.WriteString(m.theme.Faint.Render(fmt.Sprintf("[image attached, %d bytes base64]", len(msg.Attachment))) + "\n")
		}
		if msg.Feedback != "" {
			b.WriteString(m.theme.Note.Render("Teacher feedback: "+msg.Feedback) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *chatModel) View() string {
	if m.overlay == overlayHistory {
		return m.viewHistory()
	}
	if m.overlay == overlaySettings {
		return m.viewSettings()
	}

	var b strings.Builder
	header := m.theme.Title.Render("classchat")
	if u := m.app.User(); u != nil {
		header += "  " + m.theme.Faint.Render(u.Name)
		if room := m.app.Classroom(); room != nil {
			header += "  " + m.theme.Badge.Render("code "+room.Code)
		}
	}
	b.WriteString(header + "\n\n")
	if m.ready {
		b.WriteString(m.vp.View() + "\n")
	}
	b.WriteString(m.theme.Input.Render(m.input.View()) + "\n")

	statusLine := m.theme.Faint.Render("enter send · ctrl+n new · ctrl+h history · ctrl+l log out")
	if u := m.app.User(); u != nil && u.Role == "teacher" {
		statusLine += m.theme.Faint.Render(" · ctrl+e settings · /feedback <n> <note>")
	}
	if m.status != "" {
		style := m.theme.Faint
		if strings.HasPrefix(m.status, "Could not") {
			style = m.theme.Error
		}
		statusLine = style.Render(m.status)
	}
	b.WriteString(statusLine)
	return b.String()
}

func (m *chatModel) viewHistory() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("History") + "\n\n")
	if len(m.history) == 0 {
		b.WriteString(m.theme.Faint.Render("No sessions yet.") + "\n")
	}
	for i, sess := range m.history {
		title := sess.Title
		if title == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("%s · %s · %d messages", title, sess.CreatedAt.Format("Jan 2 15:04"), len(sess.Messages))
		if u := m.app.User(); u != nil && u.Role == "teacher" {
			line = sess.UserID + " · " + line
		}
		if i == m.historySel {
			b.WriteString("> " + m.theme.Badge.Render(line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString("\n" + m.theme.Faint.Render("↑/↓ choose · enter open · esc back"))
	return b.String()
}

func (m *chatModel) viewSettings() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Classroom settings") + "\n\n")
	if m.settingsStep == 0 {
		b.WriteString("Shared instruction for the class assistant:\n\n")
	} else {
		b.WriteString("Shared API key (students use it through the classroom):\n\n")
	}
	b.WriteString(m.theme.Input.Render(m.settingsInput.View()) + "\n")
	b.WriteString(m.theme.Faint.Render("enter next/save · esc cancel"))
	return b.String()
}
