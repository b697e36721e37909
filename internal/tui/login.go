package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"classchat/internal/app"
)

type loginStep int

const (
	stepRole loginStep = iota
	stepName
	stepCode
)

type loggedInMsg struct {
	room *app.Classroom
}

type loginModel struct {
	app    *app.Application
	theme  Theme
	step   loginStep
	roles  []string
	picked int
	name   string
	input  textinput.Model
	status string
}

func newLoginModel(application *app.Application, theme Theme) *loginModel {
	input := textinput.New()
	input.Placeholder = "Your name"
	input.CharLimit = 60
	return &loginModel{
		app:   application,
		theme: theme,
		roles: []string{"Student", "Teacher"},
		input: input,
	}
}

func (m *loginModel) Update(msg tea.Msg) (tea.Cmd, *loggedInMsg) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd, nil
	}

	if m.step == stepRole {
		switch key.String() {
		case "up", "k":
			if m.picked > 0 {
				m.picked--
			}
		case "down", "j":
			if m.picked < len(m.roles)-1 {
				m.picked++
			}
		case "enter":
			return m.advance()
		}
		return nil, nil
	}

	switch key.String() {
	case "esc":
		m.step = stepRole
		m.status = ""
		return nil, nil
	case "enter":
		return m.advance()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd, nil
}

func (m *loginModel) advance() (tea.Cmd, *loggedInMsg) {
	switch m.step {
	case stepRole:
		m.step = stepName
		m.input.Placeholder = "Your name"
		m.input.SetValue("")
		m.input.Focus()
		return textinput.Blink, nil

	case stepName:
		name := strings.TrimSpace(m.input.Value())
		if name == "" {
			m.status = "Please enter a name."
			return nil, nil
		}
		m.name = name
		if m.roles[m.picked] == "Teacher" {
			room, err := m.app.LoginTeacher(name)
			if err != nil {
				m.status = fmt.Sprintf("Login failed: %v", err)
				return nil, nil
			}
			return nil, &loggedInMsg{room: room}
		}
		m.step = stepCode
		m.input.Placeholder = "Classroom code (6 characters)"
		m.input.SetValue("")
		return nil, nil

	case stepCode:
		room, err := m.app.LoginStudent(m.name, m.input.Value())
		if err != nil {
			// An unknown code is recovered locally by re-prompting.
			if errors.Is(err, app.ErrConfigFault) {
				m.status = "That classroom code wasn't found. Check it with your teacher and try again."
				m.input.SetValue("")
				return nil, nil
			}
			m.status = fmt.Sprintf("Login failed: %v", err)
			return nil, nil
		}
		return nil, &loggedInMsg{room: room}
	}
	return nil, nil
}

func (m *loginModel) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("classchat") + "\n")
	b.WriteString(m.theme.Faint.Render("A chat space for your classroom") + "\n\n")

	switch m.step {
	case stepRole:
		b.WriteString("Who are you?\n\n")
		for i, role := range m.roles {
			cursor := "  "
			line := role
			if i == m.picked {
				cursor = "> "
				line = m.theme.Badge.Render(role)
			}
			b.WriteString(cursor + line + "\n")
		}
		b.WriteString("\n" + m.theme.Faint.Render("↑/↓ to choose, enter to continue"))
	case stepName:
		b.WriteString(fmt.Sprintf("Logging in as %s\n\n", m.theme.Badge.Render(m.roles[m.picked])))
		b.WriteString(m.input.View())
	case stepCode:
		b.WriteString(fmt.Sprintf("Hi %s! Enter your classroom code.\n\n", m.name))
		b.WriteString(m.input.View())
	}

	if m.status != "" {
		b.WriteString("\n\n" + m.theme.Error.Render(m.status))
	}
	return b.String()
}
