// Package tui is the terminal front end: a login flow and a chat view over
// the record-keeping layer in internal/app. It holds no state of its own
// beyond what is on screen; every mutation goes through the Application.
package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"classchat/internal/app"
)

type screen int

const (
	screenLogin screen = iota
	screenChat
)

type Model struct {
	app    *app.Application
	theme  Theme
	screen screen
	login  *loginModel
	chat   *chatModel
	width  int
	height int
}

func New(application *app.Application) *Model {
	m := &Model{
		app:   application,
		theme: DefaultTheme(),
		login: newLoginModel(application, DefaultTheme()),
	}
	// Relaunch restores the previous identity without re-prompting.
	if u, err := application.RestoreLastUser(); err == nil && u != nil {
		m.chat = newChatModel(application, m.theme)
		m.chat.startSession()
		m.screen = screenChat
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.FocusMsg:
		// Regaining terminal focus re-validates the cached classroom
		// config against edits made elsewhere.
		m.app.SyncFocus()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.chat != nil {
			m.chat.setSize(msg.Width, msg.Height)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.app.User() != nil {
				_ = m.app.Logout()
			}
			return m, tea.Quit
		}
	}

	if m.screen == screenLogin {
		cmd, done := m.login.Update(msg)
		if done != nil {
			m.chat = newChatModel(m.app, m.theme)
			if m.width > 0 {
				m.chat.setSize(m.width, m.height)
			}
			m.chat.startSession()
			m.screen = screenChat
		}
		return m, cmd
	}

	cmd, loggedOut := m.chat.Update(msg)
	if loggedOut {
		m.login = newLoginModel(m.app, m.theme)
		m.chat = nil
		m.screen = screenLogin
		return m, textinput.Blink
	}
	return m, cmd
}

func (m *Model) View() string {
	if m.screen == screenLogin {
		return m.login.View()
	}
	return m.chat.View()
}
