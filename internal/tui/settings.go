package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeanpaul/jarbas/internal/config"
)

// KeyManager stores and removes the user API key.
type KeyManager interface {
	Resolve() config.Credential
	Set(key string) error
	Clear() error
}

// keyAction is what the panel asks the app to do when it closes.
type keyAction int

const (
	keyNone keyAction = iota
	keySet
	keyClear
)

// KeyPanel is the masked API key input.
type KeyPanel struct {
	input   textinput.Model
	active  bool
	current config.Credential
	action  keyAction
	value   string
}

func NewKeyPanel() KeyPanel {
	ti := textinput.New()
	ti.Placeholder = "paste your Gemini API key"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 256
	ti.Width = 48
	return KeyPanel{input: ti}
}

func (p *KeyPanel) Open(current config.Credential) tea.Cmd {
	p.active = true
	p.current = current
	p.action = keyNone
	p.value = ""
	p.input.Reset()
	return p.input.Focus()
}

func (p KeyPanel) Update(msg tea.Msg) (KeyPanel, tea.Cmd) {
	if !p.active {
		return p, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyEsc:
			p.close()
			return p, nil
		case tea.KeyEnter:
			if v := strings.TrimSpace(p.input.Value()); v != "" {
				p.action, p.value = keySet, v
				p.close()
			}
			return p, nil
		case tea.KeyCtrlD:
			p.action = keyClear
			p.close()
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *KeyPanel) close() {
	p.active = false
	p.input.Blur()
	p.input.Reset()
}

// Take returns and clears the pending action.
func (p *KeyPanel) Take() (keyAction, string) {
	a, v := p.action, p.value
	p.action, p.value = keyNone, ""
	return a, v
}

func (p KeyPanel) View() string {
	if !p.active {
		return ""
	}
	status := "none (offline core)"
	if p.current.Online() {
		status = p.current.Masked() + " from " + p.current.Origin
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		LabelStyle.Render("API KEY"),
		SystemMsgStyle.Render("current: "+status),
		"",
		p.input.View(),
		"",
		HelpStyle.Render("Enter: save  •  Ctrl+D: remove stored key  •  Esc: cancel"),
	)
	return PanelStyle.Render(body)
}
