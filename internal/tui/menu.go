package tui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

type MenuModel struct {
	list   list.Model
	active bool
}

func NewMenuModel() MenuModel {
	items := []list.Item{
		item{title: "/help", desc: "Show commands and shortcuts"},
		item{title: "/stats", desc: "Creator, level and memory counts"},
		item{title: "/history", desc: "Show recent exchanges"},
		item{title: "/clear", desc: "Wipe history and reset learning"},
		item{title: "/key", desc: "Set or clear the API key"},
		item{title: "/import", desc: "Import concepts from a file or glob"},
		item{title: "/voice", desc: "Turn spoken replies on or off"},
		item{title: "/stop", desc: "Stop speaking"},
		item{title: "/quit", desc: "Exit JARBAS"},
	}

	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = lipgloss.NewStyle().Foreground(Cyan).Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(Cyan).PaddingLeft(1)
	d.Styles.SelectedDesc = d.Styles.SelectedTitle.Foreground(DeepBlue)

	l := list.New(items, d, 40, 14)
	l.Title = "Commands"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(Gold).Bold(true).MarginLeft(2)

	return MenuModel{list: l}
}

func (m MenuModel) Update(msg tea.Msg) (MenuModel, tea.Cmd) {
	if !m.active {
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		m.active = false
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m MenuModel) View() string {
	if !m.active {
		return ""
	}
	return PanelStyle.Render(m.list.View())
}
