package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeanpaul/jarbas/internal/brain"
	"github.com/jeanpaul/jarbas/internal/importer"
	"github.com/jeanpaul/jarbas/internal/store"
)

// ThinkingSpinner is a HUD-style scan.
var ThinkingSpinner = spinner.Spinner{
	Frames: []string{"[=    ]", "[==   ]", "[===  ]", "[ ====]", "[  ===]", "[   ==]", "[    =]", "[   ==]", "[  ===]", "[ ====]", "[===  ]", "[==   ]"},
	FPS:    time.Second / 12,
}

const defaultHistory = 10

// Brain is the router surface the chat needs.
type Brain interface {
	Respond(ctx context.Context, message string) (brain.Reply, error)
	Mode() string
	Snapshot(ctx context.Context) brain.Snapshot
	History(ctx context.Context, n int) ([]store.ConversationRecord, error)
	ResetHistory(ctx context.Context) error
}

// Speaker speaks replies. Stop must not block.
type Speaker interface {
	Speak(ctx context.Context, text, apiKey string) error
	Stop()
}

// ImportFunc imports concepts from a path or glob.
type ImportFunc func(ctx context.Context, pattern string) (importer.Result, error)

type Deps struct {
	Brain  Brain
	Keys   KeyManager
	Voice  Speaker // nil disables /voice
	Import ImportFunc
	// VoiceOn starts with spoken replies enabled.
	VoiceOn bool
}

type replyMsg struct {
	reply brain.Reply
	err   error
	seq   int
}

type importDoneMsg struct {
	pattern string
	res     importer.Result
	err     error
}

type voiceErrMsg struct{ err error }

type chatMessage struct {
	role    string
	content string
}

type Model struct {
	width, height int
	viewport      viewport.Model
	textarea      textarea.Model
	spinner       spinner.Model
	messages      []chatMessage
	thinking      bool
	confirming    bool // waiting for /clear approval
	seq           int  // discards replies from cancelled sends
	mode          string
	title         string
	voiceOn       bool

	deps     Deps
	ctx      context.Context
	cancel   context.CancelFunc
	renderer *glamour.TermRenderer
	frame    int
	menu     MenuModel
	keys     KeyPanel
}

func NewModel(d Deps) Model {
	ta := textarea.New()
	ta.Placeholder = "Speak, Master..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(White)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(DimBlue)
	ta.BlurredStyle.Base = lipgloss.NewStyle().Foreground(DeepBlue)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = ThinkingSpinner
	sp.Style = SpinnerStyle

	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		viewport: viewport.New(80, 20),
		textarea: ta,
		spinner:  sp,
		deps:     d,
		ctx:      ctx,
		cancel:   cancel,
		renderer: r,
		menu:     NewMenuModel(),
		keys:     NewKeyPanel(),
		voiceOn:  d.VoiceOn && d.Voice != nil,
	}
	m.viewport.MouseWheelEnabled = true

	snap := d.Brain.Snapshot(ctx)
	m.mode = snap.Mode
	m.title = snap.Creator.Title
	if m.title == "" {
		m.title = store.DefaultCreator().Title
	}

	welcome := fmt.Sprintf("Systems online. At your service, %s.", m.title)
	if m.mode == brain.ModeLocal {
		welcome += "\n\nNo API key found: running on the local core. I can do arithmetic, tell the time and learn with `learn: trigger = response`. Use /key to connect the neural processor."
	}
	m.messages = append(m.messages, chatMessage{role: "welcome", content: welcome})
	m.rebuildView()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		tea.EnableMouseCellMotion,
	)
}

const (
	headerH = 9
	inputH  = 3
	menuH   = 16
)

func (m *Model) layout() {
	extra := 0
	if m.menu.active || m.keys.active {
		extra = menuH
	}
	m.viewport.Width = max(m.width-4, 10)
	m.viewport.Height = max(m.height-headerH-inputH-extra, 3)
	m.textarea.SetWidth(max(m.width-6, 10))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.rebuildView()

	case tea.KeyMsg:
		if m.keys.active {
			var cmd tea.Cmd
			m.keys, cmd = m.keys.Update(msg)
			if !m.keys.active {
				m.applyKeyAction()
				m.layout()
				m.rebuildView()
				m.textarea.Focus()
			}
			return m, cmd
		}

		if m.menu.active {
			var cmd tea.Cmd
			m.menu, cmd = m.menu.Update(msg)

			if msg.String() == "enter" && m.menu.active {
				m.menu.active = false
				if sel, ok := m.menu.list.SelectedItem().(item); ok {
					if sel.title == "/quit" {
						return m, m.quit()
					}
					m.textarea.SetValue(sel.title)
				} else {
					m.textarea.SetValue("/" + m.menu.list.FilterValue())
				}
				m.textarea.Focus()
				m.layout()
				m.rebuildView()
			}
			if !m.menu.active {
				m.layout()
				m.rebuildView()
			}
			return m, cmd
		}

		if m.confirming {
			switch msg.String() {
			case "y", "Y":
				m.confirming = false
				return m, m.resetHistory()
			case "n", "N", "esc":
				m.confirming = false
				m.push("confirm_deny", "History kept.")
				return m, nil
			}
			return m, nil
		}

		if msg.String() == "/" && m.textarea.Value() == "" && !m.thinking {
			m.menu.active = true
			m.menu.list.ResetSelected()
			m.menu.list.ResetFilter()
			m.layout()
			m.rebuildView()
			var cmd tea.Cmd
			m.menu, cmd = m.menu.Update(msg)
			return m, cmd
		}

		switch msg.Type {
		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		case tea.KeyEsc:
			return m, m.quit()
		case tea.KeyCtrlC:
			if m.thinking {
				m.thinking = false
				m.cancel()
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.seq++
				m.push("system", "⚠ Request cancelled.")
				return m, nil
			}
			return m, m.quit()
		case tea.KeyEnter:
			if msg.Alt {
				break
			}
			text := strings.TrimSpace(m.textarea.Value())
			if m.thinking {
				if text != "" {
					m.push("system", "⏸ Still processing... (Ctrl+C to cancel)")
				}
				return m, nil
			}
			if text == "" {
				return m, nil
			}
			m.textarea.Reset()

			if strings.HasPrefix(text, "/") {
				return m.handleSlashCommand(text)
			}
			return m, m.send(text)
		}

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress {
			switch msg.Button {
			case tea.MouseButtonWheelUp:
				m.viewport.LineUp(3)
				return m, nil
			case tea.MouseButtonWheelDown:
				m.viewport.LineDown(3)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case replyMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.thinking = false
		m.mode = m.deps.Brain.Mode()
		return m, m.handleReply(msg.reply, msg.err)

	case importDoneMsg:
		m.thinking = false
		if msg.err != nil {
			m.push("error", fmt.Sprintf("Import of %s failed: %v", msg.pattern, msg.err))
			return m, nil
		}
		m.push("confirm", fmt.Sprintf("Data injection complete: %d concepts imported, %d skipped.", msg.res.Imported, msg.res.Skipped))
		return m, nil

	case voiceErrMsg:
		m.push("system", "Voice unavailable: "+msg.err.Error())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.frame++
		m.spinner, cmd = m.spinner.Update(msg)
		if m.thinking {
			m.rebuildView()
		}
		cmds = append(cmds, cmd)
	}

	if !m.menu.active && !m.keys.active {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// send stops any speech and asks the router in the background.
func (m *Model) send(text string) tea.Cmd {
	if m.deps.Voice != nil {
		m.deps.Voice.Stop()
	}
	m.push("user", text)
	m.thinking = true
	m.seq++
	m.rebuildView()

	ctx, seq, b := m.ctx, m.seq, m.deps.Brain
	return func() tea.Msg {
		reply, err := b.Respond(ctx, text)
		return replyMsg{reply: reply, err: err, seq: seq}
	}
}

func (m *Model) handleReply(r brain.Reply, err error) tea.Cmd {
	if r.Kind == brain.KindSystem {
		m.push("alert", r.Text)
		return nil
	}
	if err != nil {
		m.push("error", err.Error())
		return nil
	}
	m.push("assistant", r.Text)
	return m.speak(r.Text)
}

func (m *Model) speak(text string) tea.Cmd {
	if !m.voiceOn || m.deps.Voice == nil {
		return nil
	}
	v, ctx := m.deps.Voice, m.ctx
	var key string
	if m.deps.Keys != nil {
		key = m.deps.Keys.Resolve().Key
	}
	return func() tea.Msg {
		if err := v.Speak(ctx, text, key); err != nil && !errors.Is(err, context.Canceled) {
			return voiceErrMsg{err: err}
		}
		return nil
	}
}

func (m *Model) resetHistory() tea.Cmd {
	if err := m.deps.Brain.ResetHistory(m.ctx); err != nil {
		m.push("error", err.Error())
		return nil
	}
	m.messages = nil
	m.push("confirm", "Memory banks wiped. Learning state restored to level 1.")
	return nil
}

func (m *Model) applyKeyAction() {
	action, value := m.keys.Take()
	if m.deps.Keys == nil || action == keyNone {
		return
	}
	var err error
	switch action {
	case keySet:
		err = m.deps.Keys.Set(value)
	case keyClear:
		err = m.deps.Keys.Clear()
	}
	if err != nil {
		m.push("error", "Could not update the key: "+err.Error())
		return
	}
	m.mode = m.deps.Brain.Mode()
	if m.mode == brain.ModeRemote {
		m.push("confirm", "Neural link established. Next message goes to the remote models.")
	} else {
		m.push("confirm", "Key removed. Running on the local core.")
	}
}

func (m *Model) quit() tea.Cmd {
	if m.deps.Voice != nil {
		m.deps.Voice.Stop()
	}
	m.cancel()
	return tea.Quit
}

// handleSlashCommand processes /commands entered by the user.
func (m *Model) handleSlashCommand(text string) (Model, tea.Cmd) {
	parts := strings.Fields(text)
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "/help":
		m.push("system", `Available commands:
    /help            show this help
    /stats           creator, level and memory counts
    /history [n]     show the last n exchanges (default 10)
    /clear           wipe history and reset learning (asks first)
    /key             set or remove the API key
    /import <path>   import concepts from .json/.xlsx files or a glob
    /voice on|off    toggle spoken replies
    /stop            stop speaking
    /quit            exit

  Offline teaching:
    learn: <trigger> = <response>

  Keyboard shortcuts:
    Enter            send
    Alt+Enter        new line
    Ctrl+C           cancel current request / quit
    PgUp/PgDown      scroll
    Esc              quit`)

	case "/stats":
		m.push("system", formatStats(m.deps.Brain.Snapshot(m.ctx)))

	case "/history":
		n := defaultHistory
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				m.push("error", "Usage: /history [n]")
				return *m, nil
			}
			n = v
		}
		recs, err := m.deps.Brain.History(m.ctx, n)
		if err != nil {
			m.push("error", err.Error())
		} else {
			m.push("system", formatHistory(recs, m.title))
		}

	case "/clear":
		m.confirming = true
		m.push("confirm_prompt", "Wipe all conversation history and reset learning? [y/n]")

	case "/key":
		if m.deps.Keys == nil {
			m.push("error", "Key management is not available.")
			return *m, nil
		}
		cmd := m.keys.Open(m.deps.Keys.Resolve())
		m.textarea.Blur()
		m.layout()
		m.rebuildView()
		return *m, cmd

	case "/import":
		if len(args) == 0 {
			m.push("error", "Usage: /import <path|glob>")
			return *m, nil
		}
		if m.deps.Import == nil {
			m.push("error", "Import is not available.")
			return *m, nil
		}
		pattern := strings.Join(args, " ")
		m.thinking = true
		m.push("system", "Injecting data from "+pattern+"...")
		ctx, imp := m.ctx, m.deps.Import
		return *m, func() tea.Msg {
			res, err := imp(ctx, pattern)
			return importDoneMsg{pattern: pattern, res: res, err: err}
		}

	case "/voice":
		if m.deps.Voice == nil {
			m.push("error", "No voice output is configured.")
			break
		}
		switch {
		case len(args) == 0:
			m.voiceOn = !m.voiceOn
		case args[0] == "on":
			m.voiceOn = true
		case args[0] == "off":
			m.voiceOn = false
		default:
			m.push("error", "Usage: /voice on|off")
			return *m, nil
		}
		if !m.voiceOn {
			m.deps.Voice.Stop()
		}
		m.push("system", "Voice "+onOff(m.voiceOn)+".")

	case "/stop":
		if m.deps.Voice != nil {
			m.deps.Voice.Stop()
		}
		m.push("system", "Silenced.")

	case "/quit":
		return *m, m.quit()

	default:
		m.push("error", fmt.Sprintf("Unknown command: %s (type /help for available commands)", cmd))
	}

	m.rebuildView()
	return *m, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m *Model) push(role, content string) {
	m.messages = append(m.messages, chatMessage{role: role, content: content})
	m.rebuildView()
}

func (m *Model) rebuildView() {
	var sb strings.Builder

	for _, msg := range m.messages {
		switch msg.role {
		case "welcome":
			sb.WriteString(m.renderAssistantBlock(msg.content, false))
		case "user":
			sb.WriteString(m.renderUserBlock(msg.content))
		case "assistant":
			sb.WriteString(m.renderAssistantBlock(msg.content, true))
		case "alert":
			sb.WriteString(AlertStyle.Render("  ⚠ "+msg.content) + "\n\n")
		case "confirm_prompt":
			sb.WriteString(ConfirmStyle.Render("  ? "+msg.content) + "\n\n")
		case "confirm":
			sb.WriteString(SuccessStyle.Render("  ✓ "+msg.content) + "\n\n")
		case "confirm_deny":
			sb.WriteString(ErrorStyle.Render("  ✗ "+msg.content) + "\n\n")
		case "system":
			sb.WriteString(SystemMsgStyle.Render(indent(msg.content)) + "\n\n")
		case "error":
			sb.WriteString(ErrorStyle.Render("  ✗ Error: "+msg.content) + "\n\n")
		}
	}

	if m.thinking {
		sb.WriteString(SpinnerStyle.Render(fmt.Sprintf(" %s Processing...", m.spinner.View())) + "\n")
	}

	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(sb.String())
	if wasAtBottom || len(m.messages) <= 1 {
		m.viewport.GotoBottom()
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderUserBlock(content string) string {
	return UserBlockStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			RoleHeaderStyle.Foreground(BrightCyan).Render(strings.ToUpper(m.title)),
			UserMsgStyle.Render(content),
		),
	) + "\n"
}

func (m *Model) renderAssistantBlock(content string, markdown bool) string {
	body := AssistantMsgStyle.Render(content)
	if markdown && m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			body = rendered
		}
	}
	body = strings.TrimRight(body, "\n")

	return AssistantBlockStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			RoleHeaderStyle.Foreground(Gold).Render("JARBAS"),
			body,
		),
	) + "\n"
}

func (m Model) View() string {
	badge := OfflineBadge.Render("OFFLINE · LOCAL CORE")
	if m.mode == brain.ModeRemote {
		badge = OnlineBadge.Render("ONLINE · NEURAL LINK")
	}

	state := "Standing by"
	if m.thinking {
		state = "Processing..."
	}
	voice := "off"
	if m.voiceOn {
		voice = "on"
	}

	right := lipgloss.JoinVertical(lipgloss.Left,
		LabelStyle.Render("MODE"),
		badge,
		"",
		LabelStyle.Render("STATUS"),
		lipgloss.NewStyle().Foreground(White).Render(state),
		lipgloss.NewStyle().Foreground(LightGray).Render("voice "+voice),
	)

	headerInner := lipgloss.JoinHorizontal(lipgloss.Center,
		lipgloss.NewStyle().PaddingLeft(2).Render(AnimatedBanner(m.frame)),
		lipgloss.NewStyle().Width(4).Render(""),
		lipgloss.NewStyle().PaddingRight(2).Render(right),
	)
	header := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(DimBlue).
		Width(m.width).
		Align(lipgloss.Center).
		Render(headerInner)

	prompt := lipgloss.NewStyle().Foreground(Cyan).Bold(true).Render("> ")
	if m.thinking {
		prompt = lipgloss.NewStyle().Foreground(Gold).Bold(true).Render("● ")
	} else if m.confirming {
		prompt = lipgloss.NewStyle().Foreground(Amber).Bold(true).Render("? ")
	}
	inputBox := InputBoxStyle.
		Width(max(m.width-4, 20)).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, prompt, m.textarea.View()))

	help := HelpStyle.Render("Enter: send  •  Alt+Enter: newline  •  /help  •  Esc: quit")

	mainView := lipgloss.JoinVertical(lipgloss.Left,
		header,
		ViewportStyle.Render(m.viewport.View()),
		inputBox,
		lipgloss.NewStyle().PaddingLeft(2).Render(help),
	)

	switch {
	case m.keys.active:
		return lipgloss.JoinVertical(lipgloss.Left, mainView, m.keys.View())
	case m.menu.active:
		return lipgloss.JoinVertical(lipgloss.Left, mainView, m.menu.View())
	}
	return mainView
}
