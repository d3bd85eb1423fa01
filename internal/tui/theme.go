package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Core palette
	Cyan       = lipgloss.Color("#00D4FF")
	BrightCyan = lipgloss.Color("#7DF9FF")
	DeepBlue   = lipgloss.Color("#0077B6")
	DimBlue    = lipgloss.Color("#1B3A4B")
	Gold       = lipgloss.Color("#FFC300")
	Amber      = lipgloss.Color("#FFB000")
	Red        = lipgloss.Color("#FF4136")
	Green      = lipgloss.Color("#2ECC71")
	MidGray    = lipgloss.Color("#3a3a4e")
	LightGray  = lipgloss.Color("#aaaaaa")
	White      = lipgloss.Color("#e0e0e0")
	Black      = lipgloss.Color("#0D0208")

	UserMsgStyle = lipgloss.NewStyle().
			Foreground(BrightCyan)

	AssistantMsgStyle = lipgloss.NewStyle().
				Foreground(White)

	RoleHeaderStyle = lipgloss.NewStyle().
			Bold(true)

	UserBlockStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(BrightCyan).
			PaddingLeft(1).
			MarginBottom(1)

	AssistantBlockStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(Gold).
				PaddingLeft(1).
				MarginBottom(1)

	SystemMsgStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Italic(true)

	AlertStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	ConfirmStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Gold)

	InputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(DeepBlue).
			Padding(0, 1)

	ViewportStyle = lipgloss.NewStyle().
			Padding(0, 1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan).
			Padding(0, 1)

	OnlineBadge = lipgloss.NewStyle().
			Background(Green).
			Foreground(Black).
			Bold(true).
			Padding(0, 1)

	OfflineBadge = lipgloss.NewStyle().
			Background(Amber).
			Foreground(Black).
			Bold(true).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Gold).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(DimBlue)
)

const Banner = `
     ██╗ █████╗ ██████╗ ██████╗  █████╗ ███████╗
     ██║██╔══██╗██╔══██╗██╔══██╗██╔══██╗██╔════╝
     ██║███████║██████╔╝██████╔╝███████║███████╗
██   ██║██╔══██║██╔══██╗██╔══██╗██╔══██║╚════██║
╚█████╔╝██║  ██║██║  ██║██████╔╝██║  ██║███████║
 ╚════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝╚══════╝`

var bannerShades = []lipgloss.Color{DeepBlue, Cyan, BrightCyan, Cyan}

// AnimatedBanner shifts a blue gradient down the banner lines.
func AnimatedBanner(frame int) string {
	lines := strings.Split(strings.Trim(Banner, "\n"), "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		shade := bannerShades[(i+frame/4)%len(bannerShades)]
		out[i] = lipgloss.NewStyle().Foreground(shade).Bold(true).Render(line)
	}
	return strings.Join(out, "\n")
}
