package tui

import (
	"fmt"
	"strings"

	"github.com/jeanpaul/jarbas/internal/brain"
	"github.com/jeanpaul/jarbas/internal/store"
)

// formatStats renders the /stats panel.
func formatStats(s brain.Snapshot) string {
	var b strings.Builder

	b.WriteString("SYSTEM STATUS\n")
	b.WriteString(strings.Repeat("─", 40) + "\n")
	fmt.Fprintf(&b, "Creator:      %s (%s)\n", s.Creator.Name, s.Creator.Title)
	fmt.Fprintf(&b, "Style:        %s\n", s.Creator.SpeechStyle)
	fmt.Fprintf(&b, "Mode:         %s\n", modeLabel(s.Mode, s.Origin))
	fmt.Fprintf(&b, "Level:        %d %s\n", s.Learning.Level, makeBar(s.Learning.Level, 20))
	fmt.Fprintf(&b, "Exchanges:    %d\n", s.Conversations)
	fmt.Fprintf(&b, "Concepts:     %d\n", s.Concepts)
	if len(s.Learning.Areas) > 0 {
		b.WriteString("Mastered areas:\n")
		for _, a := range uniqueAreas(s.Learning.Areas) {
			fmt.Fprintf(&b, "  • %s\n", a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatHistory renders exchanges oldest first.
func formatHistory(records []store.ConversationRecord, title string) string {
	if len(records) == 0 {
		return "No exchanges recorded."
	}
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "%s  [%s]\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Context)
		fmt.Fprintf(&b, "  %s: %s\n", title, truncate(oneLine(r.UserMessage), 80))
		fmt.Fprintf(&b, "  JARBAS: %s\n", truncate(oneLine(r.Reply), 80))
	}
	return strings.TrimRight(b.String(), "\n")
}

func modeLabel(mode, origin string) string {
	if mode == brain.ModeRemote {
		if origin != "" {
			return "ONLINE (key from " + origin + ")"
		}
		return "ONLINE"
	}
	return "OFFLINE (local core)"
}

// uniqueAreas collapses repeats, keeping first-seen order and a count.
func uniqueAreas(areas []string) []string {
	counts := map[string]int{}
	var order []string
	for _, a := range areas {
		if counts[a] == 0 {
			order = append(order, a)
		}
		counts[a]++
	}
	out := make([]string, len(order))
	for i, a := range order {
		if n := counts[a]; n > 1 {
			out[i] = fmt.Sprintf("%s ×%d", a, n)
		} else {
			out[i] = a
		}
	}
	return out
}

// makeBar fills one cell per level, capped at width.
func makeBar(level, width int) string {
	filled := min(max(level, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
