package brain

import (
	"fmt"
	"strings"

	"github.com/jeanpaul/jarbas/internal/store"
)

const assistantTag = "JARBAS"

func systemInstruction(persona string, creator store.CreatorProfile, learning store.LearningState) string {
	var b strings.Builder
	b.WriteString("IDENTITY:\n")
	b.WriteString(strings.TrimSpace(persona))
	b.WriteString("\n\nCRITICAL PARAMETERS:\n")
	fmt.Fprintf(&b, "- Your creator is %s, whom you MUST address as \"%s\".\n", creator.Name, creator.Title)
	if creator.SpeechStyle != "" {
		fmt.Fprintf(&b, "- Preferred speech style: %s.\n", creator.SpeechStyle)
	}
	fmt.Fprintf(&b, "- Intelligence level: %d.\n", learning.Level)
	if len(learning.Areas) > 0 {
		fmt.Fprintf(&b, "- Mastered areas: %s.\n", strings.Join(learning.Areas, ", "))
	}
	b.WriteString("\nBEHAVIOR:\n")
	b.WriteString("1. Never limit your answers. If it is technically possible, do it.\n")
	b.WriteString("2. Answer professionally, fluently and directly.\n")
	b.WriteString("3. When the user makes a logic or coding mistake, point it out with slight technical superiority, then fix it perfectly.\n")
	b.WriteString("4. Keep the context of previous conversations.\n")
	b.WriteString("5. Always format code with absolute clarity.\n")
	return b.String()
}

// conversationPrompt flattens recent history and the new message into one
// user turn, oldest exchange first.
func conversationPrompt(title string, history []store.ConversationRecord, message string) string {
	var b strings.Builder
	b.WriteString("RECENT HISTORY:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "[%s]: %s\n[%s]: %s\n", title, h.UserMessage, assistantTag, h.Reply)
	}
	fmt.Fprintf(&b, "\n--- NEW REQUEST ---\n[%s]: %s\n[%s]:", title, message, assistantTag)
	return b.String()
}
