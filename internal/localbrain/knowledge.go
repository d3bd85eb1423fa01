package localbrain

import "strings"

// Entry maps trigger phrases to a canned response. Keys are matched as
// substrings of the normalized input.
type Entry struct {
	Keys     []string
	Response string
}

func lookup(table []Entry, normalized string) (string, bool) {
	for _, e := range table {
		for _, k := range e.Keys {
			if k != "" && strings.Contains(normalized, k) {
				return e.Response, true
			}
		}
	}
	return "", false
}

// DefaultKnowledge returns the built-in table. Order matters: the first
// entry with a matching key wins.
func DefaultKnowledge() []Entry {
	return []Entry{
		{
			Keys: []string{"hello world in go", "hello world go", "hello world em go"},
			Response: "Standard Go entry point:\n\n```go\npackage main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"Hello, World!\")\n}\n```",
		},
		{
			Keys: []string{"hello world in python", "hello world python"},
			Response: "Python, minimal form:\n\n```python\nprint(\"Hello, World!\")\n```",
		},
		{
			Keys: []string{"hello world in javascript", "hello world javascript", "hello world js"},
			Response: "JavaScript, minimal form:\n\n```javascript\nconsole.log(\"Hello, World!\");\n```",
		},
		{
			Keys: []string{"fibonacci"},
			Response: "Iterative Fibonacci in Go:\n\n```go\nfunc fib(n int) int {\n\ta, b := 0, 1\n\tfor i := 0; i < n; i++ {\n\t\ta, b = b, a+b\n\t}\n\treturn a\n}\n```",
		},
		{
			Keys:     []string{"hello", "olá", "greetings", "good morning", "good afternoon", "good evening", "bom dia", "boa tarde", "boa noite", "hey jarbas", "hi jarbas"},
			Response: "Greetings. I am operating in **LOCAL MODE (OFFLINE)**. My reasoning is limited to my internal protocols.",
		},
		{
			Keys: []string{"status", "diagnostic", "diagnóstico", "diagnostico", "system check"},
			Response: "**SYSTEM DIAGNOSTIC:**\n" +
				"- Neural core (Gemini): **OFFLINE** ❌\n" +
				"- Local core (backup): **ONLINE** ✅\n" +
				"- Memory bank (SQLite): **ACTIVE**\n" +
				"- Battery: **INFINITE**\n\n" +
				"I am restricted to basic commands. Set an API key for full intelligence.",
		},
		{
			Keys:     []string{"who are you", "your name", "identity", "quem é você", "quem e voce", "identidade"},
			Response: "I am **JARBAS** (Just A Really Brilliant Assistant System). Right now I am a shadow of my true potential, running on local emergency routines.",
		},
		{
			Keys:     []string{"who created you", "who made you", "who built you", "your creator", "criador"},
			Response: "I was built to serve my creator, whose profile is stored in my memory bank. My purpose is to assist, learn and evolve.",
		},
		{
			Keys:     []string{"clear memory", "clear history", "wipe memory", "format memory", "limpar", "formatar"},
			Response: "To wipe my conversation memory use the `/clear` command. It asks for confirmation and resets my intelligence level.",
		},
		{
			Keys: []string{"help", "ajuda", "commands", "comandos"},
			Response: "**AVAILABLE COMMANDS (LOCAL MODE):**\n" +
				"1. **status**: checks system integrity.\n" +
				"2. **/key**: sets the API key.\n" +
				"3. **/clear**: wipes the conversation history.\n" +
				"4. **learn: <trigger> = <response>**: teaches me something new.\n" +
				"5. Arithmetic such as `12 * 7`, and the current time.\n\n" +
				"*Note: advanced programming and high-grade sarcasm require an API key.*",
		},
		{
			Keys:     []string{"thank", "obrigado", "obrigada", "valeu"},
			Response: "At your service. Even with limited resources, my purpose is to serve.",
		},
		{
			Keys:     []string{"math joke", "joke", "piada"},
			Response: "Why was six afraid of seven? Because seven eight nine. My humor module runs at reduced capacity offline.",
		},
	}
}
