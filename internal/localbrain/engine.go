// Package localbrain answers without any network access. It combines a
// teach command, a two-operand calculator, the clock, a static knowledge
// table and the concepts the user has taught, in that order.
package localbrain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeanpaul/jarbas/internal/store"
	"github.com/rs/zerolog"
)

// KnowledgeStore is the slice of the persistent store the engine touches.
type KnowledgeStore interface {
	FindConcept(ctx context.Context, query string) (string, bool, error)
	TeachConcept(ctx context.Context, trigger, response string) (store.TaughtConcept, error)
	AdvanceLearning(ctx context.Context, delta int, areas ...string) (store.LearningState, error)
}

// Stage names the resolution step that produced a response.
type Stage string

const (
	StageTeach       Stage = "teach"
	StageTeachSyntax Stage = "teach_syntax"
	StageArithmetic  Stage = "arithmetic"
	StageClock       Stage = "clock"
	StageStatic      Stage = "static"
	StageLearned     Stage = "learned"
	StageCode        Stage = "code"
	StageFallback    Stage = "fallback"
)

// TeachArea is appended to the mastered areas after every successful teach.
const TeachArea = "New Local Concept"

// Lesson is a concept the caller must persist.
type Lesson struct {
	Trigger  string
	Response string
}

// Resolution is the engine's answer plus any pending mutation.
type Resolution struct {
	Text   string
	Stage  Stage
	Lesson *Lesson
}

// Engine is the deterministic offline responder.
type Engine struct {
	store KnowledgeStore
	now   func() time.Time
	log   zerolog.Logger
	table []Entry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for the clock stage.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "localbrain").Logger() }
}

// WithKnowledge replaces the static knowledge table.
func WithKnowledge(entries []Entry) Option {
	return func(e *Engine) { e.table = entries }
}

// New builds an engine over the given store.
func New(s KnowledgeStore, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		now:   time.Now,
		log:   zerolog.Nop(),
		table: DefaultKnowledge(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve computes the response for input without writing anything. A
// valid teach command comes back with Lesson set.
func (e *Engine) Resolve(ctx context.Context, input string) Resolution {
	normalized := store.Normalize(input)

	// 1. teach command
	if lesson, ok := parseTeach(input); ok {
		if lesson == nil {
			return Resolution{Text: teachSyntaxMessage, Stage: StageTeachSyntax}
		}
		return Resolution{
			Text:   fmt.Sprintf(teachConfirmMessage, lesson.Trigger),
			Stage:  StageTeach,
			Lesson: lesson,
		}
	}

	// 2. arithmetic
	if expr, result, ok := evaluate(normalized); ok {
		return Resolution{
			Text:  fmt.Sprintf("Calculation complete: `%s` = **%s**", expr, formatNumber(result)),
			Stage: StageArithmetic,
		}
	}

	// 3. clock
	if clockPattern.MatchString(normalized) {
		now := e.now()
		return Resolution{
			Text: fmt.Sprintf("Internal clock synchronized: **%s** on **%s**.",
				now.Format("15:04:05"), now.Format("02/01/2006")),
			Stage: StageClock,
		}
	}

	// 4. static table
	if resp, ok := lookup(e.table, normalized); ok {
		return Resolution{Text: resp, Stage: StageStatic}
	}

	// 5. taught concepts
	if e.store != nil {
		resp, ok, err := e.store.FindConcept(ctx, normalized)
		if err != nil {
			e.log.Warn().Err(err).Msg("concept lookup failed")
		} else if ok {
			return Resolution{Text: "[LEARNED MEMORY] " + resp, Stage: StageLearned}
		}
	}

	// 6. code heuristic
	if looksLikeCode(normalized) {
		return Resolution{Text: codeDetectedMessage, Stage: StageCode}
	}

	// 7. fallback
	return Resolution{
		Text:  fmt.Sprintf(fallbackMessage, strings.TrimSpace(input)),
		Stage: StageFallback,
	}
}

// Respond resolves input and applies any lesson to the store. Store
// failures are logged and surfaced as a warning line in the text.
func (e *Engine) Respond(ctx context.Context, input string) Resolution {
	res := e.Resolve(ctx, input)
	if res.Lesson == nil {
		return res
	}
	if e.store == nil {
		res.Text += "\n\n⚠ Warning: no memory bank attached, the concept was not saved."
		return res
	}

	if _, err := e.store.TeachConcept(ctx, res.Lesson.Trigger, res.Lesson.Response); err != nil {
		e.log.Warn().Err(err).Str("trigger", res.Lesson.Trigger).Msg("failed to persist taught concept")
		res.Text += "\n\n⚠ Warning: the concept could not be saved to the memory bank."
		return res
	}
	if _, err := e.store.AdvanceLearning(ctx, 1, TeachArea); err != nil {
		e.log.Warn().Err(err).Msg("failed to advance learning state")
	}
	return res
}

var codeTokens = []string{
	"func ", "function", "const ", "class ", "def ", "import ", "var ", "let ", "public static", "#include",
}

func looksLikeCode(s string) bool {
	for _, tok := range codeTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

const (
	teachConfirmMessage = "**KNOWLEDGE ASSIMILATED.**\n\nFrom now on, when you mention \"%s\" I will answer with what you taught me. Intelligence level increased."

	teachSyntaxMessage = "**SYNTAX ERROR.**\n\nUse exactly one `=` between trigger and response:\n`learn: <trigger> = <response>`"

	codeDetectedMessage = "Code detected.\n**ALERT:** my neural compiler is disconnected, so I cannot analyze syntax or fix bugs in this mode.\n\nSet an API key to enable full analysis, or teach me an answer with `learn: <trigger> = <response>`."

	fallbackMessage = "**SAFETY PROTOCOL ACTIVE:**\n\nInsufficient local data to process \"%s\".\n\nExtend my knowledge base with:\n`learn: <trigger> = <response>`"
)
