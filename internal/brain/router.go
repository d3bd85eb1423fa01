// Package brain decides, for every user message, whether the remote model
// chain or the local engine answers, and records the exchange.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeanpaul/jarbas/internal/config"
	"github.com/jeanpaul/jarbas/internal/localbrain"
	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/jeanpaul/jarbas/internal/store"
	"github.com/rs/zerolog"
)

// Store is everything the router reads and writes.
type Store interface {
	localbrain.KnowledgeStore
	CreatorProfile(ctx context.Context) (store.CreatorProfile, error)
	LearningState(ctx context.Context) (store.LearningState, error)
	RecentHistory(ctx context.Context, limit int) ([]store.ConversationRecord, error)
	AppendConversation(ctx context.Context, rec store.ConversationRecord) (store.ConversationRecord, error)
	ClearHistory(ctx context.Context) error
	ResetLearningState(ctx context.Context) error
}

// statser is implemented by stores that can count their records.
type statser interface {
	Stats(ctx context.Context) (store.Stats, error)
}

const (
	ModeLocal  = "local"
	ModeRemote = "remote"

	// ContextLocal tags exchanges answered by the local engine.
	ContextLocal = "local"

	emptyResponseText = "Error: empty response from the neural processor."
)

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("empty message")

// Kind separates normal replies from system-class failure notices.
type Kind int

const (
	KindAssistant Kind = iota
	KindSystem
)

type Reply struct {
	Text       string
	Kind       Kind
	Mode       string
	Model      string
	ContextTag string
	Stage      localbrain.Stage // local replies only
}

type Deps struct {
	Store       Store
	Local       *localbrain.Engine // built over Store when nil
	Credentials config.CredentialSource
	Dial        provider.Dialer
	Models      []provider.ModelSpec
	Logger      zerolog.Logger
}

type Option func(*Router)

func WithHistoryWindow(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.window = n
		}
	}
}

// WithAttemptTimeout bounds each model attempt. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithRetries gives each model extra tries on quota and network failures.
func WithRetries(n int) Option {
	return func(r *Router) { r.retries = n }
}

func WithPersona(p string) Option {
	return func(r *Router) {
		if strings.TrimSpace(p) != "" {
			r.persona = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router is the single entry point for user messages. It is safe for
// concurrent use.
type Router struct {
	store   Store
	local   *localbrain.Engine
	creds   config.CredentialSource
	dial    provider.Dialer
	models  []provider.ModelSpec
	log     zerolog.Logger
	window  int
	timeout time.Duration
	retries int
	persona string
	now     func() time.Time

	mu       sync.Mutex
	dialedAt string
	reasoner provider.Reasoner
}

func New(d Deps, opts ...Option) *Router {
	r := &Router{
		store:   d.Store,
		local:   d.Local,
		creds:   d.Credentials,
		dial:    d.Dial,
		models:  d.Models,
		log:     d.Logger.With().Str("component", "brain").Logger(),
		window:  5,
		timeout: 60 * time.Second,
		persona: config.DefaultPersona,
		now:     time.Now,
	}
	if r.creds == nil {
		r.creds = config.StaticCredential("")
	}
	if r.dial == nil {
		r.dial = provider.DialGemini
	}
	if len(r.models) == 0 {
		r.models = provider.DefaultModels()
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.local == nil {
		r.local = localbrain.New(d.Store, localbrain.WithLogger(d.Logger), localbrain.WithClock(r.now))
	}
	return r
}

// Mode reports which path the next message would take.
func (r *Router) Mode() string {
	if r.creds.Resolve().Online() {
		return ModeRemote
	}
	return ModeLocal
}

// Respond answers message. Local and remote successes are persisted; on
// remote exhaustion nothing is written and a KindSystem reply comes back
// together with the error.
func (r *Router) Respond(ctx context.Context, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}
	cred := r.creds.Resolve()
	if !cred.Online() {
		return r.respondLocal(ctx, message), nil
	}
	return r.respondRemote(ctx, message, cred.Key)
}

func (r *Router) respondLocal(ctx context.Context, message string) Reply {
	res := r.local.Respond(ctx, message)
	r.persist(ctx, message, res.Text, ContextLocal)
	return Reply{
		Text:       res.Text,
		Kind:       KindAssistant,
		Mode:       ModeLocal,
		ContextTag: ContextLocal,
		Stage:      res.Stage,
	}
}

func (r *Router) respondRemote(ctx context.Context, message, key string) (Reply, error) {
	creator, err := r.store.CreatorProfile(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("creator profile unavailable, using defaults")
		creator = store.DefaultCreator()
	}
	learning, err := r.store.LearningState(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("learning state unavailable, using defaults")
		learning = store.LearningState{Level: store.DefaultLevel, Areas: store.DefaultAreas()}
	}
	history, err := r.store.RecentHistory(ctx, r.window)
	if err != nil {
		r.log.Warn().Err(err).Msg("history unavailable, continuing without it")
		history = nil
	}

	reasoner, err := r.reasonerFor(ctx, key)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to reach the reasoning provider")
		return failureReply(err), err
	}

	req := provider.Request{
		SystemInstruction: systemInstruction(r.persona, creator, learning),
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: conversationPrompt(creator.Title, history, message)},
		},
	}

	fb := NewFallback(r.models)
	for spec, ok := fb.Next(); ok; spec, ok = fb.Next() {
		out := attempt(ctx, reasoner, spec, req)
		if out.Failure != nil {
			r.log.Warn().
				Str("model", spec.ID).
				Str("kind", string(out.Failure.Kind)).
				Err(out.Failure.Err).
				Msg("model attempt failed, trying next")
		}
		fb.Record(out)
	}

	win, err := fb.Result()
	if err != nil {
		r.log.Error().Err(err).Int("attempts", len(fb.Outcomes())).Msg("model chain exhausted")
		return failureReply(err), err
	}

	text := win.Text
	if strings.TrimSpace(text) == "" {
		text = emptyResponseText
	}
	if _, err := r.store.AdvanceLearning(ctx, 1); err != nil {
		r.log.Warn().Err(err).Msg("failed to advance learning state")
	}

	tag := "general_" + win.Model
	r.persist(ctx, message, text, tag)
	r.log.Debug().Str("model", win.Model).Int("attempts", len(fb.Outcomes())).Msg("remote reply")
	return Reply{
		Text:       text,
		Kind:       KindAssistant,
		Mode:       ModeRemote,
		Model:      win.Model,
		ContextTag: tag,
	}, nil
}

// reasonerFor reuses the last dialed client while the key is unchanged.
func (r *Router) reasonerFor(ctx context.Context, key string) (provider.Reasoner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reasoner != nil && r.dialedAt == key {
		return r.reasoner, nil
	}
	inner, err := r.dial(ctx, key)
	if err != nil {
		return nil, err
	}
	r.reasoner = provider.WithAttemptTimeout(inner, r.timeout).WithRetries(r.retries)
	r.dialedAt = key
	return r.reasoner, nil
}

func (r *Router) persist(ctx context.Context, message, reply, tag string) {
	_, err := r.store.AppendConversation(ctx, store.ConversationRecord{
		UserMessage: message,
		Reply:       reply,
		Context:     tag,
		CreatedAt:   r.now(),
	})
	if err != nil {
		r.log.Warn().Err(err).Str("context", tag).Msg("failed to save conversation")
	}
}

func failureReply(err error) Reply {
	kind := provider.Classify(err)
	detail := provider.Friendly(err)
	var exhausted *AllModelsFailedError
	if errors.As(err, &exhausted) {
		kind = exhausted.Kind
		if exhausted.Last != nil {
			detail = provider.Friendly(exhausted.Last)
		}
	}

	text := fmt.Sprintf("[CRITICAL FAILURE] Could not process your request, not even with backup protocols. Error: %s", detail)
	if kind == provider.KindAuth {
		text = "[ACCESS DENIED] The provided key is invalid or has expired. Check it in Google AI Studio."
	}
	return Reply{Text: text, Kind: KindSystem, Mode: ModeRemote}
}

// ResetHistory wipes the conversation history and restores the learning
// state to its defaults.
func (r *Router) ResetHistory(ctx context.Context) error {
	if err := r.store.ClearHistory(ctx); err != nil {
		return fmt.Errorf("reset history: %w", err)
	}
	if err := r.store.ResetLearningState(ctx); err != nil {
		return fmt.Errorf("reset learning state: %w", err)
	}
	r.log.Info().Msg("history and learning state reset")
	return nil
}

// Snapshot is what the stats panel shows.
type Snapshot struct {
	Creator       store.CreatorProfile
	Learning      store.LearningState
	Conversations int
	Concepts      int
	Mode          string
	Origin        string
}

// Snapshot gathers the current state. Read failures fall back to defaults.
func (r *Router) Snapshot(ctx context.Context) Snapshot {
	cred := r.creds.Resolve()
	s := Snapshot{Mode: ModeLocal, Origin: cred.Origin}
	if cred.Online() {
		s.Mode = ModeRemote
	}
	var err error
	if s.Creator, err = r.store.CreatorProfile(ctx); err != nil {
		s.Creator = store.DefaultCreator()
	}
	if s.Learning, err = r.store.LearningState(ctx); err != nil {
		s.Learning = store.LearningState{Level: store.DefaultLevel, Areas: store.DefaultAreas()}
	}
	if st, ok := r.store.(statser); ok {
		if counts, err := st.Stats(ctx); err == nil {
			s.Conversations, s.Concepts = counts.Conversations, counts.Concepts
		}
	}
	return s
}

// History returns the latest n exchanges, oldest first.
func (r *Router) History(ctx context.Context, n int) ([]store.ConversationRecord, error) {
	return r.store.RecentHistory(ctx, n)
}
