package brain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeanpaul/jarbas/internal/config"
	"github.com/jeanpaul/jarbas/internal/localbrain"
	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/jeanpaul/jarbas/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeReasoner answers per model id and records every request.
type fakeReasoner struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []provider.Request
}

func (f *fakeReasoner) Generate(_ context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Model]; ok {
		return "", err
	}
	return f.answers[req.Model], nil
}

func (f *fakeReasoner) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Model)
	}
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var threeModels = []provider.ModelSpec{
	{ID: "model-a", ThinkingBudget: 2048},
	{ID: "model-b", ThinkingBudget: 2048},
	{ID: "model-c"},
}

func newRouter(t *testing.T, st Store, key string, r provider.Reasoner, opts ...Option) (*Router, *int) {
	t.Helper()
	dials := 0
	return New(Deps{
		Store:       st,
		Credentials: config.StaticCredential(key),
		Dial: func(context.Context, string) (provider.Reasoner, error) {
			dials++
			return r, nil
		},
		Models: threeModels,
		Logger: zerolog.Nop(),
	}, opts...), &dials
}

func TestRespond_OfflineUsesLocalEngine(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeReasoner{}
	r, dials := newRouter(t, st, "", fr)
	ctx := context.Background()

	reply, err := r.Respond(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, reply.Mode)
	assert.Equal(t, KindAssistant, reply.Kind)
	assert.Equal(t, localbrain.StageStatic, reply.Stage)
	assert.Contains(t, reply.Text, "DIAGNOSTIC")
	assert.Zero(t, *dials, "no remote call offline")
	assert.Empty(t, fr.models())

	hist, err := st.RecentHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "status", hist[0].UserMessage)
	assert.Equal(t, ContextLocal, hist[0].Context)

	learning, err := st.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, learning.Level, "local answers do not advance learning")
}

func TestRespond_OfflineTeachAdvancesLearning(t *testing.T) {
	st := newTestStore(t)
	r, _ := newRouter(t, st, "", &fakeReasoner{})
	ctx := context.Background()

	_, err := r.Respond(ctx, "learn: favorite color = green")
	require.NoError(t, err)
	reply, err := r.Respond(ctx, "what is my favorite color")
	require.NoError(t, err)
	assert.Equal(t, "[LEARNED MEMORY] green", reply.Text)

	learning, err := st.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, learning.Level)
	assert.Contains(t, learning.Areas, localbrain.TeachArea)
}

func TestRespond_FallbackChainUsesThirdModel(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeReasoner{
		answers: map[string]string{"model-c": "Third time lucky."},
		errs: map[string]error{
			"model-a": genai.APIError{Code: 404, Message: "model not found"},
			"model-b": errors.New("internal error"),
		},
	}
	r, _ := newRouter(t, st, "key", fr)
	ctx := context.Background()

	reply, err := r.Respond(ctx, "explain goroutines")
	require.NoError(t, err)
	assert.Equal(t, "Third time lucky.", reply.Text)
	assert.Equal(t, "model-c", reply.Model)
	assert.Equal(t, "general_model-c", reply.ContextTag)
	assert.NotContains(t, reply.Text, "not found")
	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, fr.models())

	hist, err := st.RecentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "general_model-c", hist[0].Context)

	learning, err := st.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, learning.Level)
	assert.Equal(t, store.DefaultAreas(), learning.Areas, "areas unchanged on remote success")
}

func TestRespond_ThinkingBudgetOnlyForCapableModels(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeReasoner{
		answers: map[string]string{"model-c": "ok"},
		errs:    map[string]error{"model-a": errors.New("x"), "model-b": errors.New("y")},
	}
	r, _ := newRouter(t, st, "key", fr)

	_, err := r.Respond(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, fr.calls, 3)
	assert.Equal(t, int32(2048), fr.calls[0].ThinkingBudget)
	assert.Equal(t, int32(0), fr.calls[2].ThinkingBudget)
}

func TestRespond_PromptCarriesIdentityAndHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetCreatorProfile(ctx, store.CreatorProfile{Name: "Ana", Title: "Chief", SpeechStyle: "brief"}))
	for i := 0; i < 7; i++ {
		_, err := st.AppendConversation(ctx, store.ConversationRecord{
			UserMessage: "question " + string(rune('0'+i)),
			Reply:       "answer " + string(rune('0'+i)),
		})
		require.NoError(t, err)
	}

	fr := &fakeReasoner{answers: map[string]string{"model-a": "Understood, Chief."}}
	r, _ := newRouter(t, st, "key", fr, WithHistoryWindow(5), WithPersona("You are a test persona."))

	_, err := r.Respond(ctx, "new question")
	require.NoError(t, err)
	require.Len(t, fr.calls, 1)

	req := fr.calls[0]
	assert.Contains(t, req.SystemInstruction, "You are a test persona.")
	assert.Contains(t, req.SystemInstruction, `address as "Chief"`)
	assert.Contains(t, req.SystemInstruction, "Intelligence level: 1")

	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.NotContains(t, prompt, "question 1\n", "only the last five exchanges")
	assert.Contains(t, prompt, "[Chief]: question 2")
	assert.Contains(t, prompt, "[JARBAS]: answer 6")
	assert.True(t, strings.HasSuffix(prompt, "[Chief]: new question\n[JARBAS]:"))
	assert.Less(t, strings.Index(prompt, "question 2"), strings.Index(prompt, "question 6"), "oldest first")
}

func TestRespond_EmptyTextBecomesPlaceholder(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeReasoner{answers: map[string]string{"model-a": "  "}}
	r, _ := newRouter(t, st, "key", fr)

	reply, err := r.Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, emptyResponseText, reply.Text)
}

func TestRespond_ExhaustionIsSystemMessageAndNotPersisted(t *testing.T) {
	st := newTestStore(t)
	boom := errors.New("upstream exploded")
	fr := &fakeReasoner{errs: map[string]error{"model-a": boom, "model-b": boom, "model-c": boom}}
	r, _ := newRouter(t, st, "key", fr)
	ctx := context.Background()

	reply, err := r.Respond(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, KindSystem, reply.Kind)
	assert.True(t, strings.HasPrefix(reply.Text, "[CRITICAL FAILURE]"))
	assert.Contains(t, reply.Text, "upstream exploded")

	hist, err := st.RecentHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)

	learning, err := st.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, learning.Level)
}

func TestRespond_AuthFailureIsAccessDenied(t *testing.T) {
	st := newTestStore(t)
	denied := genai.APIError{Code: 403, Message: "API key not valid"}
	fr := &fakeReasoner{errs: map[string]error{"model-a": denied, "model-b": denied, "model-c": denied}}
	r, _ := newRouter(t, st, "key", fr)

	reply, err := r.Respond(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(reply.Text, "[ACCESS DENIED]"))
}

func TestRespond_DialFailure(t *testing.T) {
	st := newTestStore(t)
	r := New(Deps{
		Store:       st,
		Credentials: config.StaticCredential("key"),
		Dial: func(context.Context, string) (provider.Reasoner, error) {
			return nil, errors.New("no route")
		},
		Logger: zerolog.Nop(),
	})
	reply, err := r.Respond(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, KindSystem, reply.Kind)
}

func TestRespond_ReusesClientPerKey(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeReasoner{answers: map[string]string{"model-a": "ok"}}
	r, dials := newRouter(t, st, "key", fr)

	for i := 0; i < 3; i++ {
		_, err := r.Respond(context.Background(), "hello")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *dials)
}

func TestRespond_EmptyMessage(t *testing.T) {
	r, _ := newRouter(t, newTestStore(t), "", &fakeReasoner{})
	_, err := r.Respond(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRespond_AttemptTimeoutMovesOn(t *testing.T) {
	st := newTestStore(t)
	slow := provider.Reasoner(reasonerFunc(func(ctx context.Context, req provider.Request) (string, error) {
		if req.Model == "model-a" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fast answer", nil
	}))
	r, _ := newRouter(t, st, "key", slow, WithAttemptTimeout(20*time.Millisecond))

	reply, err := r.Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "model-b", reply.Model)
}

type reasonerFunc func(ctx context.Context, req provider.Request) (string, error)

func (f reasonerFunc) Generate(ctx context.Context, req provider.Request) (string, error) {
	return f(ctx, req)
}

// failingStore breaks every write but still answers reads.
type failingStore struct {
	*store.Store
}

func (f failingStore) AppendConversation(context.Context, store.ConversationRecord) (store.ConversationRecord, error) {
	return store.ConversationRecord{}, store.ErrStorageUnavailable
}

func (f failingStore) AdvanceLearning(context.Context, int, ...string) (store.LearningState, error) {
	return store.LearningState{}, store.ErrStorageUnavailable
}

func TestRespond_StoreWriteFailureStillReplies(t *testing.T) {
	st := failingStore{newTestStore(t)}
	fr := &fakeReasoner{answers: map[string]string{"model-a": "still here"}}
	r, _ := newRouter(t, st, "key", fr)

	reply, err := r.Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "still here", reply.Text)

	r, _ = newRouter(t, st, "", fr)
	reply, err = r.Respond(context.Background(), "status")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "DIAGNOSTIC")
}

func TestResetHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	fr := &fakeReasoner{answers: map[string]string{"model-a": "ok"}}
	r, _ := newRouter(t, st, "key", fr)

	for i := 0; i < 3; i++ {
		_, err := r.Respond(ctx, "hello")
		require.NoError(t, err)
	}
	_, err := st.TeachConcept(ctx, "keep", "me")
	require.NoError(t, err)

	require.NoError(t, r.ResetHistory(ctx))

	hist, err := st.RecentHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
	learning, err := st.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, learning.Level)

	snap := r.Snapshot(ctx)
	assert.Equal(t, 0, snap.Conversations)
	assert.Equal(t, 1, snap.Concepts, "taught concepts survive a history reset")
	assert.Equal(t, ModeRemote, snap.Mode)
}

func TestLearningLevelIsMonotonic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	fr := &fakeReasoner{answers: map[string]string{"model-a": "ok"}}
	online, _ := newRouter(t, st, "key", fr)
	offline, _ := newRouter(t, st, "", fr)

	last := 1
	inputs := []struct {
		r   *Router
		msg string
	}{
		{online, "hi"}, {offline, "learn: a = b"}, {offline, "status"}, {online, "again"}, {offline, "learn: broken"},
	}
	for _, in := range inputs {
		_, err := in.r.Respond(ctx, in.msg)
		require.NoError(t, err)
		learning, err := st.LearningState(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, learning.Level, last)
		last = learning.Level
	}
	assert.Equal(t, 4, last)
}
