package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/jeanpaul/jarbas/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber map[string]error

func (f fakeProber) Probe(ctx context.Context, model string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("probe without deadline")
	}
	return f[model]
}

func TestCheck_ReportsEveryModel(t *testing.T) {
	p := fakeProber{
		"b": errors.New("Error 404, Message: model not found"),
		"c": errors.New("Error 401: API key not valid"),
	}
	models := []provider.ModelSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got := Check(context.Background(), p, models)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].Model)
	assert.True(t, got[0].Reachable)
	assert.Empty(t, got[0].Error)

	assert.False(t, got[1].Reachable)
	assert.Equal(t, "model not found for this key", got[1].Error)

	assert.False(t, got[2].Reachable)
	assert.Contains(t, got[2].Error, "API key")
}

func TestCheck_Timeout(t *testing.T) {
	p := fakeProber{"slow": context.DeadlineExceeded}
	got := Check(context.Background(), p, []provider.ModelSpec{{ID: "slow"}})
	require.Len(t, got, 1)
	assert.Equal(t, "cannot reach the API: connection timed out", got[0].Error)
}

func TestFriendlyError(t *testing.T) {
	assert.Equal(t, "connection refused", friendlyError(errors.New("dial tcp: connection refused")))
	assert.Equal(t, "host not found (check your network)", friendlyError(errors.New("lookup x: no such host")))
	assert.Equal(t, "boom", friendlyError(errors.New("boom")))
}

type fakeInspector struct {
	version int
	err     error
}

func (f fakeInspector) Path() string { return "/tmp/jarbas.db" }

func (f fakeInspector) Version(context.Context) (int, error) { return f.version, f.err }

func (f fakeInspector) Stats(context.Context) (store.Stats, error) {
	return store.Stats{Conversations: 3, Concepts: 2}, nil
}

func TestCheckStore(t *testing.T) {
	ctx := context.Background()

	ok := CheckStore(ctx, fakeInspector{version: store.SchemaVersion})
	assert.Empty(t, ok.Error)
	assert.Equal(t, 3, ok.Stats.Conversations)

	old := CheckStore(ctx, fakeInspector{version: 1})
	assert.Contains(t, old.Error, "schema version 1")

	broken := CheckStore(ctx, fakeInspector{err: errors.New("disk gone")})
	assert.Equal(t, "disk gone", broken.Error)
}

func TestCheckStore_RealStore(t *testing.T) {
	s, err := store.Open(store.Config{DataDir: t.TempDir(), Clock: func() time.Time { return time.Unix(0, 0) }})
	require.NoError(t, err)
	defer s.Close()

	st := CheckStore(context.Background(), s)
	assert.Empty(t, st.Error)
	assert.Equal(t, store.SchemaVersion, st.SchemaVersion)
	assert.Equal(t, s.Path(), st.Path)
}
