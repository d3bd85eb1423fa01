// Package health checks that the pieces JARBAS depends on are usable.
package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/jeanpaul/jarbas/internal/store"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

type Status struct {
	Model     string
	Reachable bool
	Error     string
	Latency   time.Duration
}

// Prober checks that a model answers for the current credential.
type Prober interface {
	Probe(ctx context.Context, model string) error
}

// Check probes each model in priority order. Probes are independent: a
// failing model does not stop the rest.
func Check(ctx context.Context, p Prober, models []provider.ModelSpec) []Status {
	out := make([]Status, 0, len(models))
	for _, m := range models {
		out = append(out, checkModel(ctx, p, m.ID))
	}
	return out
}

func checkModel(ctx context.Context, p Prober, model string) Status {
	s := Status{Model: model}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	if err := p.Probe(ctx, model); err != nil {
		s.Error = describe(err)
	} else {
		s.Reachable = true
	}
	s.Latency = time.Since(start)
	return s
}

func describe(err error) string {
	switch provider.Classify(err) {
	case provider.KindAuth:
		return "authentication failed, check your API key"
	case provider.KindNotFound:
		return "model not found for this key"
	case provider.KindQuota:
		return "quota exhausted"
	case provider.KindNetwork:
		return "cannot reach the API: " + friendlyError(err)
	}
	return provider.Friendly(err)
}

// StoreStatus is the result of CheckStore.
type StoreStatus struct {
	Path          string
	SchemaVersion int
	Stats         store.Stats
	Error         string
}

// StoreInspector is the read side of the store used by CheckStore.
type StoreInspector interface {
	Path() string
	Version(ctx context.Context) (int, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// CheckStore verifies the database opens at the current schema version.
func CheckStore(ctx context.Context, s StoreInspector) StoreStatus {
	st := StoreStatus{Path: s.Path()}
	v, err := s.Version(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.SchemaVersion = v
	if v != store.SchemaVersion {
		st.Error = fmt.Sprintf("schema version %d, expected %d", v, store.SchemaVersion)
		return st
	}
	if st.Stats, err = s.Stats(ctx); err != nil {
		st.Error = err.Error()
	}
	return st
}

func friendlyError(err error) string {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "connection timed out"
	}
	if strings.Contains(msg, "connection refused") {
		return "connection refused"
	}
	if strings.Contains(msg, "no such host") {
		return "host not found (check your network)"
	}
	return msg
}
