// Package importer loads taught concepts in bulk from JSON arrays and
// spreadsheets.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jeanpaul/jarbas/internal/schema"
	"github.com/jeanpaul/jarbas/internal/store"
)

// Area is the mastered-area label appended after a bulk import.
const Area = "Bulk Data Injection"

// conceptsPerLevel is how many imported concepts earn one level.
const conceptsPerLevel = 5

// ErrImportFormat is matched by every *FormatError.
var ErrImportFormat = errors.New("invalid import format")

// FormatError reports a payload that is not a JSON array of concepts.
type FormatError struct {
	Source string
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrImportFormat, e.Source, e.Msg)
}

func (e *FormatError) Unwrap() error { return ErrImportFormat }

// Store is the slice of the persistent store the importer writes to.
type Store interface {
	TeachConcept(ctx context.Context, trigger, response string) (store.TaughtConcept, error)
	AdvanceLearning(ctx context.Context, delta int, areas ...string) (store.LearningState, error)
}

type Result struct {
	Imported int
	Skipped  int
}

func (r Result) add(o Result) Result {
	return Result{Imported: r.Imported + o.Imported, Skipped: r.Skipped + o.Skipped}
}

var (
	arraySchema = map[string]any{"type": "array"}
	itemSchema  = map[string]any{
		"type":     "object",
		"required": []string{"trigger", "response"},
		"properties": map[string]any{
			"trigger":  map[string]any{"type": "string", "minLength": 1},
			"response": map[string]any{"type": "string", "minLength": 1},
		},
	}
)

var validator = schema.NewValidator()

type pair struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}

// Import teaches every valid {trigger, response} object in a JSON array.
// Nothing is written when the payload is not an array.
func Import(ctx context.Context, s Store, data []byte) (Result, error) {
	return importJSON(ctx, s, "payload", data)
}

func importJSON(ctx context.Context, s Store, source string, data []byte) (Result, error) {
	var items []json.RawMessage
	if err := validator.Validate(arraySchema, data); err != nil {
		return Result{}, &FormatError{Source: source, Msg: describe(err)}
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return Result{}, &FormatError{Source: source, Msg: err.Error()}
	}

	pairs := make([]*pair, len(items))
	for i, raw := range items {
		if err := validator.Validate(itemSchema, raw); err != nil {
			continue
		}
		var p pair
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		pairs[i] = &p
	}
	return teach(ctx, s, pairs)
}

// ImportFile imports a .json array or the first sheet of an .xlsx workbook.
func ImportFile(ctx context.Context, s Store, path string) (Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", path, err)
		}
		return importJSON(ctx, s, path, data)
	case ".xlsx":
		pairs, err := readSheet(path)
		if err != nil {
			return Result{}, err
		}
		return teach(ctx, s, pairs)
	default:
		return Result{}, &FormatError{Source: path, Msg: "unsupported file type (want .json or .xlsx)"}
	}
}

// ImportGlob imports every file matching pattern, which may use **.
// It stops at the first format error.
func ImportGlob(ctx context.Context, s Store, pattern string) (Result, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return Result{}, fmt.Errorf("expand %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return Result{}, fmt.Errorf("no files match %q", pattern)
	}

	var total Result
	for _, path := range matches {
		r, err := ImportFile(ctx, s, path)
		total = total.add(r)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// teach writes pairs in order. A nil entry counts as skipped. Concepts
// stored before a failure still advance the learning level.
func teach(ctx context.Context, s Store, pairs []*pair) (Result, error) {
	var res Result
	var teachErr error
	for _, p := range pairs {
		if p == nil {
			res.Skipped++
			continue
		}
		if _, err := s.TeachConcept(ctx, p.Trigger, p.Response); err != nil {
			if errors.Is(err, store.ErrEmptyConcept) {
				res.Skipped++
				continue
			}
			teachErr = fmt.Errorf("teach %q: %w", p.Trigger, err)
			break
		}
		res.Imported++
	}

	if res.Imported > 0 {
		levels := (res.Imported + conceptsPerLevel - 1) / conceptsPerLevel
		if _, err := s.AdvanceLearning(ctx, levels, Area); err != nil {
			return res, errors.Join(teachErr, fmt.Errorf("advance learning: %w", err))
		}
	}
	return res, teachErr
}

func describe(err error) string {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return "expected a JSON array of {trigger, response} objects (" + strings.Join(verr.Problems, "; ") + ")"
	}
	return err.Error()
}
