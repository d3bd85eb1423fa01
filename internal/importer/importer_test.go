package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeanpaul/jarbas/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// failingStore fails every TeachConcept after the first n.
type failingStore struct {
	*store.Store
	n int
}

func (f *failingStore) TeachConcept(ctx context.Context, trigger, response string) (store.TaughtConcept, error) {
	if f.n == 0 {
		return store.TaughtConcept{}, errors.New("disk full")
	}
	f.n--
	return f.Store.TeachConcept(ctx, trigger, response)
}

func TestImport_PartialFailureStillAdvancesLearning(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	fs := &failingStore{Store: s, n: 2}

	data := []byte(`[{"trigger":"a","response":"1"},{"trigger":"b","response":"2"},{"trigger":"c","response":"3"}]`)
	res, err := Import(ctx, fs, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2, res.Imported)

	concepts, err := s.Concepts(ctx)
	require.NoError(t, err)
	assert.Len(t, concepts, 2)

	st, err := s.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, Area, st.Areas[len(st.Areas)-1])
}

func TestImport_SkipsIncompleteObjects(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	res, err := Import(ctx, s, []byte(`[{"trigger":"a","response":"b"}, {"trigger":"c"}]`))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 1, Skipped: 1}, res)

	concepts, err := s.Concepts(ctx)
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	assert.Equal(t, "a", concepts[0].Trigger)
	assert.Equal(t, "b", concepts[0].Response)

	st, err := s.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, Area, st.Areas[len(st.Areas)-1])
}

func TestImport_LevelBumpRoundsUp(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	payload := `[
		{"trigger":"one","response":"1"},
		{"trigger":"two","response":"2"},
		{"trigger":"three","response":"3"},
		{"trigger":"four","response":"4"},
		{"trigger":"five","response":"5"},
		{"trigger":"six","response":"6"}
	]`
	res, err := Import(ctx, s, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Imported)

	st, err := s.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Level, "ceil(6/5) = 2 levels on top of 1")
}

func TestImport_RejectsNonArray(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for name, payload := range map[string]string{
		"object":  `{"trigger":"a","response":"b"}`,
		"string":  `"hello"`,
		"garbage": `not json at all`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Import(ctx, s, []byte(payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrImportFormat)
			var ferr *FormatError
			require.ErrorAs(t, err, &ferr)
			assert.NotEmpty(t, ferr.Msg)
		})
	}

	concepts, err := s.Concepts(ctx)
	require.NoError(t, err)
	assert.Empty(t, concepts)
	st, err := s.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultLevel, st.Level)
}

func TestImport_NothingValidLeavesLevel(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	res, err := Import(ctx, s, []byte(`[{"trigger":"x"}, 42, {"trigger":"","response":"y"}, {"trigger":"   ","response":"z"}]`))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 0, Skipped: 4}, res)

	st, err := s.LearningState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultLevel, st.Level)
}

func TestImport_TriggersAreNormalized(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := Import(ctx, s, []byte(`[{"trigger":"  Capital DA França ","response":"Paris"}]`))
	require.NoError(t, err)

	got, ok, err := s.FindConcept(ctx, "qual a capital da frança?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Paris", got)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeSheet(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, v := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestImportFile_JSON(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	path := writeFile(t, t.TempDir(), "facts.json", `[{"trigger":"ping","response":"pong"}]`)

	res, err := ImportFile(ctx, s, path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
}

func TestImportFile_XLSX(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	path := filepath.Join(t.TempDir(), "facts.xlsx")
	writeSheet(t, path, [][]string{
		{"notes", "Response", "Trigger"},
		{"", "pong", "ping"},
		{"skip me", "", "half"},
		{"", "", ""},
		{"", "Brasília", "capital do brasil"},
	})

	res, err := ImportFile(ctx, s, path)
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 2, Skipped: 1}, res)

	got, ok, err := s.FindConcept(ctx, "capital do brasil")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Brasília", got)
}

func TestImportFile_XLSXMissingHeader(t *testing.T) {
	s := openStore(t)
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	writeSheet(t, path, [][]string{{"question", "answer"}, {"a", "b"}})

	_, err := ImportFile(context.Background(), s, path)
	assert.ErrorIs(t, err, ErrImportFormat)
}

func TestImportFile_UnsupportedExtension(t *testing.T) {
	s := openStore(t)
	path := writeFile(t, t.TempDir(), "facts.csv", "trigger,response\n")
	_, err := ImportFile(context.Background(), s, path)
	assert.ErrorIs(t, err, ErrImportFormat)
}

func TestImportGlob(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"trigger":"a","response":"1"}]`)
	writeFile(t, dir, "nested/deep/b.json", `[{"trigger":"b","response":"2"},{"trigger":"c"}]`)
	writeFile(t, dir, "ignored.txt", `nope`)

	res, err := ImportGlob(ctx, s, filepath.Join(dir, "**", "*.json"))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 2, Skipped: 1}, res)
}

func TestImportGlob_StopsAtFormatError(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "1.json", `[{"trigger":"a","response":"1"}]`)
	bad := writeFile(t, dir, "2.json", `{"not":"an array"}`)
	writeFile(t, dir, "3.json", `[{"trigger":"z","response":"26"}]`)

	res, err := ImportGlob(ctx, s, filepath.Join(dir, "*.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImportFormat)
	assert.Contains(t, err.Error(), bad)
	assert.Equal(t, 1, res.Imported)
}

func TestImportGlob_NoMatches(t *testing.T) {
	s := openStore(t)
	_, err := ImportGlob(context.Background(), s, filepath.Join(t.TempDir(), "*.json"))
	assert.Error(t, err)
}
