package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.HistoryWindow)
	assert.Equal(t, 60*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, provider.DefaultModels(), cfg.Models)
	assert.Equal(t, "Kore", cfg.Voice.VoiceName)
	assert.InDelta(t, 1.1, cfg.Voice.Rate, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yml := `
history_window: 8
attempt_timeout: 15s
models:
  - id: gemini-2.5-flash
    thinking_budget: 1024
  - id: gemini-2.0-flash
log:
  level: debug
  output: stderr
voice:
  enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0644))
	t.Setenv("JARBAS_HISTORY_WINDOW", "3")

	cfg, err := load([]string{dir}, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.HistoryWindow, "env beats file")
	assert.Equal(t, 15*time.Second, cfg.AttemptTimeout)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, provider.ModelSpec{ID: "gemini-2.5-flash", ThinkingBudget: 1024}, cfg.Models[0])
	assert.False(t, cfg.Models[1].SupportsThinking())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.True(t, cfg.Voice.Enabled)
	assert.Equal(t, "pt-BR", cfg.Voice.Language, "unset keys keep defaults")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := load([]string{t.TempDir()}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Models, cfg.Models)
}

func TestLoad_DotEnvAndExpansion(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("JARBAS_TEST_ROOT="+dir+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("data_dir: $JARBAS_TEST_ROOT/data\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("JARBAS_TEST_ROOT") })

	cfg, err := load([]string{dir}, dotenv)
	require.NoError(t, err)
	assert.Equal(t, dir+"/data", cfg.DataDir)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("models: [\n"), 0644))
	_, err := load([]string{dir}, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Models = []provider.ModelSpec{{ID: "a"}, {ID: "a"}}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Output = "syslog"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Persona = ""
	cfg.Voice.Rate = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPersona, cfg.Persona)
	assert.InDelta(t, 1.1, cfg.Voice.Rate, 1e-9)
}

func TestSettings_SetAndClearAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	require.NoError(t, SetAPIKey(path, "  secret-key "))
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", s.Get(APIKeySetting))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, ClearAPIKey(path))
	s, err = LoadSettings(path)
	require.NoError(t, err)
	assert.Empty(t, s.Get(APIKeySetting))

	assert.Error(t, SetAPIKey(path, "   "))
}

func TestLoadSettings_Missing(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, s.Values)
}

func TestCredentials_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	env := map[string]string{"GEMINI_API_KEY": "env-key"}
	c := &Credentials{SettingsPath: path, Getenv: func(k string) string { return env[k] }}

	got := c.Resolve()
	assert.Equal(t, Credential{Key: "env-key", Origin: OriginEnv}, got)

	require.NoError(t, SetAPIKey(path, "user-key"))
	got = c.Resolve()
	assert.Equal(t, Credential{Key: "user-key", Origin: OriginSettings}, got, "user override comes first")

	require.NoError(t, ClearAPIKey(path))
	delete(env, "GEMINI_API_KEY")
	got = c.Resolve()
	assert.False(t, got.Online())
}

func TestCredentials_EnvOrder(t *testing.T) {
	env := map[string]string{"API_KEY": "generic", "JARBAS_API_KEY": "specific"}
	c := &Credentials{Getenv: func(k string) string { return env[k] }}
	assert.Equal(t, "specific", c.Resolve().Key)
}

func TestCredential_Masked(t *testing.T) {
	assert.Equal(t, "••••••••wxyz", Credential{Key: "abcdefwxyz"}.Masked())
	assert.Equal(t, "•••", Credential{Key: "abc"}.Masked())
}

func TestStaticCredential(t *testing.T) {
	assert.False(t, StaticCredential("").Resolve().Online())
	assert.True(t, StaticCredential("k").Resolve().Online())
}

func TestCredentials_SetClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	c := &Credentials{SettingsPath: path, Getenv: func(string) string { return "" }}

	require.NoError(t, c.Set("from-ui"))
	assert.Equal(t, "from-ui", c.Resolve().Key)
	require.NoError(t, c.Clear())
	assert.False(t, c.Resolve().Online())

	none := &Credentials{}
	assert.Error(t, none.Set("k"))
	assert.NoError(t, none.Clear())
}

func TestLoad_ModelListReplacesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := "models:\n  - id: custom-a\n  - id: custom-b\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0644))

	cfg, err := load([]string{dir}, "")
	require.NoError(t, err)

	require.Len(t, cfg.Models, 2)
	for _, m := range cfg.Models {
		assert.Zero(t, m.ThinkingBudget, m.ID)
		assert.False(t, m.SupportsThinking(), m.ID)
	}
}
