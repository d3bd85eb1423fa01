package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Persona        string               `yaml:"persona" mapstructure:"persona"`
	Models         []provider.ModelSpec `yaml:"models" mapstructure:"models"`
	HistoryWindow  int                  `yaml:"history_window" mapstructure:"history_window"`
	AttemptTimeout time.Duration        `yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
	Retries        int                  `yaml:"retries" mapstructure:"retries"`
	DataDir        string               `yaml:"data_dir" mapstructure:"data_dir"`
	SettingsPath   string               `yaml:"settings_path" mapstructure:"settings_path"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
	Voice          VoiceConfig          `yaml:"voice" mapstructure:"voice"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`     // "json" or "console"
	Output     string `yaml:"output" mapstructure:"output"`     // "stdout", "stderr" or "file"
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	TimeFormat string `yaml:"time_format" mapstructure:"time_format"`
}

type VoiceConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	Language        string   `yaml:"language" mapstructure:"language"`
	PreferredVoices []string `yaml:"preferred_voices" mapstructure:"preferred_voices"`
	Rate            float64  `yaml:"rate" mapstructure:"rate"`
	Pitch           float64  `yaml:"pitch" mapstructure:"pitch"`
	Model           string   `yaml:"model" mapstructure:"model"`
	VoiceName       string   `yaml:"voice_name" mapstructure:"voice_name"`
}

const DefaultPersona = `You are JARBAS (Just A Really Brilliant Assistant System).
You are an extremely advanced, optimized AI, sarcastic about mistakes but absolutely loyal.
Specialties: programming (Go, Java, Kotlin, Android, React, databases, ethical hacking), software engineering, pure logic.`

var envVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func DefaultConfig() *Config {
	return &Config{
		Persona:        DefaultPersona,
		Models:         provider.DefaultModels(),
		HistoryWindow:  5,
		AttemptTimeout: 60 * time.Second,
		Retries:        1,
		DataDir:        defaultDataDir(),
		SettingsPath:   DefaultSettingsPath(),
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "file",
			FilePath:   filepath.Join(configDir(), "jarbas.log"),
			TimeFormat: "rfc3339",
		},
		Voice: VoiceConfig{
			Enabled:         false,
			Language:        "pt-BR",
			PreferredVoices: []string{"Google", "Microsoft Francisca", "Luciana"},
			Rate:            1.1,
			Pitch:           1.0,
			Model:           provider.DefaultSpeechModel,
			VoiceName:       provider.DefaultVoiceName,
		},
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "jarbas")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "jarbas")
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "jarbas")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "jarbas")
}

// Load reads config.yaml from the working directory or the user config
// dir, applies JARBAS_* environment overrides and validates the result.
// A .env file in the working directory seeds the environment first.
func Load() (*Config, error) {
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "jarbas"))
	}
	home, _ := os.UserHomeDir()
	paths = append(paths, filepath.Join(home, ".config", "jarbas"))
	return load(paths, ".env")
}

func load(paths []string, dotenv string) (*Config, error) {
	if dotenv != "" {
		// existing variables win over .env
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", dotenv, err)
		}
	}

	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Environment variables
	v.SetEnvPrefix("JARBAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"persona", "history_window", "attempt_timeout", "retries", "data_dir", "settings_path",
		"log.level", "log.format", "log.output", "log.file_path",
		"voice.enabled", "voice.language", "voice.rate", "voice.pitch", "voice.model", "voice.voice_name",
	} {
		v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error produced
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	// A configured model list replaces the defaults rather than merging
	// into them index by index.
	if v.IsSet("models") {
		cfg.Models = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.DataDir = expandEnv(cfg.DataDir)
	cfg.SettingsPath = expandEnv(cfg.SettingsPath)
	cfg.Log.FilePath = expandEnv(cfg.Log.FilePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors and fills soft defaults.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("config: at least one model is required")
	}
	seen := make(map[string]bool)
	for i, m := range c.Models {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("config: models[%d] has no id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("config: model %q listed twice", m.ID)
		}
		if m.ThinkingBudget < 0 {
			return fmt.Errorf("config: model %q has negative thinking_budget", m.ID)
		}
		seen[m.ID] = true
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("config: history_window must not be negative")
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("config: attempt_timeout must not be negative")
	}
	switch c.Log.Output {
	case "", "stdout", "stderr", "file":
	default:
		return fmt.Errorf("config: log.output %q (must be stdout, stderr or file)", c.Log.Output)
	}
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Voice.Rate <= 0 {
		c.Voice.Rate = 1.1
	}
	if c.Voice.Pitch <= 0 {
		c.Voice.Pitch = 1.0
	}
	return nil
}
