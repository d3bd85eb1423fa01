package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// APIKeySetting is the fixed key the user credential is stored under.
const APIKeySetting = "jarbas_api_key"

// EnvKeys are read, in order, for the environment-provided credential.
var EnvKeys = []string{"JARBAS_API_KEY", "GEMINI_API_KEY", "API_KEY"}

// Settings is the user-editable key/value file next to config.yaml.
type Settings struct {
	Values map[string]string
}

func DefaultSettingsPath() string {
	return filepath.Join(configDir(), "settings.yaml")
}

// LoadSettings reads the settings file. A missing file yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{Values: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.Values); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	return s, nil
}

// Save writes the settings file with owner-only permissions.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s.Values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (s *Settings) Get(key string) string {
	return s.Values[key]
}

// SetAPIKey stores the user credential and saves the file.
func SetAPIKey(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("api key must not be empty")
	}
	s, err := LoadSettings(path)
	if err != nil {
		return err
	}
	s.Values[APIKeySetting] = key
	return s.Save(path)
}

// ClearAPIKey removes the user credential. The environment default, if
// any, takes effect again.
func ClearAPIKey(path string) error {
	s, err := LoadSettings(path)
	if err != nil {
		return err
	}
	if _, ok := s.Values[APIKeySetting]; !ok {
		return nil
	}
	delete(s.Values, APIKeySetting)
	return s.Save(path)
}
