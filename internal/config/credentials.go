package config

import (
	"fmt"
	"os"
	"strings"
)

// Credential origins.
const (
	OriginSettings = "settings"
	OriginEnv      = "env"
)

// Credential is the resolved API key and where it came from. An empty Key
// means offline.
type Credential struct {
	Key    string
	Origin string
}

// Online reports whether the credential enables the remote path.
func (c Credential) Online() bool { return c.Key != "" }

// Masked shows only the last four characters of the key.
func (c Credential) Masked() string {
	if len(c.Key) <= 4 {
		return strings.Repeat("•", len(c.Key))
	}
	return strings.Repeat("•", 8) + c.Key[len(c.Key)-4:]
}

// CredentialSource resolves the credential for one exchange.
type CredentialSource interface {
	Resolve() Credential
}

// Credentials checks the settings file first, then the environment.
type Credentials struct {
	SettingsPath string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

var _ CredentialSource = (*Credentials)(nil)

// Resolve re-reads the settings file on every call so a key set from the
// UI applies to the next message. An unreadable file is treated as empty.
func (c *Credentials) Resolve() Credential {
	if c.SettingsPath != "" {
		if s, err := LoadSettings(c.SettingsPath); err == nil {
			if key := strings.TrimSpace(s.Get(APIKeySetting)); key != "" {
				return Credential{Key: key, Origin: OriginSettings}
			}
		}
	}
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range EnvKeys {
		if key := strings.TrimSpace(getenv(name)); key != "" {
			return Credential{Key: key, Origin: OriginEnv}
		}
	}
	return Credential{}
}

// Set stores key in the settings file.
func (c *Credentials) Set(key string) error {
	if c.SettingsPath == "" {
		return fmt.Errorf("no settings file configured")
	}
	return SetAPIKey(c.SettingsPath, key)
}

// Clear removes the stored key.
func (c *Credentials) Clear() error {
	if c.SettingsPath == "" {
		return nil
	}
	return ClearAPIKey(c.SettingsPath)
}

// StaticCredential always resolves to the same key.
type StaticCredential string

func (s StaticCredential) Resolve() Credential {
	if s == "" {
		return Credential{}
	}
	return Credential{Key: string(s), Origin: OriginSettings}
}
