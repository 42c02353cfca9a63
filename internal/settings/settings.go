// Package settings persists the Gemini credential and model configuration
// as small JSON files, one per logical key, under the user config dir.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/presets"
	"github.com/rs/zerolog/log"
)

const (
	appDirName = "ai-image-editor"

	// KeyAPIKey is the logical key holding the Gemini API key.
	KeyAPIKey = "gemini-api-key"
	// KeyConfig is the logical key holding the ModelConfig.
	KeyConfig = "gemini-config"
)

// Dir returns the settings directory: EDITOR_CONFIG_DIR when set, otherwise
// ai-image-editor under the user config dir ($XDG_CONFIG_HOME on Linux).
func Dir() (string, error) {
	if override := os.Getenv("EDITOR_CONFIG_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// Store reads and writes the two settings files. It is safe for concurrent
// use within one process.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Open returns a Store rooted at Dir().
func Open() (*Store, error) {
	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve settings dir: %w", err)
	}
	return NewStore(dir), nil
}

// Root returns the settings directory.
func (s *Store) Root() string {
	return s.dir
}

// Path returns the file backing a logical key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// APIKey returns the stored credential, or "" when none is stored.
func (s *Store) APIKey() (string, error) {
	var key string
	found, err := s.read(KeyAPIKey, &key)
	if err != nil || !found {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// SetAPIKey stores the credential with owner-only permissions.
func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is empty")
	}
	return s.write(KeyAPIKey, key)
}

// ClearAPIKey removes the stored credential. Clearing an absent key is not
// an error.
func (s *Store) ClearAPIKey() error {
	return s.remove(KeyAPIKey)
}

// Config returns the stored ModelConfig. A missing file yields
// chat.DefaultConfig(); fields absent from the file keep their defaults.
func (s *Store) Config() (chat.ModelConfig, error) {
	cfg := chat.DefaultConfig()
	if _, err := s.read(KeyConfig, &cfg); err != nil {
		return chat.DefaultConfig(), err
	}
	return cfg, nil
}

// SaveConfig validates and stores cfg.
func (s *Store) SaveConfig(cfg chat.ModelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.write(KeyConfig, cfg)
}

// UpdateConfig merges patch into the stored configuration and returns the
// result.
func (s *Store) UpdateConfig(patch chat.ConfigPatch) (chat.ModelConfig, error) {
	cfg, err := s.Config()
	if err != nil {
		return cfg, err
	}
	cfg = cfg.Apply(patch)
	if err := s.SaveConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResetConfig restores the default configuration.
func (s *Store) ResetConfig() (chat.ModelConfig, error) {
	cfg := chat.DefaultConfig()
	return cfg, s.remove(KeyConfig)
}

// ApplyMode merges a built-in preset mode (Stable, Creative, High Fidelity)
// into the stored configuration.
func (s *Store) ApplyMode(name string) (chat.ModelConfig, error) {
	cfg, err := s.Config()
	if err != nil {
		return cfg, err
	}
	cfg, err = presets.Builtin().ApplyMode(cfg, name)
	if err != nil {
		return cfg, err
	}
	return cfg, s.SaveConfig(cfg)
}

func (s *Store) read(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return true, nil
}

// write stores v through a temp file and rename so readers never see a
// partial document.
func (s *Store) write(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	log.Debug().Str("key", key).Str("dir", s.dir).Msg("Setting saved")
	return nil
}

func (s *Store) remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
