// Package settings persists the user-editable configuration in config.json
// under the data directory.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"photo-indexer/internal/logging"
)

// FileName is the settings file inside the data directory.
const FileName = "config.json"

// ErrInvalidSetting is returned by Set for values outside the schema.
var ErrInvalidSetting = errors.New("invalid setting")

// Languages lists the accepted values of FeatureFlags.Language.
var Languages = []string{"ja", "en"}

// FeatureFlags toggles optional behaviour.
type FeatureFlags struct {
	// UpdateDBWhenStartup starts a full scan when the server boots.
	UpdateDBWhenStartup bool   `json:"update_db_when_startup" mapstructure:"update_db_when_startup"`
	Language            string `json:"language" mapstructure:"language"`
}

// Config is the settings document.
type Config struct {
	FeatureFlags FeatureFlags `json:"feature_flags" mapstructure:"feature_flags"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Config {
	return Config{FeatureFlags: FeatureFlags{Language: "ja"}}
}

// Validate reports whether c fits the schema.
func (c Config) Validate() error {
	for _, l := range Languages {
		if c.FeatureFlags.Language == l {
			return nil
		}
	}
	return fmt.Errorf("language %q: %w", c.FeatureFlags.Language, ErrInvalidSetting)
}

// Store reads and writes config.json. It is safe for concurrent use.
type Store struct {
	path string
	log  *logging.Logger

	mu  sync.RWMutex
	v   *viper.Viper
	cfg Config
}

// Load opens the settings in dir, creating the file with defaults when it
// does not exist yet. Values that fail validation fall back to defaults.
func Load(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	s := &Store{
		path: filepath.Join(dir, FileName),
		log:  logging.For("settings"),
		v:    newViper(),
	}
	s.v.SetConfigFile(s.path)

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		s.log.Info("Creating %s with defaults", s.path)
		if err := s.write(Defaults()); err != nil {
			return nil, err
		}
		s.cfg = Defaults()
		return s, nil
	}

	if err := s.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if err := cfg.Validate(); err != nil {
		s.log.Warn("Ignoring stored setting: %v", err)
		cfg.FeatureFlags.Language = Defaults().FeatureFlags.Language
	}
	s.cfg = cfg
	return s, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	d := Defaults()
	v.SetDefault("feature_flags.update_db_when_startup", d.FeatureFlags.UpdateDBWhenStartup)
	v.SetDefault("feature_flags.language", d.FeatureFlags.Language)
	return v
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Get returns the current settings.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set validates cfg and replaces the stored settings.
func (s *Store) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	s.log.Info("Settings updated: update_db_when_startup=%v language=%s",
		cfg.FeatureFlags.UpdateDBWhenStartup, cfg.FeatureFlags.Language)
	return nil
}

// write renders cfg through viper into a sibling file and renames it over
// the settings file.
func (s *Store) write(cfg Config) error {
	s.v.Set("feature_flags.update_db_when_startup", cfg.FeatureFlags.UpdateDBWhenStartup)
	s.v.Set("feature_flags.language", cfg.FeatureFlags.Language)

	// viper picks the encoding from the extension.
	tmp := filepath.Join(filepath.Dir(s.path), ".config.tmp.json")
	if err := s.v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
