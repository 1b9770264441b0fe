package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/maybe-raven/kokoro-tui/tts/engines"
)

// Config holds the synthesis worker's settings. Voice, speed and split
// pattern take effect per request; language code (derived from the voice),
// transformer mode and device are baked into the engine pipeline and force a
// rebuild when they change.
type Config struct {
	Voice        string  `json:"voice" mapstructure:"voice" env:"KOKORO_TUI_VOICE"`
	Speed        float64 `json:"speed" mapstructure:"speed" env:"KOKORO_TUI_SPEED"`
	SplitPattern string  `json:"split_pattern" mapstructure:"split_pattern" env:"KOKORO_TUI_SPLIT_PATTERN"`
	Transformer  bool    `json:"trf" mapstructure:"trf" env:"KOKORO_TUI_TRF"`
	Device       string  `json:"device" mapstructure:"device" env:"KOKORO_TUI_DEVICE"`

	// Command launches the synthesis bridge process.
	Command string `json:"command" mapstructure:"command" env:"KOKORO_TUI_COMMAND"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Voice:        "af_heart",
		Speed:        1.3,
		SplitPattern: "\n",
		Transformer:  false,
		Device:       "",
		Command:      "kokoro-bridge",
	}
}

// LangCode derives the pipeline language from the voice name. Kokoro voice
// identifiers start with their language letter ("af_heart" -> "a").
func (c Config) LangCode() string {
	if c.Voice == "" {
		return ""
	}
	return string([]rune(c.Voice)[0])
}

// PipelineEquivalent reports whether two configurations can share one engine
// pipeline. Only language code, transformer mode and device matter; the
// remaining fields are applied per call.
func (c Config) PipelineEquivalent(other Config) bool {
	return c.LangCode() == other.LangCode() &&
		c.Transformer == other.Transformer &&
		c.Device == other.Device
}

// PipelineOptions returns the engine build options for this configuration.
func (c Config) PipelineOptions() engines.Options {
	return engines.Options{
		LangCode:    c.LangCode(),
		Transformer: c.Transformer,
		Device:      c.Device,
	}
}

// Validate checks the fields a broken config file could corrupt.
func (c Config) Validate() error {
	if c.Voice == "" {
		return errors.New("voice must not be empty")
	}
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %g", c.Speed)
	}
	return nil
}

// ConfigPath returns the user-scoped location of the config file.
func ConfigPath() (string, error) {
	scope := gap.NewScope(gap.User, "kokoro-tui")
	path, err := scope.ConfigPath("config.json")
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

// LoadConfig reads the config file and applies KOKORO_TUI_* environment
// overrides. Any load failure (missing file, unreadable, malformed, invalid
// values) falls back to defaults rather than propagating.
func LoadConfig() Config {
	path, err := ConfigPath()
	if err != nil {
		return withEnv(DefaultConfig())
	}
	return withEnv(loadConfigFile(path))
}

// LoadConfigFile reads a Config from an explicit path with the same
// fallback-to-defaults behavior as LoadConfig.
func LoadConfigFile(path string) Config {
	return withEnv(loadConfigFile(path))
}

func loadConfigFile(path string) Config {
	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return cfg
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig()
	}
	return cfg
}

func withEnv(cfg Config) Config {
	// Overrides are best effort; a malformed variable leaves the field as
	// loaded.
	_ = env.Parse(&cfg)
	if err := cfg.Validate(); err != nil {
		return DefaultConfig()
	}
	return cfg
}

// Save writes the configuration as indented JSON, creating parent
// directories as needed.
func (c Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to an explicit path.
func (c Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
