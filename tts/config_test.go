package tts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Voice != "af_heart" {
		t.Errorf("default voice = %q, want af_heart", cfg.Voice)
	}
	if cfg.Speed != 1.3 {
		t.Errorf("default speed = %g, want 1.3", cfg.Speed)
	}
	if cfg.SplitPattern != "\n" {
		t.Errorf("default split pattern = %q", cfg.SplitPattern)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLangCode(t *testing.T) {
	tests := []struct {
		voice string
		want  string
	}{
		{"af_heart", "a"},
		{"bf_emma", "b"},
		{"jf_alpha", "j"},
		{"", ""},
	}

	for _, tt := range tests {
		cfg := Config{Voice: tt.voice}
		if got := cfg.LangCode(); got != tt.want {
			t.Errorf("LangCode(%q) = %q, want %q", tt.voice, got, tt.want)
		}
	}
}

func TestPipelineEquivalent(t *testing.T) {
	base := DefaultConfig()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"identical", func(*Config) {}, true},
		{"voice same language", func(c *Config) { c.Voice = "af_bella" }, true},
		{"speed only", func(c *Config) { c.Speed = 0.8 }, true},
		{"split pattern only", func(c *Config) { c.SplitPattern = ". " }, true},
		{"voice new language", func(c *Config) { c.Voice = "bf_emma" }, false},
		{"transformer", func(c *Config) { c.Transformer = true }, false},
		{"device", func(c *Config) { c.Device = "cuda" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.mutate(&other)
			if got := base.PipelineEquivalent(other); got != tt.want {
				t.Errorf("PipelineEquivalent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Voice: "af_heart", Speed: 1.0}, false},
		{"empty voice", Config{Speed: 1.0}, true},
		{"zero speed", Config{Voice: "af_heart"}, true},
		{"negative speed", Config{Voice: "af_heart", Speed: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	want := DefaultConfig()
	want.Voice = "bf_emma"
	want.Speed = 0.9
	want.Transformer = true

	if err := want.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	if got := LoadConfigFile(path); got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestLoadConfigFileFallsBack(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing", ""},
		{"malformed", "{ this is not json"},
		{"invalid values", `{"voice": "", "speed": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if got := LoadConfigFile(path); got != DefaultConfig() {
				t.Errorf("got %+v, want defaults", got)
			}
		})
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("KOKORO_TUI_VOICE", "bf_isabella")
	t.Setenv("KOKORO_TUI_SPEED", "2.0")

	cfg := LoadConfigFile(filepath.Join(t.TempDir(), "absent.json"))
	if cfg.Voice != "bf_isabella" {
		t.Errorf("voice = %q, want env override", cfg.Voice)
	}
	if cfg.Speed != 2.0 {
		t.Errorf("speed = %g, want 2.0", cfg.Speed)
	}
	if cfg.SplitPattern != "\n" {
		t.Errorf("split pattern lost its default: %q", cfg.SplitPattern)
	}
}
