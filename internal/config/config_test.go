package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"low sample rate", func(c *Config) { c.Stream.SampleRate = 100 }, "stream config"},
		{"unknown output", func(c *Config) { c.Playback.Output = "alsa" }, "playback config"},
		{"loud volume", func(c *Config) { c.Playback.Volume = 2 }, "playback config"},
		{"fft not power of two", func(c *Config) { c.Analyzer.FFTSize = 1000 }, "analyzer config"},
		{"inverted decibels", func(c *Config) { c.Analyzer.MaxDecibels = -200 }, "analyzer config"},
		{"zero fps", func(c *Config) { c.Waveform.FPS = 0 }, "waveform config"},
		{"unknown codec", func(c *Config) { c.Recorder.Codec = "mp3" }, "recorder config"},
		{"tiny timeslice", func(c *Config) { c.Recorder.Timeslice = time.Millisecond }, "recorder config"},
		{"http without address", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Address = "" }, "http config"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamtap.yaml")
	yaml := `
stream:
  endpoint: ws://localhost:8930/stream
  sample_rate: 48000
recorder:
  codec: pcm
  timeslice: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stream.Endpoint != "ws://localhost:8930/stream" || cfg.Stream.SampleRate != 48000 {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if cfg.Recorder.Codec != "pcm" || cfg.Recorder.Timeslice != 2*time.Second {
		t.Errorf("recorder = %+v", cfg.Recorder)
	}
	// Untouched sections keep their defaults
	if cfg.Analyzer.FFTSize != 256 || cfg.Waveform.FPS != 30 {
		t.Errorf("defaults lost: analyzer=%+v waveform=%+v", cfg.Analyzer, cfg.Waveform)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoaderEnvOverrides(t *testing.T) {
	env := map[string]string{
		"STREAMTAP_ENDPOINT":           " ws://relay:8930/stream ",
		"STREAMTAP_SAMPLE_RATE":        "24000",
		"STREAMTAP_VOLUME":             "0.5",
		"STREAMTAP_RECORDER_TIMESLICE": "500ms",
		"STREAMTAP_HTTP_ENABLED":       "true",
		"STREAMTAP_LOG_LEVEL":          "debug",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := Loader{Lookup: lookup}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stream.Endpoint != "ws://relay:8930/stream" {
		t.Errorf("Endpoint = %q", cfg.Stream.Endpoint)
	}
	if cfg.Stream.SampleRate != 24000 || cfg.Playback.Volume != 0.5 {
		t.Errorf("SampleRate = %d, Volume = %v", cfg.Stream.SampleRate, cfg.Playback.Volume)
	}
	if cfg.Recorder.Timeslice != 500*time.Millisecond {
		t.Errorf("Timeslice = %v", cfg.Recorder.Timeslice)
	}
	if !cfg.HTTP.Enabled || cfg.Logging.Level != "debug" {
		t.Errorf("HTTP.Enabled = %v, Level = %q", cfg.HTTP.Enabled, cfg.Logging.Level)
	}
}

func TestLoaderRejectsBadEnv(t *testing.T) {
	tests := map[string]string{
		"STREAMTAP_SAMPLE_RATE":        "fast",
		"STREAMTAP_VOLUME":             "loud",
		"STREAMTAP_HTTP_ENABLED":       "sometimes",
		"STREAMTAP_RECORDER_TIMESLICE": "soon",
		"STREAMTAP_FFT_SIZE":           "100",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			}
			if _, err := (Loader{Lookup: lookup}).Load(); err == nil {
				t.Errorf("expected error for %s=%q", key, value)
			}
		})
	}
}
