package config

import (
	"fmt"
	"math/bits"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete player configuration
type Config struct {
	Stream   StreamConfig   `yaml:"stream"`
	Playback PlaybackConfig `yaml:"playback"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Waveform WaveformConfig `yaml:"waveform"`
	Recorder RecorderConfig `yaml:"recorder"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StreamConfig contains the transport and bot-control settings
type StreamConfig struct {
	Endpoint   string `yaml:"endpoint"`    // direct websocket URL; skips bot creation
	Server     string `yaml:"server"`      // bot-control base URL
	WSBase     string `yaml:"ws_base"`     // websocket base for stream URLs; derived from server when empty
	MeetingURL string `yaml:"meeting_url"` // meeting the bot joins
	BotName    string `yaml:"bot_name"`
	SampleRate int    `yaml:"sample_rate"`
	Discover   bool   `yaml:"discover"` // browse mDNS for a relay when no server is set
}

// PlaybackConfig contains device output settings
type PlaybackConfig struct {
	Output string  `yaml:"output"` // oto or silent
	Volume float64 `yaml:"volume"` // 0..1
}

// AnalyzerConfig contains spectrum analyzer settings
type AnalyzerConfig struct {
	FFTSize     int     `yaml:"fft_size"`
	Smoothing   float64 `yaml:"smoothing"`
	MinDecibels float64 `yaml:"min_decibels"`
	MaxDecibels float64 `yaml:"max_decibels"`
}

// WaveformConfig contains waveform history settings
type WaveformConfig struct {
	Seconds float64 `yaml:"seconds"`
	FPS     int     `yaml:"fps"`
}

// RecorderConfig contains segment recording settings
type RecorderConfig struct {
	Codec     string        `yaml:"codec"` // opus or pcm
	Timeslice time.Duration `yaml:"timeslice"`
	Bitrate   int           `yaml:"bitrate"`
	OutDir    string        `yaml:"out_dir"` // save every segment here when set
	Prefix    string        `yaml:"prefix"`
}

// HTTPConfig contains the status/download API settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Stream: StreamConfig{
			BotName:    "streamtap",
			SampleRate: 16000,
			Discover:   true,
		},
		Playback: PlaybackConfig{
			Output: "oto",
			Volume: 1,
		},
		Analyzer: AnalyzerConfig{
			FFTSize:     256,
			Smoothing:   0.8,
			MinDecibels: -100,
			MaxDecibels: -30,
		},
		Waveform: WaveformConfig{
			Seconds: 2,
			FPS:     30,
		},
		Recorder: RecorderConfig{
			Codec:     "opus",
			Timeslice: time.Second,
			Bitrate:   128000,
			Prefix:    "recording",
		},
		HTTP: HTTPConfig{
			Address: "127.0.0.1:8929",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "streamtap.log",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}
	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("analyzer config: %w", err)
	}
	if err := c.Waveform.Validate(); err != nil {
		return fmt.Errorf("waveform config: %w", err)
	}
	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", s.SampleRate)
	}
	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.Output != "oto" && p.Output != "silent" {
		return fmt.Errorf("output must be oto or silent, got %q", p.Output)
	}
	if p.Volume < 0 || p.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %v", p.Volume)
	}
	return nil
}

// Validate validates analyzer configuration
func (a *AnalyzerConfig) Validate() error {
	if a.FFTSize < 32 || a.FFTSize > 32768 || bits.OnesCount(uint(a.FFTSize)) != 1 {
		return fmt.Errorf("fft_size must be a power of two between 32 and 32768, got %d", a.FFTSize)
	}
	if a.Smoothing < 0 || a.Smoothing > 1 {
		return fmt.Errorf("smoothing must be between 0 and 1, got %v", a.Smoothing)
	}
	if a.MinDecibels >= a.MaxDecibels {
		return fmt.Errorf("min_decibels (%v) must be below max_decibels (%v)", a.MinDecibels, a.MaxDecibels)
	}
	return nil
}

// Validate validates waveform configuration
func (w *WaveformConfig) Validate() error {
	if w.Seconds <= 0 {
		return fmt.Errorf("seconds must be positive, got %v", w.Seconds)
	}
	if w.FPS < 1 || w.FPS > 120 {
		return fmt.Errorf("fps must be between 1 and 120, got %d", w.FPS)
	}
	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.Codec != "opus" && r.Codec != "pcm" {
		return fmt.Errorf("codec must be opus or pcm, got %q", r.Codec)
	}
	if r.Timeslice < 100*time.Millisecond {
		return fmt.Errorf("timeslice must be at least 100ms, got %v", r.Timeslice)
	}
	if r.Bitrate < 6000 || r.Bitrate > 510000 {
		return fmt.Errorf("bitrate must be between 6000 and 510000, got %d", r.Bitrate)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled && h.Address == "" {
		return fmt.Errorf("address cannot be empty when HTTP is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}
	return nil
}
