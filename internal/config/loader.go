package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Loader loads configuration from an optional YAML file followed by
// STREAMTAP_* environment overrides. Tests can override Lookup to inject
// deterministic maps.
type Loader struct {
	Path   string
	Lookup func(string) (string, bool)
}

// Load builds and validates the configuration
func (l Loader) Load() (*Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Default()
	if l.Path != "" {
		loaded, err := Load(l.Path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if err := l.applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (l Loader) applyEnv(cfg *Config) error {
	overrideString(l.Lookup, "STREAMTAP_ENDPOINT", &cfg.Stream.Endpoint)
	overrideString(l.Lookup, "STREAMTAP_SERVER", &cfg.Stream.Server)
	overrideString(l.Lookup, "STREAMTAP_WS_BASE", &cfg.Stream.WSBase)
	overrideString(l.Lookup, "STREAMTAP_MEETING_URL", &cfg.Stream.MeetingURL)
	overrideString(l.Lookup, "STREAMTAP_BOT_NAME", &cfg.Stream.BotName)
	overrideString(l.Lookup, "STREAMTAP_OUTPUT", &cfg.Playback.Output)
	overrideString(l.Lookup, "STREAMTAP_RECORDER_CODEC", &cfg.Recorder.Codec)
	overrideString(l.Lookup, "STREAMTAP_OUT_DIR", &cfg.Recorder.OutDir)
	overrideString(l.Lookup, "STREAMTAP_HTTP_ADDR", &cfg.HTTP.Address)
	overrideString(l.Lookup, "STREAMTAP_LOG_LEVEL", &cfg.Logging.Level)
	overrideString(l.Lookup, "STREAMTAP_LOG_FORMAT", &cfg.Logging.Format)
	overrideString(l.Lookup, "STREAMTAP_LOG_FILE", &cfg.Logging.File)

	if err := overrideInt(l.Lookup, "STREAMTAP_SAMPLE_RATE", &cfg.Stream.SampleRate); err != nil {
		return err
	}
	if err := overrideInt(l.Lookup, "STREAMTAP_FFT_SIZE", &cfg.Analyzer.FFTSize); err != nil {
		return err
	}
	if err := overrideInt(l.Lookup, "STREAMTAP_RECORDER_BITRATE", &cfg.Recorder.Bitrate); err != nil {
		return err
	}
	if err := overrideFloat(l.Lookup, "STREAMTAP_VOLUME", &cfg.Playback.Volume); err != nil {
		return err
	}
	if err := overrideDuration(l.Lookup, "STREAMTAP_RECORDER_TIMESLICE", &cfg.Recorder.Timeslice); err != nil {
		return err
	}
	if err := overrideBool(l.Lookup, "STREAMTAP_HTTP_ENABLED", &cfg.HTTP.Enabled); err != nil {
		return err
	}
	return overrideBool(l.Lookup, "STREAMTAP_DISCOVER", &cfg.Stream.Discover)
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
