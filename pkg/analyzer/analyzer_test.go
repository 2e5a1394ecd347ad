// ABOUTME: Tests for the frequency analyzer
// ABOUTME: Tests sizing, idle output, peak location and smoothing
package analyzer

import (
	"math"
	"testing"
)

// sine returns a quiet tone whose peak stays inside the decibel range
func sine(n int, freq, rate float64) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.01 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return s
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"2048", func(c *Config) { c.Size = 2048 }, false},
		{"not power of two", func(c *Config) { c.Size = 300 }, true},
		{"too small", func(c *Config) { c.Size = 16 }, true},
		{"too large", func(c *Config) { c.Size = 65536 }, true},
		{"smoothing above one", func(c *Config) { c.Smoothing = 1.5 }, true},
		{"inverted decibels", func(c *Config) { c.MinDecibels = -10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrequencyIdle(t *testing.T) {
	a, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	got := a.Frequency()
	if len(got) != 128 {
		t.Fatalf("len = %d, want 128 bins", len(got))
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("bin %d = %d before any signal", i, v)
		}
	}
	if a.Connected() {
		t.Error("Connected() = true before any signal")
	}
}

func TestFrequencyPeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing = 0
	a, _ := New(cfg)

	// 2kHz at 16kHz lands exactly on bin 2000/(16000/256) = 32
	a.Write(sine(256, 2000, 16000))
	got := a.Frequency()

	peak := 0
	for i, v := range got {
		if v > got[peak] {
			peak = i
		}
	}
	if peak != 32 {
		t.Errorf("peak bin = %d, want 32", peak)
	}
	if got[peak] == 0 {
		t.Error("peak magnitude is zero")
	}
	if got[100] >= got[peak] {
		t.Errorf("far bin %d >= peak %d", got[100], got[peak])
	}
}

func TestFrequencyUnchangedWithoutNewSamples(t *testing.T) {
	a, _ := New(DefaultConfig())
	a.Write(sine(256, 2000, 16000))

	first := a.Frequency()
	second := a.Frequency()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bin %d changed from %d to %d without new samples", i, first[i], second[i])
		}
	}
}

func TestFrequencySmoothing(t *testing.T) {
	a, _ := New(DefaultConfig())
	tone := sine(256, 2000, 16000)

	a.Write(tone)
	first := a.Frequency()[32]
	a.Write(tone)
	second := a.Frequency()[32]

	// Each update keeps 80% of the previous magnitude, so a steady tone ramps up
	if second <= first {
		t.Errorf("smoothed peak did not rise: %d then %d", first, second)
	}

	a.Write(make([]float32, 256))
	decayed := a.Frequency()[32]
	if decayed == 0 || decayed >= second {
		t.Errorf("smoothed peak after silence = %d, want decay from %d", decayed, second)
	}
}

func TestReset(t *testing.T) {
	a, _ := New(DefaultConfig())
	a.Write(sine(256, 2000, 16000))
	_ = a.Frequency()

	a.Reset()

	for _, v := range a.Frequency() {
		if v != 0 {
			t.Fatal("Frequency() not zero after Reset")
		}
	}
}
