// ABOUTME: Oto-based audio output implementation
// ABOUTME: Plays a PCM16 stream through a process-wide oto context
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/streamtap/pkg/audio"
)

// Device wraps the oto context. oto allows only one context per process, so
// callers open a Device once and share it between sessions.
type Device struct {
	ctx        *oto.Context
	sampleRate int
}

// OpenDevice creates the process audio context at the given mono sample rate
func OpenDevice(sampleRate int) (*Device, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	return &Device{ctx: ctx, sampleRate: sampleRate}, nil
}

// SampleRate returns the rate the device was opened at
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// Oto output implementation using oto library
type Oto struct {
	mu     sync.Mutex
	device *Device
	player *oto.Player
}

// NewOto creates a new Oto output on a shared device
func NewOto(device *Device) *Oto {
	return &Oto{device: device}
}

// Open creates a player that pulls from src
func (o *Oto) Open(format audio.Format, src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.device == nil {
		return fmt.Errorf("no audio device")
	}
	if o.player != nil {
		return fmt.Errorf("output already open")
	}

	// oto can't reinitialize with a new rate; the stream would play at the wrong pitch
	if format.SampleRate != o.device.sampleRate {
		return fmt.Errorf("format rate %dHz does not match device rate %dHz",
			format.SampleRate, o.device.sampleRate)
	}

	if err := o.device.ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio device: %w", err)
	}

	o.player = o.device.ctx.NewPlayer(src)
	o.player.Play()

	return nil
}

// Close releases the player; the shared device stays open
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return ErrNotOpen
	}

	err := o.player.Close()
	o.player = nil
	return err
}
