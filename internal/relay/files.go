// ABOUTME: File-backed relay sources
// ABOUTME: Decodes WAV, MP3 and FLAC to float samples, looping at end of file
package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// WAVSource reads from a PCM WAV file
type WAVSource struct {
	file       *os.File
	decoder    *wav.Decoder
	buf        *goaudio.IntBuffer
	sampleRate int
	channels   int
	scale      float32
	title      string
}

// NewWAVSource opens a PCM WAV file
func NewWAVSource(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to find WAV data: %w", err)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		f.Close()
		return nil, fmt.Errorf("unsupported WAV bit depth: %d", bitDepth)
	}

	return &WAVSource{
		file:       f,
		decoder:    decoder,
		buf:        &goaudio.IntBuffer{Format: decoder.Format()},
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		scale:      float32(int64(1) << (bitDepth - 1)),
		title:      titleOf(path),
	}, nil
}

func (s *WAVSource) Read(samples []float32) (int, error) {
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	for i := 0; i < n; i++ {
		samples[i] = float32(s.buf.Data[i]) / s.scale
	}

	if n == 0 || errors.Is(err, io.EOF) {
		if err := s.rewind(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *WAVSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder := wav.NewDecoder(s.file)
	if err := decoder.FwdToPCM(); err != nil {
		return fmt.Errorf("failed to restart WAV: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *WAVSource) SampleRate() int { return s.sampleRate }
func (s *WAVSource) Channels() int   { return s.channels }
func (s *WAVSource) Name() string    { return s.title }
func (s *WAVSource) Close() error    { return s.file.Close() }

// MP3Source reads from an MP3 file
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	buf        []byte
	sampleRate int
	title      string
}

// NewMP3Source opens an MP3 file
func NewMP3Source(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      titleOf(path),
	}, nil
}

func (s *MP3Source) Read(samples []float32) (int, error) {
	// The decoder emits 16-bit little-endian stereo
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := s.decoder.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768
	}

	if errors.Is(err, io.EOF) {
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return numSamples, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		decoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return numSamples, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = decoder
	}

	return numSamples, nil
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }
func (s *MP3Source) Channels() int   { return 2 }
func (s *MP3Source) Name() string    { return s.title }
func (s *MP3Source) Close() error    { return s.file.Close() }

// FLACSource reads from a FLAC file
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	scale      float32
	title      string

	// pending holds decoded samples not yet returned
	pending []float32
}

// NewFLACSource opens a FLAC file
func NewFLACSource(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		scale:      float32(int64(1) << (info.BitsPerSample - 1)),
		title:      titleOf(path),
	}, nil
}

func (s *FLACSource) Read(samples []float32) (int, error) {
	restarted := false
	for len(s.pending) < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return 0, err
			}
			if restarted {
				// No audio frames at all
				return 0, io.EOF
			}
			if err := s.rewind(); err != nil {
				return 0, err
			}
			restarted = true
			if len(s.pending) > 0 {
				break
			}
			continue
		}
		restarted = false

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				s.pending = append(s.pending, float32(frame.Subframes[ch].Samples[i])/s.scale)
			}
		}
	}

	n := copy(samples, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return n, nil
}

func (s *FLACSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Name() string    { return s.title }
func (s *FLACSource) Close() error    { return s.file.Close() }
