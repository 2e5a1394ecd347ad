// ABOUTME: Entry point for the streamtap development relay
// ABOUTME: Parses CLI flags and serves bot-control routes plus the audio stream
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/streamtap/internal/logging"
	"github.com/harperreed/streamtap/internal/relay"
	"github.com/harperreed/streamtap/pkg/audio"
	"golang.org/x/sync/errgroup"
)

var (
	port       = flag.Int("port", 8080, "HTTP and websocket port")
	name       = flag.String("name", "", "Relay friendly name (default: hostname-streamtap-relay)")
	logFile    = flag.String("log-file", "streamtap-relay.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile  = flag.String("audio", "", "Audio file to stream (WAV, MP3, FLAC). If not specified, plays test tone")
	toneHz     = flag.Float64("tone", 440, "Test tone frequency in Hz")
	sampleRate = flag.Int("sample-rate", 16000, "Stream sample rate in Hz")
	chunk      = flag.Duration("chunk", 100*time.Millisecond, "Audio per record")
	shapes     = flag.String("shapes", relay.ShapesAlternate, "Record shape: alternate, flat or nested")
	admit      = flag.Duration("admit", 2*time.Second, "Waiting-room delay for new bots")
	useTUI     = flag.Bool("tui", false, "Show a status TUI (logs go to the log file only)")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	outputs := []string{"stdout", *logFile}
	if *useTUI {
		outputs = outputs[1:]
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		Format:  "console",
		Outputs: outputs,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	relayName := *name
	if relayName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		relayName = fmt.Sprintf("%s-streamtap-relay", hostname)
	}

	format := audio.DefaultFormat()
	format.SampleRate = *sampleRate

	srv, err := relay.New(relay.Config{
		Address:   fmt.Sprintf(":%d", *port),
		Name:      relayName,
		AudioFile: *audioFile,
		ToneHz:    *toneHz,
		Format:    format,
		Chunk:     *chunk,
		Shapes:    *shapes,
		Admit:     *admit,
		Advertise: !*noMDNS,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalw("invalid relay configuration", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Infow("starting relay", "name", relayName, "port", *port, "audio", *audioFile)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if *useTUI {
		g.Go(func() error {
			defer cancel()
			return srv.RunTUI(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatalw("relay error", "error", err)
	}
	logger.Infow("relay stopped")
}
