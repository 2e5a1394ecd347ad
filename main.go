// ABOUTME: Entry point for the streamtap player
// ABOUTME: Parses CLI flags, resolves the stream and runs the session with TUI or logs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/streamtap/internal/botctl"
	"github.com/harperreed/streamtap/internal/config"
	"github.com/harperreed/streamtap/internal/discovery"
	"github.com/harperreed/streamtap/internal/httpapi"
	"github.com/harperreed/streamtap/internal/logging"
	"github.com/harperreed/streamtap/internal/metrics"
	"github.com/harperreed/streamtap/internal/ui"
	"github.com/harperreed/streamtap/internal/version"
	"github.com/harperreed/streamtap/pkg/analyzer"
	"github.com/harperreed/streamtap/pkg/audio"
	"github.com/harperreed/streamtap/pkg/audio/output"
	"github.com/harperreed/streamtap/pkg/recorder"
	"github.com/harperreed/streamtap/pkg/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	serverURL  = flag.String("server", "", "Bot-control base URL (mDNS browse if empty)")
	endpoint   = flag.String("endpoint", "", "Direct stream websocket URL (skips bot creation)")
	meetingURL = flag.String("meeting-url", "", "Meeting the bot joins")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	noAudio    = flag.Bool("no-audio", false, "Consume audio in real time without a sound device")
	logFile    = flag.String("log-file", "", "Log file path")
	httpAddr   = flag.String("http", "", "Serve status, metrics and segment download on this address")
	sampleRate = flag.Int("sample-rate", 0, "Stream sample rate in Hz")
	outDir     = flag.String("out-dir", "", "Save every recorded segment to this directory")
)

func main() {
	flag.Parse()

	cfg, err := config.Loader{Path: *configPath}.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := applyFlags(cfg); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	useTUI := !*noTUI

	// TUI mode logs only to the file; streaming mode logs to stdout as well
	outputs := []string{cfg.Logging.File}
	if !useTUI {
		outputs = append([]string{"stdout"}, outputs...)
	}
	logger, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: outputs,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Infow("starting", "product", version.Product, "version", version.Version, "tui", useTUI)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, logger, useTUI); err != nil {
		logger.Errorw("player failed", "error", err)
		_ = logger.Sync()
		fmt.Fprintf(os.Stderr, "streamtap: %v\n", err)
		os.Exit(1)
	}
	logger.Infow("player stopped")
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) error {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Stream.Server = *serverURL
		case "endpoint":
			cfg.Stream.Endpoint = *endpoint
		case "meeting-url":
			cfg.Stream.MeetingURL = *meetingURL
		case "no-audio":
			if *noAudio {
				cfg.Playback.Output = "silent"
			}
		case "log-file":
			cfg.Logging.File = *logFile
		case "http":
			cfg.HTTP.Enabled = *httpAddr != ""
			cfg.HTTP.Address = *httpAddr
		case "sample-rate":
			cfg.Stream.SampleRate = *sampleRate
		case "out-dir":
			cfg.Recorder.OutDir = *outDir
		}
	})
	return cfg.Validate()
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.SugaredLogger, useTUI bool) error {
	format := audio.DefaultFormat()
	format.SampleRate = cfg.Stream.SampleRate

	streamURL, err := resolveStream(ctx, cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()

	controller := session.NewController(session.Config{
		Format: format,
		Output: outputFactory(cfg, format, logger),
		Volume: cfg.Playback.Volume,
		Analyzer: analyzer.Config{
			Size:        cfg.Analyzer.FFTSize,
			Smoothing:   cfg.Analyzer.Smoothing,
			MinDecibels: cfg.Analyzer.MinDecibels,
			MaxDecibels: cfg.Analyzer.MaxDecibels,
		},
		WaveformSeconds:   cfg.Waveform.Seconds,
		WaveformFPS:       cfg.Waveform.FPS,
		RecorderCodec:     cfg.Recorder.Codec,
		RecorderTimeslice: cfg.Recorder.Timeslice,
		RecorderBitrate:   cfg.Recorder.Bitrate,
		OnSegment:         segmentSaver(cfg.Recorder, logger),
		OnStop: func(reason error) {
			if reason == nil {
				return
			}
			logger.Warnw("stream lost", "reason", reason)
			if !useTUI {
				cancel()
			}
		},
		Header:  http.Header{"User-Agent": {version.UserAgent()}},
		Logger:  logger,
		Metrics: m,
	})
	defer func() {
		if err := controller.Stop(); err != nil {
			logger.Warnw("session did not stop cleanly", "error", err)
		}
	}()

	if _, err := controller.Start(ctx, streamURL); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	logger.Infow("streaming", "endpoint", streamURL)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		api := httpapi.New(httpapi.Config{
			Address: cfg.HTTP.Address,
			Prefix:  cfg.Recorder.Prefix,
			Source:  controller,
			Metrics: m,
			Logger:  logger,
		})
		g.Go(func() error { return api.ListenAndServe(gctx) })
	}

	if useTUI {
		g.Go(func() error {
			defer cancel()
			return ui.Run(gctx, "streamtap "+version.Version, cfg.Waveform.FPS, ui.Actions{
				Snapshot: ui.SnapshotFrom(controller),
				Stop:     controller.Stop,
				Restart: func() error {
					_, err := controller.Start(gctx, streamURL)
					return err
				},
				Clear: controller.Clear,
				SetVolume: func(v float64) {
					if s := controller.Current(); s != nil {
						s.SetVolume(v)
					}
				},
			})
		})
	} else {
		g.Go(func() error {
			statsLoop(gctx, controller, logger)
			return nil
		})
	}

	return g.Wait()
}

// resolveStream returns the websocket URL, creating a bot when no endpoint is configured
func resolveStream(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (string, error) {
	if cfg.Stream.Endpoint != "" {
		return cfg.Stream.Endpoint, nil
	}

	server := cfg.Stream.Server
	if server == "" {
		if !cfg.Stream.Discover {
			return "", errors.New("no endpoint or server configured")
		}
		logger.Infow("browsing for relay", "service", discovery.ServiceType)

		browseCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		relay, err := discovery.NewManager(discovery.Config{Logger: logger}).Browse(browseCtx, 2*time.Second)
		if err != nil {
			return "", fmt.Errorf("no relay found: %w", err)
		}
		server = relay.BaseURL()
	}

	if cfg.Stream.MeetingURL == "" {
		return "", errors.New("meeting URL is required to create a bot")
	}

	client := botctl.NewClient(server)
	if err := client.Health(ctx); err != nil {
		return "", fmt.Errorf("bot-control service unavailable: %w", err)
	}

	bot, err := client.CreateBot(ctx, cfg.Stream.MeetingURL, cfg.Stream.BotName)
	if err != nil {
		return "", err
	}
	logger.Infow("bot created", "bot_id", bot.BotID, "id", bot.ID, "meeting_url", cfg.Stream.MeetingURL)

	statusID := bot.ID
	if statusID == "" {
		statusID = bot.BotID
	}
	go watchBot(ctx, client, statusID, logger)

	return client.StreamURL(cfg.Stream.WSBase, bot.BotID)
}

// watchBot logs each status change until the bot ends or ctx is done
func watchBot(ctx context.Context, client *botctl.Client, id string, logger *zap.SugaredLogger) {
	var last botctl.Status
	_, err := client.WaitFor(ctx, id, 2*time.Second, func(s botctl.Status) bool {
		if s != last {
			logger.Infow("bot status", "id", id, "status", s, "known", s.Known())
			last = s
		}
		return false
	})
	if err != nil && ctx.Err() == nil {
		logger.Warnw("bot left", "id", id, "error", err)
	}
}

// outputFactory opens the shared sound device once and hands each session a player on it
func outputFactory(cfg *config.Config, format audio.Format, logger *zap.SugaredLogger) func() (output.Output, error) {
	silent := func() (output.Output, error) { return output.NewSilent(0), nil }
	if cfg.Playback.Output == "silent" {
		return silent
	}

	device, err := output.OpenDevice(format.SampleRate)
	if err != nil {
		logger.Warnw("no audio device, consuming silently", "error", err)
		return silent
	}
	return func() (output.Output, error) { return output.NewOto(device), nil }
}

// segmentSaver writes segments to the output directory when one is configured
func segmentSaver(rc config.RecorderConfig, logger *zap.SugaredLogger) func(*recorder.Segment) {
	return func(seg *recorder.Segment) {
		if rc.OutDir == "" {
			return
		}
		path, err := seg.Save(rc.OutDir, rc.Prefix)
		if err != nil {
			logger.Warnw("failed to save segment", "index", seg.Index, "error", err)
			return
		}
		logger.Debugw("segment saved", "index", seg.Index, "path", path, "bytes", seg.Size())
	}
}

// statsLoop logs pipeline statistics in streaming-logs mode
func statsLoop(ctx context.Context, controller *session.Controller, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := controller.Current()
			if s == nil {
				continue
			}
			st := s.Stats()
			logger.Infow("stats",
				"state", st.State,
				"received", st.Received,
				"decoded", st.Decoded,
				"dropped", st.Dropped,
				"malformed", st.Malformed,
				"segments", st.Segments,
				"lead", st.Lead,
				"catch_ups", st.Playback.CatchUps,
			)
		}
	}
}
