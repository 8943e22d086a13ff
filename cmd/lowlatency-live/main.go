// Command lowlatency-live plays a live RTSP/H.264 stream with minimum
// end-to-end latency and logs faults, state changes and latency diagnostics.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	lowlatency "github.com/janssen70/lowlatency-live"
	"github.com/janssen70/lowlatency-live/internal/config"
	"github.com/janssen70/lowlatency-live/internal/gstpipe"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to YAML configuration file")
	urlFlag := flag.String("url", "", "RTSP source URL (overrides config)")
	userFlag := flag.String("user", "", "RTSP username (overrides config)")
	passFlag := flag.String("pass", "", "RTSP password (overrides config)")
	latencyFlag := flag.Int("latency", -1, "Receive buffer depth in ms (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath, *urlFlag, *userFlag, *passFlag, *latencyFlag)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	slog.Info("starting low latency player",
		"url", cfg.RedactedURL(),
		"latency_ms", cfg.Camera.LatencyMS,
		"debug", *debug,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := run(ctx, cancel, cfg, sigChan); err != nil {
		slog.Error("player error", "error", err)
		os.Exit(1)
	}
	slog.Info("player stopped")
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(path, url, user, pass string, latency int) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if url != "" {
		cfg.Camera.RTSPURL = url
	}
	if user != "" {
		cfg.Camera.Username = user
	}
	if pass != "" {
		cfg.Camera.Password = pass
	}
	if latency >= 0 {
		cfg.Camera.LatencyMS = latency
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, sigChan chan os.Signal) error {
	factory, err := gstpipe.NewFactory()
	if err != nil {
		return err
	}

	player, err := lowlatency.New(
		factory,
		cfg.Source(),
		lowlatency.WithPrefix(cfg.Player.Prefix),
		lowlatency.WithRefreshInterval(cfg.RefreshInterval()),
	)
	if err != nil {
		return err
	}
	defer player.Close()

	factory.Bind(player.EventBus())
	go factory.Run(ctx)

	// Run event dispatch in a goroutine so signals stay responsive
	errChan := make(chan error, 1)
	go func() {
		errChan <- player.Run(ctx)
	}()

	if err := startPlayback(player); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			return err
		}
	}

	stats := player.Stats()
	slog.Info("session summary",
		"session", stats.Session,
		"frames", stats.Telemetry.Frames,
		"qos_dropped", stats.Telemetry.QosDropped,
		"events_dispatched", stats.Bus.Dispatched,
		"uptime", time.Since(startedAt),
	)
	return nil
}

// startPlayback requests the playing state and surfaces a rejected start as
// an error: a refused transition carries no error of its own, only the
// failure outcome, and the session would otherwise idle in ready.
func startPlayback(p *lowlatency.Player) error {
	outcome, err := p.Play()
	if err != nil {
		return err
	}
	if outcome == lowlatency.OutcomeFailure {
		return errors.New("pipeline rejected playback start")
	}
	return nil
}

var startedAt = time.Now()
