// Command vadgate is the main entry point for the vadgate capture and
// barge-in server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tkoehlman/vadgate/internal/config"
	"github.com/tkoehlman/vadgate/internal/feeder"
	"github.com/tkoehlman/vadgate/internal/health"
	"github.com/tkoehlman/vadgate/internal/interrupt"
	"github.com/tkoehlman/vadgate/internal/observe"
	"github.com/tkoehlman/vadgate/internal/pipeline"
	"github.com/tkoehlman/vadgate/internal/resilience"
	"github.com/tkoehlman/vadgate/pkg/audio"
	"github.com/tkoehlman/vadgate/pkg/capture"
	"github.com/tkoehlman/vadgate/pkg/capture/replay"
	"github.com/tkoehlman/vadgate/pkg/capture/wsingest"
	"github.com/tkoehlman/vadgate/pkg/vad"
	"github.com/tkoehlman/vadgate/pkg/vad/energy"
	"github.com/tkoehlman/vadgate/pkg/vad/neural"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vadgate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vadgate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("vadgate starting",
		"version", version,
		"config", *configPath,
		"capture", cfg.Capture.Kind,
		"vad_backend", cfg.VAD.Backend,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	mp, shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "vadgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}
	stats := observe.NewPipelineStats(256)

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	det, chain, err := buildDetector(reg, cfg)
	if err != nil {
		slog.Error("failed to create vad detector", "backend", cfg.VAD.Backend, "err", err)
		return 1
	}
	defer func() {
		if err := det.Close(); err != nil {
			slog.Warn("vad detector close error", "err", err)
		}
	}()

	source, err := reg.CreateCapture(cfg)
	if err != nil {
		slog.Error("failed to create capture source", "kind", cfg.Capture.Kind, "err", err)
		return 1
	}

	// ── Feeder and event routing ──────────────────────────────────────────────
	g, ctx := errgroup.WithContext(ctx)

	var sink feeder.SegmentSink
	if cfg.Feeder.URL != "" {
		wsf, err := feeder.NewWSFeeder(feeder.WSFeederConfig{
			URL:       cfg.Feeder.URL,
			Encoding:  feeder.SegmentEncoding(cfg.Feeder.Encoding),
			QueueSize: cfg.Feeder.QueueSize,
		})
		if err != nil {
			slog.Error("failed to create transcription feeder", "err", err)
			return 1
		}
		g.Go(func() error { return wsf.Run(ctx) })
		sink = wsf
		slog.Info("transcription feeder enabled", "url", cfg.Feeder.URL, "encoding", cfg.Feeder.Encoding)
	}

	dispatcher := feeder.NewDispatcher(feeder.NopPlayback())
	dispatcher.Subscribe(func(ev interrupt.Event) {
		slog.Info("interruption event", "kind", ev.Kind, "timestamp", ev.Timestamp, "truncated", ev.Truncated)
	})

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pl, err := pipeline.New(pipeline.Config{
		SampleRate:   cfg.Audio.SampleRate,
		FrameSize:    cfg.Audio.FrameSize,
		RingCapacity: cfg.Audio.SampleRate * cfg.Audio.RingSeconds,
		Tunables:     tunablesFrom(cfg.Interrupt),
	}, source, det, dispatcher, sink, metrics, stats)
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			logLevel.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.InterruptChanged {
			pl.Retune(tunablesFrom(diff.NewInterrupt))
		}
		if diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Observability HTTP listener ───────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/stats", stats.Handler())
		healthChecks(stats, chain).Register(mux)
		srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("observability listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		slog.Info("observability listener ready", "addr", cfg.Server.ListenAddr)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	g.Go(func() error { return pl.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltins wires the VAD backends and capture sources that ship with
// vadgate into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterVAD(config.BackendEnergy, func(cfg *config.Config) (vad.Engine, error) {
		return &energy.Engine{RMSThreshold: cfg.VAD.EnergyRMSThreshold}, nil
	})
	reg.RegisterVAD(config.BackendNeural, func(cfg *config.Config) (vad.Engine, error) {
		return &neural.Engine{}, nil
	})

	reg.RegisterCapture(config.CaptureReplay, func(cfg *config.Config) (capture.Source, error) {
		clip, err := replay.LoadFile(cfg.Capture.Replay.Path)
		if err != nil {
			return nil, err
		}
		opts := []replay.Option{replay.WithPacing()}
		if cfg.Capture.Replay.Loop {
			opts = append(opts, replay.WithLoop())
		}
		return replay.New(clip, cfg.Capture.Replay.SampleRate, 1024, opts...), nil
	})
	reg.RegisterCapture(config.CaptureWSIngest, func(cfg *config.Config) (capture.Source, error) {
		return wsingest.New(wsingest.Config{
			ListenAddr: cfg.Capture.WSIngest.ListenAddr,
			Path:       cfg.Capture.WSIngest.Path,
			Encoding:   wsingest.Encoding(cfg.Capture.WSIngest.Encoding),
			AgentFormat: audio.Format{
				SampleRate: cfg.Capture.WSIngest.SampleRate,
				Channels:   cfg.Capture.WSIngest.Channels,
			},
			Target: audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 1},
		})
	})
}

// buildDetector creates the configured VAD detector. With vad.fallback set,
// both backends are built and wrapped in a failover chain; the returned
// chain is nil otherwise.
func buildDetector(reg *config.Registry, cfg *config.Config) (vad.Detector, *resilience.DetectorChain, error) {
	vcfg := vad.Config{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		ModelPath:  cfg.VAD.ModelPath,
	}

	engine, err := reg.CreateVAD(cfg)
	if err != nil {
		return nil, nil, err
	}
	primary, err := engine.NewDetector(vcfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.VAD.Fallback == "" {
		return primary, nil, nil
	}

	fbEngine, err := reg.CreateVADBackend(cfg, cfg.VAD.Fallback)
	if err == nil {
		var fb vad.Detector
		if fb, err = fbEngine.NewDetector(vcfg); err == nil {
			chain := resilience.NewDetectorChain(string(cfg.VAD.Backend), primary, resilience.ChainConfig{})
			chain.Add(string(cfg.VAD.Fallback), fb)
			slog.Info("vad failover enabled",
				"primary", cfg.VAD.Backend, "fallback", cfg.VAD.Fallback)
			return chain, chain, nil
		}
	}
	if cerr := primary.Close(); cerr != nil {
		slog.Warn("vad detector close error", "err", cerr)
	}
	return nil, nil, fmt.Errorf("fallback backend %q: %w", cfg.VAD.Fallback, err)
}

// healthChecks assembles the readiness probes: frames are flowing, and at
// least one VAD backend is admitting calls.
func healthChecks(stats *observe.PipelineStats, chain *resilience.DetectorChain) *health.Handler {
	checks := []health.Check{{
		Name: "pipeline",
		Probe: func(context.Context) error {
			if stats.Snapshot().FramesProcessed == 0 {
				return errors.New("no frames processed yet")
			}
			return nil
		},
	}}
	if chain != nil {
		checks = append(checks, health.Check{
			Name: "vad",
			Probe: func(context.Context) error {
				for _, state := range chain.BackendStates() {
					if state != resilience.BreakerOpen {
						return nil
					}
				}
				return errors.New("all VAD backend breakers are open")
			},
		})
	}
	return health.New(checks...)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func tunablesFrom(ic config.InterruptConfig) pipeline.Tunables {
	return pipeline.Tunables{
		BaseThreshold:      ic.BaseThreshold,
		MinThreshold:       ic.MinThreshold,
		MaxThreshold:       ic.MaxThreshold,
		MinSpeechDuration:  time.Duration(ic.MinSpeechMs) * time.Millisecond,
		MinSilenceDuration: time.Duration(ic.MinSilenceMs) * time.Millisecond,
		SpeechPad:          time.Duration(ic.SpeechPadMs) * time.Millisecond,
		MaxSegmentDuration: time.Duration(ic.MaxSegmentSeconds) * time.Second,
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
