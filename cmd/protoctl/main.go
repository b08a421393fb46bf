// Command protoctl runs the protocol orchestrator: it opens the store,
// builds the configured queue/engine/policy stack, and drives a pool of
// workers against the lifecycle controller until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antigravity-dev/protoctl/internal/config"
	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/engine/apibackend"
	"github.com/antigravity-dev/protoctl/internal/engine/clibackend"
	"github.com/antigravity-dev/protoctl/internal/engine/idebackend"
	"github.com/antigravity-dev/protoctl/internal/git"
	"github.com/antigravity-dev/protoctl/internal/lifecycle"
	"github.com/antigravity-dev/protoctl/internal/lifecycle/temporalrt"
	"github.com/antigravity-dev/protoctl/internal/metrics"
	"github.com/antigravity-dev/protoctl/internal/policy"
	"github.com/antigravity-dev/protoctl/internal/queue"
	"github.com/antigravity-dev/protoctl/internal/store"
	"github.com/antigravity-dev/protoctl/internal/webhook"
	"github.com/antigravity-dev/protoctl/internal/worker"

	"github.com/redis/go-redis/v9"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildRegistry constructs an engine.Registry from the configured engines,
// picking the adapter package by kind the way cfg.Validate already checked.
func buildRegistry(cfg *config.Config) (*engine.Registry, error) {
	reg := engine.NewRegistry()
	first := true
	for id, ecfg := range cfg.Engines {
		var eng engine.Engine
		switch ecfg.Kind {
		case "cli":
			var sandbox clibackend.Sandboxer
			if ecfg.UseDocker {
				d, err := clibackend.NewDockerSandbox()
				if err != nil {
					return nil, fmt.Errorf("engine %s: docker sandbox: %w", id, err)
				}
				sandbox = d
			}
			eng = clibackend.New(id, ecfg, sandbox)
		case "ide":
			eng = idebackend.New(id, ecfg)
		case "api":
			client := &http.Client{Timeout: ecfg.Timeout.Duration}
			eng = apibackend.New(id, ecfg, client)
		default:
			return nil, fmt.Errorf("engine %s: unknown kind %q", id, ecfg.Kind)
		}
		reg.Register(eng, first)
		first = false
	}
	return reg, nil
}

// buildQueue constructs the configured queue backend.
func buildQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisURL})
		return queue.NewRedisQueue(rdb), nil
	case "memory":
		return queue.NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

// replanProjects collects projects with a non-empty ReplanCadence into the
// worker pool's cron sweep list.
func replanProjects(cfg *config.Config) []worker.ReplanProject {
	var out []worker.ReplanProject
	for name, p := range cfg.Projects {
		if strings.TrimSpace(p.ReplanCadence) == "" {
			continue
		}
		out = append(out, worker.ReplanProject{Name: name, Cadence: p.ReplanCadence})
	}
	return out
}

func main() {
	configPath := flag.String("config", "protoctl.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	temporalHostPort := flag.String("temporal", "", "if set, drive protocol runs via Temporal instead of the polling worker pool (host:port of the Temporal frontend)")
	startProtocolRun := flag.Int64("temporal-start", 0, "start one ProtocolRunWorkflow execution for this protocol run ID against -temporal, then exit")
	flag.Parse()

	if *startProtocolRun != 0 {
		if *temporalHostPort == "" {
			fmt.Fprintln(os.Stderr, "-temporal-start requires -temporal")
			os.Exit(1)
		}
		run, err := temporalrt.StartProtocolRun(context.Background(), *temporalHostPort, temporalrt.ProtocolRunRequest{
			ProtocolRunID: *startProtocolRun,
			AutoQA:        true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start protocol run: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("protoctl starting", "config", *configPath)

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()
	if cfg == nil {
		logger.Error("failed to load config snapshot", "config", *configPath)
		os.Exit(1)
	}

	logger = configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Store.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	q, err := buildQueue(cfg)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Error("failed to build engine registry", "error", err)
		os.Exit(1)
	}

	packs := policy.FileLoader{Dir: cfg.Policy.RepoLocalFileName}
	notifier := webhook.NewLoggingNotifier(logger.With("component", "webhook"))
	gitOps := git.Adapter{}

	controller := lifecycle.New(st, registry, gitOps, packs, notifier, logger.With("component", "lifecycle"))
	controller.AutoClone = cfg.General.AutoClone
	controller.AutoQA = cfg.General.AutoQAAfterExec
	controller.MaxRetries = cfg.General.MaxRetries

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	if *temporalHostPort != "" {
		logger.Info("driving protocol runs via Temporal, polling worker pool disabled", "temporal", *temporalHostPort)
		go func() {
			defer wg.Done()
			if err := temporalrt.StartWorker(*temporalHostPort, controller, st, logger.With("component", "temporalrt")); err != nil {
				logger.Error("temporal worker stopped with error", "error", err)
			}
		}()
	} else {
		pool := worker.New(q, controller, st, logger.With("component", "worker"))
		pool.Concurrency = cfg.General.WorkerCount
		pool.PollInterval = cfg.General.PollInterval.Duration
		pool.Visibility = cfg.General.VisibilityTimeout.Duration
		pool.HeartbeatInterval = cfg.General.HeartbeatInterval.Duration
		pool.ReplanProjects = replanProjects(cfg)

		go func() {
			defer wg.Done()
			if err := pool.Run(ctx); err != nil {
				logger.Error("worker pool stopped with error", "error", err)
			}
		}()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: ":9090", Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	logger.Info("protoctl running",
		"worker_count", cfg.General.WorkerCount,
		"queue_backend", cfg.Queue.Backend,
		"temporal", *temporalHostPort != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			if err := cfgManager.Reload(*configPath); err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded (engine/queue/worker topology requires restart to take effect)")
		default:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			if metricsSrv != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsSrv.Shutdown(shutdownCtx)
				shutdownCancel()
			}
			wg.Wait()
			logger.Info("protoctl stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		}
	}
}
