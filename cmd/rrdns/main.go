// Command rrdns runs a recursive, caching DNS resolver: one UDP listener
// for client queries, one HTTP listener for the debug surface, and one
// HTTP listener for Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lafolle/rrdns/internal/cache"
	"github.com/lafolle/rrdns/internal/config"
	"github.com/lafolle/rrdns/internal/debugapi"
	"github.com/lafolle/rrdns/internal/handler"
	"github.com/lafolle/rrdns/internal/logging"
	"github.com/lafolle/rrdns/internal/metrics"
	"github.com/lafolle/rrdns/internal/reactor"
	"github.com/lafolle/rrdns/internal/resolver"
	"github.com/lafolle/rrdns/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath    string
	listen        string
	listenDebug   string
	listenMetrics string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.listen, "listen", "", "Override client-facing UDP listen address")
	flag.StringVar(&f.listenDebug, "listen_debug", "", "Override debug HTTP listen address")
	flag.StringVar(&f.listenMetrics, "listen_metrics", "", "Override metrics HTTP listen address")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.listen != "" {
		cfg.Server.Listen = f.listen
	}
	if f.listenDebug != "" {
		cfg.Server.ListenDebug = f.listenDebug
	}
	if f.listenMetrics != "" {
		cfg.Server.ListenMetrics = f.listenMetrics
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("rrdns starting",
		"listen", cfg.Server.Listen,
		"listen_debug", cfg.Server.ListenDebug,
		"listen_metrics", cfg.Server.ListenMetrics,
		"max_recursion_depth", cfg.Server.MaxRecursionDepth,
	)

	c := cache.New()
	c.SeedRootHints()

	react, err := reactor.New(logger)
	if err != nil {
		return fmt.Errorf("failed to start reactor: %w", err)
	}
	defer react.Close()

	res := resolver.New(c, react, logger)
	res.SetMaxDepth(cfg.Server.MaxRecursionDepth)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry, c.Len)

	h := handler.New(res, m, logger)

	dnsServer, err := server.New(cfg.Server.Listen, h, logger, cfg.Server.SocketBufferBytes)
	if err != nil {
		return fmt.Errorf("failed to start DNS listener: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Server.ListenMetrics, Handler: metricsMux}

	debugSrv := &http.Server{Addr: cfg.Server.ListenDebug, Handler: debugapi.New(c).Handler()}

	go func() {
		logger.Info("metrics listening", "addr", cfg.Server.ListenMetrics)
		if serveErr := metricsSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", serveErr)
			cancel()
		}
	}()

	go func() {
		logger.Info("debug api listening", "addr", cfg.Server.ListenDebug)
		if serveErr := debugSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("debug server error", "err", serveErr)
			cancel()
		}
	}()

	logger.Info("dns listening", "addr", dnsServer.Addr())
	serveErr := dnsServer.Serve(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	_ = debugSrv.Shutdown(shutdownCtx)
	logger.Info("rrdns stopped")

	if serveErr != nil {
		return fmt.Errorf("dns server exited with error: %w", serveErr)
	}
	return nil
}
