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

	"github.com/gaspardpetit/mcp-bridge/internal/api"
	"github.com/gaspardpetit/mcp-bridge/internal/config"
	"github.com/gaspardpetit/mcp-bridge/internal/logx"
	"github.com/gaspardpetit/mcp-bridge/internal/metrics"
	"github.com/gaspardpetit/mcp-bridge/internal/proc"
	"github.com/gaspardpetit/mcp-bridge/internal/session"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.BridgeConfig
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("mcp-bridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)

	server, ok := cfg.Servers.First()
	if !ok {
		logx.Log.Fatal().Str("path", cfg.ConfigFile).Msg("no MCP server configured")
	}
	if len(cfg.Servers) > 1 {
		logx.Log.Warn().Int("configured", len(cfg.Servers)).Str("selected", server.Name).Msg("multiple servers configured; only the first is launched")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	sess := session.New(proc.New(), server, cfg.ClientName, version, cfg.RequestTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect eagerly but keep serving on failure; callers can retry via
	// POST /connect.
	if err := sess.Connect(ctx); err != nil {
		logx.Log.Error().Err(err).Str("command", server.Command).Msg("initial connect failed")
	}

	apiAddr := fmt.Sprintf(":%d", cfg.Port)
	sharedMetrics := cfg.MetricsAddr == "" || cfg.MetricsAddr == apiAddr
	srv := &http.Server{Addr: apiAddr, Handler: api.NewRouter(sess, cfg, sharedMetrics)}
	var metricsSrv *http.Server
	if !sharedMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		logx.Log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		sess.Disconnect()
	}()

	logx.Log.Info().Str("addr", apiAddr).Str("server", server.Name).Msg("bridge listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("http server")
	}
}
