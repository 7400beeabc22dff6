package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/clamm-engine/cmd/clammd/config"
	"github.com/defistate/clamm-engine/streams/jsonrpc/server"
	"github.com/defistate/clamm-engine/system"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rootLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	prometheusRegistry := prometheus.DefaultRegisterer

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := system.NewPoolSystem(&system.Config{
		Logger:   rootLogger.With("component", "pool-system"),
		Registry: prometheusRegistry,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize pool system", "error", err)
		return err
	}
	defer sys.Close()

	if cfg.Pool != nil {
		params, err := cfg.Pool.InitParams()
		if err != nil {
			return err
		}
		if err := sys.Init(params); err != nil {
			rootLogger.Error("Failed to initialize pool", "error", err)
			return err
		}
		rootLogger.Info("Pool initialized", "tick", sys.State().Pool.Tick, "fee", params.Fee, "tickSpacing", params.TickSpacing)
	}

	api, err := server.NewAPI(&server.Config{
		System:     sys,
		Logger:     rootLogger.With("component", "jsonrpc-server"),
		BufferSize: cfg.BufferSize,
	})
	if err != nil {
		return err
	}
	rpcServer, err := server.NewServer(api)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	rpcHTTP := &http.Server{Addr: cfg.Listen, Handler: rpcHandler(rpcServer)}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsHTTP := &http.Server{Addr: cfg.MetricsListen, Handler: metricsMux}

	errCh := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"rpc": rpcHTTP, "metrics": metricsHTTP} {
		go func() {
			rootLogger.Info("Listening", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		rootLogger.Info("Shutting down")
	case err = <-errCh:
		rootLogger.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = metricsHTTP.Shutdown(shutdownCtx)
	return err
}

// rpcHandler serves websocket upgrades, which are needed for the diffs
// subscription, and plain HTTP calls on the same address.
func rpcHandler(rpcServer *rpc.Server) http.Handler {
	ws := rpcServer.WebsocketHandler([]string{"*"})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			ws.ServeHTTP(w, r)
			return
		}
		rpcServer.ServeHTTP(w, r)
	})
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(configPath)
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})), nil
}
