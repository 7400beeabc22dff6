package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/clamm-engine/cmd/clammd/config"
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/patcher"
	"github.com/defistate/clamm-engine/streams/jsonrpc/client"
	"github.com/spf13/cobra"
)

// --- VISUAL CONSTANTS ---
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Green = "\033[32m"
	Gray  = "\033[37m"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	url, _ := cmd.Flags().GetString("url")
	cfg, err := loadConfig(cmd)
	if err != nil {
		if url == "" {
			return err
		}
		// the URL flag is enough to watch without a config file
		cfg = &config.Config{LogLevel: "info", BufferSize: config.DefaultBufferSize}
	}
	if url == "" {
		url = cfg.StreamURL
	}
	if url == "" {
		return errors.New("no stream URL: set streamURL in the config or pass --url")
	}

	rootLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePatcher := patcher.NewStatePatcher(&patcher.StatePatcherConfig{})
	c, err := client.NewClient(ctx, client.Config{
		URL:          url,
		Logger:       rootLogger.With("component", "jsonrpc-client"),
		BufferSize:   uint(cfg.BufferSize),
		StatePatcher: statePatcher.Patch,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize client", "error", err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, Green+"Watching "+url+Reset)
	for {
		select {
		case state := <-c.State():
			printState(out, state)
		case err, ok := <-c.Err():
			if ok && err != nil {
				rootLogger.Error("Fatal client error", "error", err)
				return err
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// printState writes a one-line summary of a state.
func printState(out io.Writer, state *engine.State) {
	ts := time.Unix(0, int64(state.Timestamp)).Format("15:04:05.000")
	if !state.Pool.Initialized {
		fmt.Fprintf(out, "%s%s%s #%d %-8s %suninitialized%s\n", Gray, ts, Reset, state.Seq, state.Op, Gray, Reset)
		return
	}
	fmt.Fprintf(out, "%s%s%s #%d %-8s tick %s%d%s price %s liquidity %s ticks %d positions %d\n",
		Gray, ts, Reset,
		state.Seq,
		state.Op,
		Bold, state.Pool.Tick, Reset,
		state.Pool.SqrtPrice.Price().StringFixed(8),
		state.Pool.Liquidity,
		len(state.Pool.Ticks),
		len(state.Pool.Positions),
	)
}
