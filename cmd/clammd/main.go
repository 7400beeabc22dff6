package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "clammd",
		Short:        "Concentrated-liquidity pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "config.yaml", "Path to the configuration file.")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pool over JSON-RPC",
		RunE:  runServe,
	}
	root.AddCommand(serveCmd)

	ticksCmd := &cobra.Command{
		Use:   "ticks",
		Short: "Print the square-root price of a range of ticks",
		Args:  cobra.NoArgs,
		RunE:  runTicks,
	}
	ticksCmd.Flags().Int32("from", -10, "first tick")
	ticksCmd.Flags().Int32("to", 10, "last tick (inclusive)")
	ticksCmd.Flags().Int32("step", 1, "tick step")
	root.AddCommand(ticksCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the state stream of a running server",
		RunE:  runWatch,
	}
	watchCmd.Flags().String("url", "", "stream URL, overrides streamURL from the config")
	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
