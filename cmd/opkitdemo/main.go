// Command opkitdemo is a small, runnable showcase of the opkit runtime: a
// weather-style operation with retry and staleness policy, driven from the
// command line via run/watch/serve subcommands. Grounded on cmd/warren's
// cobra root command plus persistent --log-level/--log-json flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/opkit/internal/opkit/config"
	"github.com/cuemby/opkit/internal/opkit/log"
)

var cfgFile string
var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "opkitdemo",
	Short: "Demonstrates the opkit asynchronous operation runtime",
	Long: `opkitdemo runs a small sample operation (a simulated weather
fetch) through the opkit runtime, so you can observe retry, deduplication,
staleness, and subscription behaviour from the command line.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cobra.OnInitialize(func() {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded

		level := log.InfoLevel
		switch cfg.LogLevel {
		case "debug":
			level = log.DebugLevel
		case "warn":
			level = log.WarnLevel
		case "error":
			level = log.ErrorLevel
		}
		log.Init(log.Config{Level: level, JSONOutput: cfg.LogJSON})
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}
