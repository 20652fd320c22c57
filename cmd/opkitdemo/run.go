package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/opkit/internal/opkit/log"
	"github.com/cuemby/opkit/internal/opkit/metrics"
	"github.com/cuemby/opkit/pkg/opkit"
)

var runCmd = &cobra.Command{
	Use:   "run <city>",
	Short: "Run the sample weather operation once and print its result",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	city := args[0]

	client := opkit.NewClient(
		opkit.WithClientDiagnosticSink(log.NewSink("opkitdemo")),
		opkit.WithClientMetrics(metrics.Recorder{}),
		opkit.WithClientDefaults(cfg.ClientDefaults()),
	)
	defer client.Close()

	store, err := buildWeatherStore(client, city)
	if err != nil {
		return fmt.Errorf("opkitdemo: build store: %w", err)
	}

	report, err := store.Run(context.Background())
	if err != nil {
		return fmt.Errorf("opkitdemo: run: %w", err)
	}

	fmt.Printf("%s: %.1f°C (fetched %s)\n", report.City, report.TempCelsius, report.FetchedAt.Format("15:04:05"))
	return nil
}
