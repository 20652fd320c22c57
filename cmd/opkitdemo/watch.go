package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/opkit/internal/opkit/log"
	"github.com/cuemby/opkit/internal/opkit/metrics"
	"github.com/cuemby/opkit/pkg/opkit"
)

var watchCmd = &cobra.Command{
	Use:   "watch <city>",
	Short: "Subscribe to the sample weather operation and print every update",
	Long: `watch subscribes to the store's status stream, letting the
store's staleness window and automatic-running policy drive re-fetches on
its own, and prints every status transition until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	sub := store.Subscribe(func(status opkit.Status[WeatherReport]) {
		switch status.Kind {
		case opkit.StatusLoading:
			fmt.Println("loading...")
		case opkit.StatusSuccess:
			fmt.Printf("success: %s %.1f°C\n", status.Value.City, status.Value.TempCelsius)
		case opkit.StatusFailure:
			fmt.Printf("failure: %v\n", status.Err)
		default:
			fmt.Println("idle")
		}
	})
	defer sub.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	return nil
}
