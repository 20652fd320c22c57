package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/opkit/internal/opkit/health"
	"github.com/cuemby/opkit/internal/opkit/log"
	internalmetrics "github.com/cuemby/opkit/internal/opkit/metrics"
	"github.com/cuemby/opkit/pkg/opkit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sample weather operation over HTTP, with /metrics",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	client := opkit.NewClient(
		opkit.WithClientDiagnosticSink(log.NewSink("opkitdemo")),
		opkit.WithClientMetrics(internalmetrics.Recorder{}),
		opkit.WithClientDefaults(cfg.ClientDefaults()),
	)
	defer client.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/weather/", func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Path[len("/weather/"):]
		if city == "" {
			http.Error(w, "city required", http.StatusBadRequest)
			return
		}

		store, err := buildWeatherStore(client, city)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report, err := store.Run(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})
	mux.Handle("/metrics", internalmetrics.Handler())

	monitor := health.NewMonitor(client, health.DefaultConfig())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		results := monitor.Check(r.Context(), opkit.NewPath("weather"))
		healthy := true
		for _, res := range results {
			if !res.Healthy {
				healthy = false
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(results)
	})

	log.WithComponent("opkitdemo").Info().Str("addr", cfg.ServeAddr).Msg("serving")
	fmt.Printf("listening on %s\n", cfg.ServeAddr)
	return http.ListenAndServe(cfg.ServeAddr, mux)
}
