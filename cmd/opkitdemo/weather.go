package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cuemby/opkit/pkg/opkit"
)

// WeatherReport is the sample value type the demo operation produces.
type WeatherReport struct {
	City        string
	TempCelsius float64
	FetchedAt   time.Time
}

// weatherOperation simulates a flaky upstream weather API: it fails
// roughly a third of the time, so running it through Retry demonstrates
// backoff and eventual success (or exhaustion).
type weatherOperation struct {
	city string
}

func newWeatherOperation(city string) *weatherOperation {
	return &weatherOperation{city: city}
}

func (w *weatherOperation) Path() opkit.Path {
	return opkit.NewPath("weather", w.city)
}

func (w *weatherOperation) Setup(opCtx *opkit.OpContext) *opkit.OpContext {
	return opCtx
}

func (w *weatherOperation) Run(ctx context.Context, opCtx *opkit.OpContext, cont *opkit.Continuation[WeatherReport]) (WeatherReport, error) {
	attempt := opkit.Get(opCtx, opkit.RetryIndexKey)

	select {
	case <-time.After(150 * time.Millisecond):
	case <-ctx.Done():
		return WeatherReport{}, ctx.Err()
	}

	if rand.Float64() < 0.35 { //nolint:gosec // simulated flakiness, not a security boundary
		return WeatherReport{}, fmt.Errorf("opkitdemo: upstream weather service unavailable (attempt %d)", attempt+1)
	}

	report := WeatherReport{City: w.city, TempCelsius: 10 + rand.Float64()*20, FetchedAt: time.Now()} //nolint:gosec
	return report, nil
}

// buildWeatherStore wires the sample operation with a five-second
// staleness window (driving automatic re-fetch on subscribe); retry,
// deduplication, and automatic-running are applied on top of that by the
// Client's own StoreCreator defaults.
func buildWeatherStore(c *opkit.Client, city string) (*opkit.Store[WeatherReport], error) {
	op := opkit.StaleWhenRevalidate[WeatherReport](opkit.AgeExceeds[WeatherReport](5 * time.Second))(newWeatherOperation(city))
	return opkit.ClientStore(c, op)
}
