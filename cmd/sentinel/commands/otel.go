package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	goSentinel "github.com/MrEthical07/goSentinel"
	otelexport "github.com/MrEthical07/goSentinel/metrics/export/otel"
)

// OTelPath serves the OpenTelemetry view of the engine metrics.
const OTelPath = "/metrics/otel"

const meterName = "github.com/MrEthical07/goSentinel"

// otelMetrics owns the meter provider behind serve --otel.
type otelMetrics struct {
	provider *sdkmetric.MeterProvider
	exporter *otelexport.Exporter
	handler  http.Handler
}

// startOTel builds a MeterProvider read by a Prometheus exporter on a private
// registry and registers the engine instruments on it.
func startOTel(engine *goSentinel.Engine) (*otelMetrics, error) {
	registry := prometheus.NewRegistry()
	reader, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("otel prometheus reader: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	exp, err := otelexport.New(provider.Meter(meterName), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &otelMetrics{
		provider: provider,
		exporter: exp,
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}),
	}, nil
}

func (m *otelMetrics) Shutdown(ctx context.Context) error {
	return errors.Join(m.exporter.Close(), m.provider.Shutdown(ctx))
}
