package monitoring

import (
	"fmt"

	"github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/multibridge/mma/pkg/common"
)

// Config configures monitoring for one relay node.
type Config struct {
	// PyroscopeURL enables continuous profiling when set.
	PyroscopeURL string
	// ApplicationName labels profiles and metrics.
	ApplicationName string
}

type RelayMonitoring struct {
	metrics common.MetricLabeler
}

// InitMonitoring installs the global otel meter provider with the relay
// metric views, registers the instruments, and starts the pyroscope profiler
// when configured. Metric exporters are attached by the deployment, not here.
func InitMonitoring(cfg Config) (common.Monitoring, error) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithView(MetricViews()...))
	otel.SetMeterProvider(provider)

	appName := cfg.ApplicationName
	if appName == "" {
		appName = "mma-relay"
	}

	relayMetrics, err := InitMetrics(provider.Meter(appName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize relay metrics: %w", err)
	}

	if cfg.PyroscopeURL != "" {
		if _, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: appName,
			ServerAddress:   cfg.PyroscopeURL,
			Logger:          pyroscope.StandardLogger,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileGoroutines,
				pyroscope.ProfileBlockDuration,
				pyroscope.ProfileMutexDuration,
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize pyroscope client: %w", err)
		}
	}

	return &RelayMonitoring{
		metrics: NewRelayMetricLabeler(relayMetrics),
	}, nil
}

func (m *RelayMonitoring) Metrics() common.MetricLabeler {
	return m.metrics
}
