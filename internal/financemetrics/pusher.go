package financemetrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/bursar/internal/config"
	"go.uber.org/zap"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"
	defaultPushTimeout  = 5 * time.Second
)

// Pusher ships a finance snapshot to an external Prometheus sink.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher returns nil when finance metrics are off. Misconfiguration is
// logged and also yields nil so startup is never blocked on it.
func NewPusher(cfg config.Config, log *zap.Logger) Pusher {
	if !cfg.FinanceStats.Enabled {
		return nil
	}
	pusher, err := pusherFor(cfg)
	if err != nil {
		if log == nil {
			log = zap.NewNop()
		}
		log.Named("financemetrics").Warn("finance metrics disabled", zap.Error(err))
		return nil
	}
	return pusher
}

func pusherFor(cfg config.Config) (Pusher, error) {
	stats := cfg.FinanceStats
	exporter := strings.ToLower(strings.TrimSpace(stats.Exporter))
	endpoint := strings.TrimSpace(stats.Endpoint)
	if exporter == "" {
		return nil, errors.New("FINANCE_METRICS_EXPORTER is required")
	}
	if endpoint == "" {
		return nil, errors.New("FINANCE_METRICS_ENDPOINT is required")
	}
	// both sinks label the series with the deployment
	external := map[string]string{"environment": strings.TrimSpace(cfg.Environment)}

	switch exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("invalid FINANCE_METRICS_ENDPOINT: %w", err)
		}
		return NewRemoteWritePusher(endpoint, stats.AuthToken, external), nil
	case ExporterPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, external), nil
	default:
		return nil, fmt.Errorf("unknown finance metrics exporter %q", exporter)
	}
}
