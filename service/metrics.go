package service

import (
	"io"
	"net/http"
	"strconv"
	"time"

	prometheusClient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uber-go/tally/v4"
	"github.com/uber-go/tally/v4/prometheus"
	"go.uber.org/zap"
)

// Metrics implements the scheduler metric sink on a tally scope backed by a
// dedicated Prometheus registry, scraped through HTTPHandler.
type Metrics struct {
	logger *zap.Logger

	prometheusScope       tally.Scope
	prometheusCustomScope tally.Scope
	prometheusCloser      io.Closer
	prometheusRegistry    *prometheusClient.Registry
}

func NewMetrics(logger *zap.Logger, config *Config) *Metrics {
	registry := prometheusClient.NewRegistry()
	reporter := prometheus.NewReporter(prometheus.Options{
		Registerer:       registry,
		DefaultTimerType: prometheus.TimerTypeHistogram,
		OnRegisterError: func(err error) {
			logger.Error("Error registering Prometheus metric", zap.Error(err))
		},
	})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:          config.Metrics.Prefix,
		Tags:            map[string]string{"node_name": config.Name},
		CachedReporter:  reporter,
		Separator:       prometheus.DefaultSeparator,
		SanitizeOptions: &prometheus.DefaultSanitizerOpts,
	}, time.Duration(config.Metrics.ReportingFreqSec)*time.Second)

	return &Metrics{
		logger:                logger,
		prometheusScope:       scope,
		prometheusCustomScope: scope.SubScope("custom"),
		prometheusCloser:      closer,
		prometheusRegistry:    registry,
	}
}

func (m *Metrics) CustomCounter(name string, tags map[string]string, delta int64) {
	m.prometheusCustomScope.Tagged(tags).Counter(name).Inc(delta)
}

func (m *Metrics) CustomGauge(name string, tags map[string]string, value float64) {
	m.prometheusCustomScope.Tagged(tags).Gauge(name).Update(value)
}

func (m *Metrics) CustomTimer(name string, tags map[string]string, value time.Duration) {
	m.prometheusCustomScope.Tagged(tags).Timer(name).Record(value)
}

// APIRequest records one handled HTTP request by route template and status.
func (m *Metrics) APIRequest(route string, code int, elapsed time.Duration) {
	tags := map[string]string{"route": route, "code": strconv.Itoa(code)}
	scope := m.prometheusScope.Tagged(tags)
	scope.Counter("api_request_count").Inc(1)
	scope.Timer("api_request_time").Record(elapsed)
}

// CountWebsocketOpened and CountWebsocketClosed track live event feed
// connections.
func (m *Metrics) CountWebsocketOpened(delta int64) {
	m.prometheusScope.Counter("websocket_opened_count").Inc(delta)
}

func (m *Metrics) CountWebsocketClosed(delta int64) {
	m.prometheusScope.Counter("websocket_closed_count").Inc(delta)
}

// HTTPHandler serves the scrape endpoint for this instance's registry.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.prometheusRegistry, promhttp.HandlerOpts{})
}

func (m *Metrics) Close() {
	if err := m.prometheusCloser.Close(); err != nil {
		m.logger.Warn("Failed to close metrics scope", zap.Error(err))
	}
}
