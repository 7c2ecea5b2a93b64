package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure stages reported through IncFailure.
const (
	StageMetadata = "metadata"
	StageResolve  = "resolve"
	StageLoad     = "load"
	StageConnect  = "connect"
)

// Collector captures telemetry events emitted by the locator.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They are called while the locator holds its lock, so
// they must be inexpensive and must not call back into the locator.
type Collector interface {
	IncHotReload(file string)
	IncConnectAttempt(repository string)
	IncFailure(repository, stage string)
	IncDisconnect(repository string)
	SetConnected(repository string, connected bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)       {}
func (noopCollector) IncConnectAttempt(string)  {}
func (noopCollector) IncFailure(string, string) {}
func (noopCollector) IncDisconnect(string)      {}
func (noopCollector) SetConnected(string, bool) {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	hotReloads      *prometheus.CounterVec
	connectAttempts *prometheus.CounterVec
	failures        *prometheus.CounterVec
	disconnects     *prometheus.CounterVec
	connected       *prometheus.GaugeVec
}

var (
	metricsLock           sync.Mutex
	hotReloadCounter      *prometheus.CounterVec
	connectAttemptCounter *prometheus.CounterVec
	failureCounter        *prometheus.CounterVec
	disconnectCounter     *prometheus.CounterVec
	connectedGauge        *prometheus.GaugeVec
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
// Metrics already registered by an earlier call are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metricsLock.Lock()
	defer metricsLock.Unlock()

	var err error
	if hotReloadCounter, err = registerCounterVec(reg, hotReloadCounter, prometheus.CounterOpts{
		Name: "repolocator_config_hot_reload_total",
		Help: "Number of hot reload operations triggered per configuration source file.",
	}, "file"); err != nil {
		return nil, err
	}
	if connectAttemptCounter, err = registerCounterVec(reg, connectAttemptCounter, prometheus.CounterOpts{
		Name: "repolocator_connect_attempts_total",
		Help: "Number of repository connect attempts.",
	}, "repository"); err != nil {
		return nil, err
	}
	if failureCounter, err = registerCounterVec(reg, failureCounter, prometheus.CounterOpts{
		Name: "repolocator_failures_total",
		Help: "Number of failed repository accesses by failure stage.",
	}, "repository", "stage"); err != nil {
		return nil, err
	}
	if disconnectCounter, err = registerCounterVec(reg, disconnectCounter, prometheus.CounterOpts{
		Name: "repolocator_disconnects_total",
		Help: "Number of repository disconnects performed before a handle was reconnected or discarded.",
	}, "repository"); err != nil {
		return nil, err
	}
	if connectedGauge, err = registerGaugeVec(reg, connectedGauge, prometheus.GaugeOpts{
		Name: "repolocator_connected",
		Help: "Whether the cached repository handle is connected (1) or not (0).",
	}, "repository"); err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		hotReloads:      hotReloadCounter,
		connectAttempts: connectAttemptCounter,
		failures:        failureCounter,
		disconnects:     disconnectCounter,
		connected:       connectedGauge,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, current *prometheus.CounterVec, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	if current != nil {
		return current, nil
	}
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

func registerGaugeVec(reg prometheus.Registerer, current *prometheus.GaugeVec, opts prometheus.GaugeOpts, labels ...string) (*prometheus.GaugeVec, error) {
	if current != nil {
		return current, nil
	}
	gauge := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(gauge); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return gauge, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// IncConnectAttempt records a connect attempt against a repository.
func (p *PrometheusCollector) IncConnectAttempt(repository string) {
	if p == nil || p.connectAttempts == nil {
		return
	}
	p.connectAttempts.WithLabelValues(repository).Inc()
}

// IncFailure records a failed access for the given stage.
func (p *PrometheusCollector) IncFailure(repository, stage string) {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.WithLabelValues(repository, stage).Inc()
}

// IncDisconnect records a disconnect of a cached handle.
func (p *PrometheusCollector) IncDisconnect(repository string) {
	if p == nil || p.disconnects == nil {
		return
	}
	p.disconnects.WithLabelValues(repository).Inc()
}

// SetConnected updates the connection gauge.
func (p *PrometheusCollector) SetConnected(repository string, connected bool) {
	if p == nil || p.connected == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1
	}
	p.connected.WithLabelValues(repository).Set(value)
}
