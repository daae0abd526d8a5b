// monitor/monitor.go
package monitor

import (
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/poisonheart/logger"
)

type Metrics struct {
	ActiveRooms          prometheus.Gauge
	OnlineSessions       prometheus.Gauge
	Subscribers          prometheus.Gauge
	Requests             *prometheus.CounterVec
	GamesFinished        prometheus.Counter
	NotificationsDropped prometheus.Counter
	NotificationFailures prometheus.Counter
	RequestLatency       prometheus.Histogram
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of registered rooms",
		}),
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of open streaming connections",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Number of room subscribers",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Room operations by action and outcome",
		}, []string{"action", "outcome"}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Rounds that ended with a poisoned draw",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Snapshots discarded because a subscriber queue was full",
		}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Subscriber deliveries that returned an error or panicked",
		}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Room operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	registerer.MustRegister(
		m.ActiveRooms,
		m.OnlineSessions,
		m.Subscribers,
		m.Requests,
		m.GamesFinished,
		m.NotificationsDropped,
		m.NotificationFailures,
		m.RequestLatency,
	)

	return m
}

// Monitor owns a private registry so several instances can coexist in one
// process.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	server       *http.Server
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	return &Monitor{
		metrics:   NewMetrics(namespace, registry),
		registry:  registry,
		startTime: time.Now(),
	}
}

var publishOnce sync.Once

// Handler serves the Prometheus exposition for this monitor.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	// expvar names are process-global
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			return m.RequestCount()
		}))
	})

	m.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Log.Infof("Metrics server listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("Metrics server failed: %v", err)
		}
	}()
}

func (m *Monitor) Shutdown() {
	if m.server != nil {
		m.server.Close()
	}
}

func (m *Monitor) IncOnlineSessions() {
	m.metrics.OnlineSessions.Inc()
}

func (m *Monitor) DecOnlineSessions() {
	m.metrics.OnlineSessions.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncGamesFinished() {
	m.metrics.GamesFinished.Inc()
}

// ObserveRequest records one room operation.
func (m *Monitor) ObserveRequest(action, outcome string, duration time.Duration) {
	m.metrics.Requests.WithLabelValues(action, outcome).Inc()
	m.metrics.RequestLatency.Observe(duration.Seconds())
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) RequestCount() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

// --- broadcast.Observer ---

func (m *Monitor) NotificationDropped(string) {
	m.metrics.NotificationsDropped.Inc()
}

func (m *Monitor) NotificationFailed(string) {
	m.metrics.NotificationFailures.Inc()
}

func (m *Monitor) SetSubscribers(n int) {
	m.metrics.Subscribers.Set(float64(n))
}
