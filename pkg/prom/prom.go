package prom

import (
	"sync"

	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemPayments  = "payment"
	SystemGateway   = "gateway"
	SystemCallbacks = "callback"
	SystemStats     = "stats"
	SystemQueue     = "queue"
)

type metrics struct {
	registry *prometheus.Registry

	paymentsInitiated *prometheus.CounterVec
	paymentsSettled   *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	gatewayState      *prometheus.GaugeVec
	callbacks         *prometheus.CounterVec
	statsEvents       *prometheus.CounterVec
	queueBacklog      *prometheus.GaugeVec
}

var (
	mu      sync.RWMutex
	current *metrics
)

// Create builds a fresh registry labelled with env and instance. Calling it again
// replaces the previous set, so recorders are no-ops until Create has run once.
func Create(host string, env string, namespace string) error {
	labels := prometheus.Labels{"env": env, "instance": host}
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		paymentsInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: SystemPayments, Name: "initiated_total",
			Help: "STK push attempts by result.", ConstLabels: labels,
		}, []string{"result"}),
		paymentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: SystemPayments, Name: "settled_total",
			Help: "Terminal transitions by status and the path that applied them.", ConstLabels: labels,
		}, []string{"status", "source"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: SystemGateway, Name: "request_duration_seconds",
			Help: "Daraja round trip latency.", ConstLabels: labels,
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op", "outcome"}),
		gatewayState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: SystemGateway, Name: "state",
			Help: "1 for the provider's current circuit state.", ConstLabels: labels,
		}, []string{"state"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: SystemCallbacks, Name: "received_total",
			Help: "Provider callbacks by outcome.", ConstLabels: labels,
		}, []string{"outcome"}),
		statsEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: SystemStats, Name: "events_processed_total",
			Help: "Settlement events folded into vehicle stats.", ConstLabels: labels,
		}, []string{"status"}),
		queueBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: SystemQueue, Name: "backlog",
			Help: "Stream entries by kind (total, pending, in_flight).", ConstLabels: labels,
		}, []string{"stream", "kind"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.paymentsInitiated, m.paymentsSettled,
		m.gatewayDuration, m.gatewayState,
		m.callbacks, m.statsEvents, m.queueBacklog,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	mu.Lock()
	current = m
	mu.Unlock()
	return nil
}

func get() *metrics {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Gatherer exposes the active registry, nil before Create.
func Gatherer() prometheus.Gatherer {
	if m := get(); m != nil {
		return m.registry
	}
	return nil
}

func ListenAndServer(addr string, url string) {
	m := get()
	if m == nil {
		logger.Error("[metrics-server] Create was not called, not serving")
		return
	}
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Router.GET(url, hh)
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func IncPaymentInitiated(result string) {
	if m := get(); m != nil {
		m.paymentsInitiated.WithLabelValues(result).Inc()
	}
}

func IncPaymentSettled(status, source string) {
	if m := get(); m != nil {
		m.paymentsSettled.WithLabelValues(status, source).Inc()
	}
}

func AddGatewayRequestDuration(seconds float64, op, outcome string) {
	if m := get(); m != nil {
		m.gatewayDuration.WithLabelValues(op, outcome).Observe(seconds)
	}
}

// SetGatewayState marks state as the only active one among states.
func SetGatewayState(state string, states ...string) {
	m := get()
	if m == nil {
		return
	}
	for _, s := range states {
		m.gatewayState.WithLabelValues(s).Set(0)
	}
	m.gatewayState.WithLabelValues(state).Set(1)
}

func IncCallbackReceived(outcome string) {
	if m := get(); m != nil {
		m.callbacks.WithLabelValues(outcome).Inc()
	}
}

func IncStatsEventProcessed(status string) {
	if m := get(); m != nil {
		m.statsEvents.WithLabelValues(status).Inc()
	}
}

func SetQueueBacklog(stream string, total, pending, inFlight int64) {
	m := get()
	if m == nil {
		return
	}
	m.queueBacklog.WithLabelValues(stream, "total").Set(float64(total))
	m.queueBacklog.WithLabelValues(stream, "pending").Set(float64(pending))
	m.queueBacklog.WithLabelValues(stream, "in_flight").Set(float64(inFlight))
}
