// Package telemetry exposes supervisor metrics in Prometheus format.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nugget/tether/internal/supervisor"
)

var (
	Registry = prometheus.NewRegistry()

	State = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "state",
			Help:      "Current supervisor state (1 for the active state, 0 otherwise).",
		},
		[]string{"state"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "transitions_total",
			Help:      "Supervisor state transitions.",
		},
		[]string{"from", "to"},
	)

	PublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "publishes_total",
			Help:      "Status publish attempts by result.",
		},
		[]string{"result"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Name:      "publish_duration_seconds",
			Help:      "Time from publish call to broker acknowledgement.",
			// 1ms .. ~8s; QoS 1 over a slow uplink can take seconds.
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(State, TransitionsTotal, PublishesTotal, PublishDuration, buildInfo, uptime)
	setState(supervisor.AwaitingNetwork)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// Recorder feeds supervisor events into the package metrics. It
// implements [supervisor.Observer].
type Recorder struct{}

// OnTransition implements [supervisor.Observer].
func (Recorder) OnTransition(from, to supervisor.State) {
	TransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	setState(to)
}

// OnPublish implements [supervisor.Observer].
func (Recorder) OnPublish(_ uint64, elapsed time.Duration, err error) {
	if err != nil {
		PublishesTotal.WithLabelValues("error").Inc()
		return
	}
	PublishesTotal.WithLabelValues("ok").Inc()
	PublishDuration.Observe(elapsed.Seconds())
}

func setState(current supervisor.State) {
	for _, s := range supervisor.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		State.WithLabelValues(s.String()).Set(v)
	}
}
