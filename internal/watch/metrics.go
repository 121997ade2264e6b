package watch

import "github.com/prometheus/client_golang/prometheus"

var (
	observationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_observations_total",
			Help: "Observations ingested, by monitor.",
		},
		[]string{"monitor"},
	)
	windowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_windows_total",
			Help: "Windows evaluated, by monitor.",
		},
		[]string{"monitor"},
	)
	violatingWindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_violating_windows_total",
			Help: "Windows that violated their confidence bounds, by monitor.",
		},
		[]string{"monitor"},
	)
	driftActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driftwatch_drift_active",
			Help: "Whether sustained drift is currently flagged (1) or not (0), by monitor.",
		},
		[]string{"monitor"},
	)
	monitorsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwatch_monitors_active",
			Help: "Number of registered drift monitors.",
		},
	)
)

func init() {
	prometheus.MustRegister(observationsTotal)
	prometheus.MustRegister(windowsTotal)
	prometheus.MustRegister(violatingWindowsTotal)
	prometheus.MustRegister(driftActive)
	prometheus.MustRegister(monitorsActive)
}
