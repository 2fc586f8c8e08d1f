package fleet

import (
	"botsim/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	messages         *prometheus.CounterVec
	replies          *prometheus.CounterVec
	simulation       *prometheus.HistogramVec
	deployments      *prometheus.CounterVec
	crashes          prometheus.Counter
	staleTransitions prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, m *Manager) *metrics {
	mt := &metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botsim_messages_total",
			Help: "User messages dispatched to a simulated bot.",
		}, []string{"language"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botsim_simulation_outcomes_total",
			Help: "Simulation outcomes by language: reply, none or error.",
		}, []string{"language", "outcome"}),
		simulation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botsim_simulation_seconds",
			Help:    "Time spent in the reply engines.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
		}, []string{"language"}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botsim_deployments_total",
			Help: "Completed connection sequences by result.",
		}, []string{"result"}),
		crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botsim_simulated_crashes_total",
			Help: "Bots halted by the telemetry crash roll.",
		}),
		staleTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botsim_stale_transitions_total",
			Help: "Delayed transitions discarded because the bot changed generation.",
		}),
	}
	if reg == nil {
		return mt
	}

	botsByStatus := func(status Status) func() float64 {
		return func() float64 {
			m.mu.Lock()
			defer m.mu.Unlock()
			n := 0
			for _, b := range m.bots {
				if b.Status == status {
					n++
				}
			}
			return float64(n)
		}
	}
	collectors := []prometheus.Collector{
		mt.messages, mt.replies, mt.simulation, mt.deployments, mt.crashes, mt.staleTransitions,
	}
	for _, status := range []Status{StatusRunning, StatusStopped, StatusError} {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "botsim_bots",
			Help:        "Bots by status.",
			ConstLabels: prometheus.Labels{"status": string(status)},
		}, botsByStatus(status)))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.WarnCF("fleet", "Metric registration failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}
	return mt
}
