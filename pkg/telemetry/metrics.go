package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Lifecycle ───────────────────────────────────────────────────────────────

	TasksAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "lifecycle",
		Name:      "tasks_accepted_total",
		Help:      "Total successful task claims, labelled by task type.",
	}, []string{"type"})

	TaskSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "lifecycle",
		Name:      "submissions_total",
		Help:      "Total submissions, labelled by task type and outcome (correct, incorrect, expired).",
	}, []string{"type", "outcome"})

	TokensAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "lifecycle",
		Name:      "tokens_awarded_total",
		Help:      "Total tokens paid out for completed tasks.",
	})

	TasksReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "lifecycle",
		Name:      "tasks_released_total",
		Help:      "Total claims reverted to available, labelled by cause (abandon, expired).",
	}, []string{"cause"})

	// ─── Sweeper ─────────────────────────────────────────────────────────────────

	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "sweeper",
		Name:      "sweeps_total",
		Help:      "Total sweep ticks executed by this instance.",
	})

	SweepReleases = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "sweeper",
		Name:      "released_total",
		Help:      "Total lapsed claims reclaimed by the sweeper.",
	})

	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "sweeper",
		Name:      "failures_total",
		Help:      "Total per-task release failures during sweeps.",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskman",
		Subsystem: "sweeper",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of one sweep cycle.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	SweeperLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskman",
		Subsystem: "sweeper",
		Name:      "leader",
		Help:      "1 when this instance currently holds the sweeper lease.",
	})
)
