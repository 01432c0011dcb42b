package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "never2_blocks_appended_total",
		Help: "Total number of layer blocks appended to the scene, labelled by layer type.",
	}, []string{"layer"})

	BlocksRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "never2_blocks_removed_total",
		Help: "Total number of layer blocks removed from the scene.",
	})

	AppendRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "never2_append_rollbacks_total",
		Help: "Total number of appends undone because the layer could not be built.",
	})

	PropertiesAttached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "never2_properties_attached_total",
		Help: "Total number of property blocks attached, labelled by side and kind.",
	}, []string{"side", "kind"})

	SceneBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "never2_scene_blocks",
		Help: "Number of blocks currently in the scene, input and output included.",
	})

	ProjectIO = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "never2_project_io_total",
		Help: "Total number of project open and save operations, labelled by op and status.",
	}, []string{"op", "status"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "never2_command_duration_ms",
		Help:    "Time spent executing editing commands on the session loop, in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"command"})

	CommandsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "never2_commands_rejected_total",
		Help: "Total number of commands rejected because the session loop was busy or stopped.",
	})

	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "never2_jobs_started_total",
		Help: "Total number of background jobs started, labelled by kind.",
	}, []string{"kind"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "never2_jobs_finished_total",
		Help: "Total number of background jobs finished, labelled by kind and status.",
	}, []string{"kind", "status"})

	JobsBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "never2_jobs_busy_total",
		Help: "Total number of job requests refused because another job was running.",
	})
)
