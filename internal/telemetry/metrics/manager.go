package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterExercisesLogged    prometheus.Counter
	CounterSheetWrites        prometheus.Counter
	CounterSheetReads         prometheus.Counter
	CounterTokenRefresh       *prometheus.CounterVec
	CounterSyncOpsProcessed   prometheus.Counter
	CounterSyncOpsDropped     prometheus.Counter
	CounterHandleRequestPanic prometheus.Counter

	// gauges
	GaugeRequests      prometheus.Gauge
	GaugeLifeSignal    prometheus.Gauge
	GaugeSyncQueueSize prometheus.Gauge

	// historgrams
	HistRequestDuration   prometheus.Histogram
	HistSheetSyncDuration prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("gymsheets", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("gymsheets", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterExercisesLogged := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "exercises_logged",
		Help:      "The total number of logged exercise entries",
	})
	counterSheetWrites := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sheet_writes",
		Help:      "The total number of remote sheet write calls",
	})
	counterSheetReads := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sheet_reads",
		Help:      "The total number of remote sheet read calls",
	})
	counterTokenRefresh := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "token_refresh",
		Help:      "The total number of access token refresh attempts",
	}, []string{"result"})
	counterSyncOpsProcessed := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sync_ops_processed",
		Help:      "The total number of sync queue operations processed",
	})
	counterSyncOpsDropped := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sync_ops_dropped",
		Help:      "The total number of sync queue operations dropped after retries",
	})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "current_requests",
		Help:        "Current number of requests served",
		ConstLabels: nil,
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "life_signal",
		Help:        "Shows whether the service is alive",
		ConstLabels: nil,
	})
	gaugeSyncQueueSize := factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "sync_queue_size",
		Help:        "Current number of operations waiting in the sync queue",
		ConstLabels: nil,
	})

	histReqDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.0000001, 0.0000002, 0.0000003, 0.0000004, 0.0000005,
				0.000001, 0.0000025, 0.000005, 0.0000075, 0.00001,
				0.0001, 0.001, 0.01, 0.1, 1, 10, 60,
			},
			Name: "request_duration_seconds",
			Help: "Total duration of requests in seconds",
		},
	)
	histSheetSyncDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.0001, 0.001, 0.01, 0.1, 0.5, 1,
				2, 5, 10, 30, 60, 120,
			},
			Name: "sheet_sync_duration_seconds",
			Help: "Total duration of a single remote sheet sync in seconds",
		},
	)

	return &Manager{
		CounterRequests:           counterRequests,
		CounterExercisesLogged:    counterExercisesLogged,
		CounterSheetWrites:        counterSheetWrites,
		CounterSheetReads:         counterSheetReads,
		CounterTokenRefresh:       counterTokenRefresh,
		CounterSyncOpsProcessed:   counterSyncOpsProcessed,
		CounterSyncOpsDropped:     counterSyncOpsDropped,
		CounterHandleRequestPanic: counterHandleRequestPanic,
		GaugeRequests:             gaugeRequests,
		GaugeLifeSignal:           gaugeLifeSignal,
		GaugeSyncQueueSize:        gaugeSyncQueueSize,
		HistRequestDuration:       histReqDuration,
		HistSheetSyncDuration:     histSheetSyncDuration,
	}
}
