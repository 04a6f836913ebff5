package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonBusinessRule         = "business_rule"
	JobReasonDB                   = "db"
	JobReasonUnknown              = "unknown"
)

const (
	ChargeOutcomeApplied      = "applied"
	ChargeOutcomeInsufficient = "insufficient_funds"
	ChargeOutcomeDedupNoop    = "dedup_noop"
)

const (
	GraceTransitionEntered   = "entered"
	GraceTransitionRecovered = "recovered"
	GraceTransitionCleared   = "cleared"
	GraceTransitionExpired   = "expired"
)

const (
	TransferOutcomeCommitted  = "committed"
	TransferOutcomeRolledBack = "rolled_back"
)

// Config carries the constant labels applied to all engine metrics.
type Config struct {
	ServiceName string
	Environment string
}

// EngineMetrics captures upkeep engine and transfer coordinator health signals.
type EngineMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobTimeouts     *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	batchProcessed  *prometheus.CounterVec
	chargeOutcomes  *prometheus.CounterVec
	graceTransition *prometheus.CounterVec
	transferBatches *prometheus.CounterVec
	chunksMoved     prometheus.Counter
	runLoopLag      prometheus.Observer
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton engine metrics registry.
func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

// EngineWithConfig returns the singleton engine metrics registry using config labels.
func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

// ResetEngineMetricsForTest resets the engine metrics singleton for tests.
func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "claimward"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_upkeep_job_runs_total",
		Help:        "Upkeep engine job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "claimward_upkeep_job_duration_seconds",
		Help:        "Upkeep engine job latency to protect billing pass freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_upkeep_job_timeouts_total",
		Help:        "Upkeep engine job timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_upkeep_job_errors_total",
		Help:        "Upkeep engine job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_upkeep_batch_processed_total",
		Help:        "Claims processed per upkeep job to gauge billing throughput.",
		ConstLabels: constLabels,
	}, []string{"job"})
	chargeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_upkeep_charges_total",
		Help:        "Upkeep charge attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	graceTransition := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_grace_transitions_total",
		Help:        "Grace period transitions to validate insolvency lifecycle health.",
		ConstLabels: constLabels,
	}, []string{"transition"})
	transferBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "claimward_transfer_batches_total",
		Help:        "Chunk ownership transfer batches by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	chunksMoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "claimward_transfer_chunks_moved_total",
		Help:        "Chunks re-parented by committed transfer batches.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "claimward_upkeep_runloop_lag_seconds",
		Help:        "Engine run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		chargeOutcomes,
		graceTransition,
		transferBatches,
		chunksMoved,
		runLoopLag,
	)

	return &EngineMetrics{
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		jobTimeouts:     jobTimeouts,
		jobErrors:       jobErrors,
		batchProcessed:  batchProcessed,
		chargeOutcomes:  chargeOutcomes,
		graceTransition: graceTransition,
		transferBatches: transferBatches,
		chunksMoved:     chunksMoved,
		runLoopLag:      runLoopLag,
	}
}

func (m *EngineMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *EngineMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *EngineMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *EngineMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, classifyJobReason(err)).Inc()
}

func (m *EngineMetrics) AddBatchProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(n))
}

func (m *EngineMetrics) IncChargeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.chargeOutcomes.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) IncGraceTransition(transition string) {
	if m == nil {
		return
	}
	m.graceTransition.WithLabelValues(transition).Inc()
}

func (m *EngineMetrics) IncTransferBatch(outcome string) {
	if m == nil {
		return
	}
	m.transferBatches.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) AddChunksMoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksMoved.Add(float64(n))
}

func (m *EngineMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.runLoopLag.Observe(d.Seconds())
}

func classifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrInvalidTransaction) {
		return JobReasonDB
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001": // serialization_failure
			return JobReasonSerializationFailure
		case "23505": // unique_violation
			return JobReasonUniqueViolation
		case "55P03": // lock_not_available
			return JobReasonDBLockTimeout
		default:
			return JobReasonDB
		}
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint"):
		return JobReasonUniqueViolation
	case strings.Contains(message, "database is locked"), strings.Contains(message, "lock"):
		return JobReasonDBLockTimeout
	case strings.Contains(message, "sql"), strings.Contains(message, "database"):
		return JobReasonDB
	default:
		return JobReasonBusinessRule
	}
}
