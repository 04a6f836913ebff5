package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	assert.Equal(t, JobReasonUnknown, classifyJobReason(nil))
	assert.Equal(t, JobReasonDeadlineExceeded, classifyJobReason(context.DeadlineExceeded))
	assert.Equal(t, JobReasonDeadlineExceeded, classifyJobReason(fmt.Errorf("charge_due: %w", context.Canceled)))
	assert.Equal(t, JobReasonDB, classifyJobReason(gorm.ErrRecordNotFound))

	assert.Equal(t, JobReasonSerializationFailure, classifyJobReason(&pgconn.PgError{Code: "40001"}))
	assert.Equal(t, JobReasonUniqueViolation, classifyJobReason(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, JobReasonDBLockTimeout, classifyJobReason(&pgconn.PgError{Code: "55P03"}))
	assert.Equal(t, JobReasonDB, classifyJobReason(&pgconn.PgError{Code: "42P01"}))

	assert.Equal(t, JobReasonUniqueViolation, classifyJobReason(errors.New("UNIQUE constraint failed: claim_banks.claim_id")))
	assert.Equal(t, JobReasonDBLockTimeout, classifyJobReason(errors.New("database is locked")))
	assert.Equal(t, JobReasonBusinessRule, classifyJobReason(errors.New("chunk_owner_mismatch")))
}

func TestEngineMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = registry
	ResetEngineMetricsForTest()
	defer func() {
		prometheus.DefaultRegisterer = oldRegisterer
		ResetEngineMetricsForTest()
	}()

	m := EngineWithConfig(Config{ServiceName: "claimward", Environment: "test"})
	m.IncJobRun("charge_due")
	m.ObserveJobDuration("charge_due", 0)
	m.IncJobTimeout("charge_due")
	m.IncJobError("charge_due", errors.New("boom"))
	m.AddBatchProcessed("charge_due", 3)
	m.IncChargeOutcome(ChargeOutcomeApplied)
	m.IncGraceTransition(GraceTransitionEntered)
	m.IncTransferBatch(TransferOutcomeCommitted)
	m.AddChunksMoved(2)
	m.ObserveRunLoopLag(0)

	families, err := registry.Gather()
	assert.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["claimward_upkeep_job_runs_total"])
	assert.True(t, names["claimward_upkeep_charges_total"])
	assert.True(t, names["claimward_grace_transitions_total"])
	assert.True(t, names["claimward_transfer_batches_total"])
}
