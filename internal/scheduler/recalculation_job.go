package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/modules/portfolio"
)

// PositionRecalculator defines the contract for portfolio recalculation
// Used by scheduler to enable testing with mocks
type PositionRecalculator interface {
	RecalculateAll() (*portfolio.RecalculationSummary, error)
}

// OverviewInvalidator clears memoized aggregate views after state changes
type OverviewInvalidator interface {
	Invalidate()
}

// RecalculationJob replays the ledger into positions on a schedule so that
// positions converge even when an import-time replay failed.
type RecalculationJob struct {
	manager     PositionRecalculator
	invalidator OverviewInvalidator
	log         zerolog.Logger
}

// NewRecalculationJob creates a new position recalculation job
func NewRecalculationJob(manager PositionRecalculator, invalidator OverviewInvalidator, log zerolog.Logger) *RecalculationJob {
	return &RecalculationJob{
		manager:     manager,
		invalidator: invalidator,
		log:         log.With().Str("job", "position_recalculation").Logger(),
	}
}

// Run recalculates all positions from the transaction ledger
func (j *RecalculationJob) Run() error {
	summary, err := j.manager.RecalculateAll()
	if err != nil {
		return err
	}

	j.invalidator.Invalidate()

	j.log.Info().
		Int("live_positions", summary.LivePositions).
		Int("processed", summary.Processed).
		Int("failed", len(summary.Failed)).
		Msg("Position recalculation completed")

	return nil
}

// Name returns the job name for scheduling and logging
func (j *RecalculationJob) Name() string {
	return "position_recalculation"
}
