package scheduler

import (
	"github.com/rs/zerolog"
)

// SplitRecorder defines the contract for split detection
// Used by scheduler to enable testing with mocks
type SplitRecorder interface {
	DetectAndRecordSplits() (int, error)
}

// SplitDetectionJob scans transaction histories for unrecorded stock splits
type SplitDetectionJob struct {
	manager SplitRecorder
	log     zerolog.Logger
}

// NewSplitDetectionJob creates a new split detection job
func NewSplitDetectionJob(manager SplitRecorder, log zerolog.Logger) *SplitDetectionJob {
	return &SplitDetectionJob{
		manager: manager,
		log:     log.With().Str("job", "split_detection").Logger(),
	}
}

// Run detects and records splits across all identifiers
func (j *SplitDetectionJob) Run() error {
	recorded, err := j.manager.DetectAndRecordSplits()
	if err != nil {
		return err
	}

	if recorded > 0 {
		j.log.Info().Int("recorded", recorded).Msg("New split events recorded")
	}

	return nil
}

// Name returns the job name for scheduling and logging
func (j *SplitDetectionJob) Name() string {
	return "split_detection"
}
