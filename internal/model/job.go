package model

import (
	"fmt"
	"time"
)

// DefaultLockDurationSeconds is used for scheduled jobs created without one.
const DefaultLockDurationSeconds int64 = 20

// JobParameters is the recurring trigger definition handed to the job
// runner. Either ExperimentID is set (re-run an existing experiment) or the
// replay fields describe a new experiment to create on every run.
type JobParameters struct {
	JobID               string    `json:"id" yaml:"id"`
	Name                string    `json:"name" yaml:"name"`
	Enabled             bool      `json:"enabled" yaml:"enabled"`
	Interval            string    `json:"schedule" yaml:"schedule"`
	LockDurationSeconds int64     `json:"lockDurationSeconds" yaml:"lock_duration_seconds"`
	Jitter              float64   `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	EnabledTime         time.Time `json:"enabledTime" yaml:"enabled_time"`
	LastUpdateTime      time.Time `json:"lastUpdateTime" yaml:"last_update_time"`

	ExperimentID string `json:"experimentId,omitempty" yaml:"experiment_id,omitempty"`

	ExperimentType         ExperimentType `json:"experimentType,omitempty" yaml:"experiment_type,omitempty"`
	QuerySetID             string         `json:"querySetId,omitempty" yaml:"query_set_id,omitempty"`
	SearchConfigurationIDs []string       `json:"searchConfigurationList,omitempty" yaml:"search_configuration_ids,omitempty"`
	JudgmentIDs            []string       `json:"judgmentList,omitempty" yaml:"judgment_ids,omitempty"`
	Size                   int            `json:"size,omitempty" yaml:"size,omitempty"`
}

// LockDuration returns the configured lock duration. Zero means the run is
// not guarded by a lock.
func (p JobParameters) LockDuration() time.Duration {
	if p.LockDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(p.LockDurationSeconds) * time.Second
}

// Replay reports whether the parameters describe a new experiment rather
// than an existing experiment id.
func (p JobParameters) Replay() bool {
	return p.ExperimentID == ""
}

// LockKey is the run-lock identity: one active run per job.
func (p JobParameters) LockKey() string {
	if p.JobID != "" {
		return "job:" + p.JobID
	}
	return "experiment:" + p.ExperimentID
}

// Period parses the interval schedule.
func (p JobParameters) Period() (time.Duration, error) {
	d, err := time.ParseDuration(p.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", p.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("schedule must be positive, got %s", d)
	}
	return d, nil
}

// Validate checks that the parameters identify something to run.
func (p JobParameters) Validate() error {
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1, got %v", p.Jitter)
	}
	if !p.Replay() {
		return nil
	}
	if !p.ExperimentType.Valid() {
		return fmt.Errorf("unsupported experiment type %q", p.ExperimentType)
	}
	if p.QuerySetID == "" {
		return fmt.Errorf("query set id is required")
	}
	if len(p.SearchConfigurationIDs) == 0 {
		return fmt.Errorf("at least one search configuration id is required")
	}
	if p.Size < 1 {
		return fmt.Errorf("size must be positive, got %d", p.Size)
	}
	return nil
}

// NewExperiment builds the PENDING experiment described by replay parameters.
func (p JobParameters) NewExperiment(id string, now time.Time) *Experiment {
	return &Experiment{
		ID:                     id,
		Type:                   p.ExperimentType,
		Status:                 StatusPending,
		QuerySetID:             p.QuerySetID,
		SearchConfigurationIDs: append([]string(nil), p.SearchConfigurationIDs...),
		JudgmentIDs:            append([]string(nil), p.JudgmentIDs...),
		Size:                   p.Size,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}
