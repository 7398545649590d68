// Package model defines the documents exchanged between the job runner,
// the evaluators and the document store.
package model

import (
	"fmt"
	"time"
)

// ExperimentType selects the evaluator used for every query of an experiment.
type ExperimentType string

// Experiment types.
const (
	PairwiseComparison  ExperimentType = "PAIRWISE_COMPARISON"
	PointwiseEvaluation ExperimentType = "POINTWISE_EVALUATION"
	HybridOptimizer     ExperimentType = "HYBRID_OPTIMIZER"
)

// Valid reports whether t is a known experiment type.
func (t ExperimentType) Valid() bool {
	switch t {
	case PairwiseComparison, PointwiseEvaluation, HybridOptimizer:
		return true
	}
	return false
}

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

// Experiment statuses. RUNNING is never persisted on its own; a stored
// experiment without a terminal status is implicitly running.
const (
	StatusPending   ExperimentStatus = "PENDING"
	StatusRunning   ExperimentStatus = "RUNNING"
	StatusCompleted ExperimentStatus = "COMPLETED"
	StatusError     ExperimentStatus = "ERROR"
)

// Terminal reports whether no further transition is expected for the current run.
func (s ExperimentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Well-known result record keys.
const (
	KeyQueryText             = "queryText"
	KeySearchConfigurationID = "searchConfigurationId"
	KeyEvaluationID          = "evaluationId"
	KeyDocIDs                = "docIds"
	KeyMetrics               = "metrics"
	KeyError                 = "error"
	KeyConfigurationResults  = "searchConfigurationResults"
)

// ResultRecord is one entry of an experiment's results payload.
// Its shape depends on the experiment type.
type ResultRecord map[string]any

// Experiment is one evaluation run comparing search configurations.
type Experiment struct {
	ID                     string           `json:"id" yaml:"id"`
	Type                   ExperimentType   `json:"type" yaml:"type"`
	Status                 ExperimentStatus `json:"status" yaml:"status"`
	QuerySetID             string           `json:"querySetId" yaml:"query_set_id"`
	SearchConfigurationIDs []string         `json:"searchConfigurationList" yaml:"search_configuration_ids"`
	JudgmentIDs            []string         `json:"judgmentList" yaml:"judgment_ids"`
	Size                   int              `json:"size" yaml:"size"`
	Results                []ResultRecord   `json:"results" yaml:"results"`
	CreatedAt              time.Time        `json:"timestamp" yaml:"created_at"`
	UpdatedAt              time.Time        `json:"updatedAt" yaml:"updated_at"`
}

// Validate checks the fields required before an experiment can run.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("experiment id cannot be empty")
	}
	if e.QuerySetID == "" {
		return fmt.Errorf("experiment %s has no query set", e.ID)
	}
	if len(e.SearchConfigurationIDs) == 0 {
		return fmt.Errorf("experiment %s has no search configurations", e.ID)
	}
	if e.Type == PairwiseComparison && len(e.SearchConfigurationIDs) < 2 {
		return fmt.Errorf("pairwise experiment %s needs at least two search configurations", e.ID)
	}
	if (e.Type == PointwiseEvaluation || e.Type == HybridOptimizer) && len(e.JudgmentIDs) == 0 {
		return fmt.Errorf("experiment %s needs at least one judgment set", e.ID)
	}
	if e.Size < 1 {
		return fmt.Errorf("experiment %s size must be positive", e.ID)
	}
	return nil
}

// Complete marks the experiment COMPLETED with the merged results.
func (e *Experiment) Complete(records []ResultRecord) {
	e.Status = StatusCompleted
	e.Results = records
	e.UpdatedAt = time.Now()
}

// Fail marks the experiment ERROR. The results payload is replaced by a
// single diagnostic record carrying the error message.
func (e *Experiment) Fail(err error) {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	e.Status = StatusError
	e.Results = []ResultRecord{{KeyError: msg}}
	e.UpdatedAt = time.Now()
}

// ErrorMessage returns the diagnostic of a failed experiment.
func (e *Experiment) ErrorMessage() (string, bool) {
	if e.Status != StatusError || len(e.Results) == 0 {
		return "", false
	}
	msg, ok := e.Results[0][KeyError].(string)
	return msg, ok
}

// EvaluationResult is the stored per-(configuration, query) document
// produced by pointwise evaluation.
type EvaluationResult struct {
	ID                    string             `json:"id"`
	ExperimentID          string             `json:"experimentId"`
	RunID                 string             `json:"runId,omitempty"`
	SearchConfigurationID string             `json:"searchConfigurationId"`
	QueryText             string             `json:"searchText"`
	DocIDs                []string           `json:"documentIds"`
	Judgments             map[string]float64 `json:"judgments"`
	Metrics               map[string]float64 `json:"metrics"`
	CreatedAt             time.Time          `json:"timestamp"`
}
