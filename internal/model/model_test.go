package model

import (
	"errors"
	"testing"
	"time"
)

func TestExperimentValidate(t *testing.T) {
	tests := []struct {
		name    string
		exp     Experiment
		wantErr bool
	}{
		{
			name: "valid pointwise",
			exp: Experiment{ID: "e1", Type: PointwiseEvaluation, QuerySetID: "qs",
				SearchConfigurationIDs: []string{"c1"}, JudgmentIDs: []string{"j1"}, Size: 10},
		},
		{
			name: "pointwise without judgments",
			exp: Experiment{ID: "e1", Type: PointwiseEvaluation, QuerySetID: "qs",
				SearchConfigurationIDs: []string{"c1"}, Size: 10},
			wantErr: true,
		},
		{
			name:    "missing id",
			exp:     Experiment{Type: PointwiseEvaluation, QuerySetID: "qs", SearchConfigurationIDs: []string{"c1"}, Size: 10},
			wantErr: true,
		},
		{
			name:    "no configurations",
			exp:     Experiment{ID: "e1", Type: PointwiseEvaluation, QuerySetID: "qs", Size: 10},
			wantErr: true,
		},
		{
			name: "pairwise with one configuration",
			exp: Experiment{ID: "e1", Type: PairwiseComparison, QuerySetID: "qs",
				SearchConfigurationIDs: []string{"c1"}, Size: 10},
			wantErr: true,
		},
		{
			name: "zero size",
			exp: Experiment{ID: "e1", Type: HybridOptimizer, QuerySetID: "qs",
				SearchConfigurationIDs: []string{"c1"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExperimentFail(t *testing.T) {
	exp := &Experiment{ID: "e1", Results: []ResultRecord{{"queryText": "q"}, {"queryText": "r"}}}
	exp.Fail(errors.New("search configuration c2 not found"))

	if exp.Status != StatusError {
		t.Errorf("Status = %s, want ERROR", exp.Status)
	}
	if len(exp.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(exp.Results))
	}
	if msg, ok := exp.ErrorMessage(); !ok || msg != "search configuration c2 not found" {
		t.Errorf("ErrorMessage() = %q, %v", msg, ok)
	}

	exp.Fail(nil)
	if msg, _ := exp.Results[0][KeyError].(string); msg == "" {
		t.Error("diagnostic should never be empty")
	}
}

func TestErrorMessageOnlyWhenFailed(t *testing.T) {
	exp := &Experiment{Status: StatusCompleted, Results: []ResultRecord{{KeyError: "stale"}}}
	if _, ok := exp.ErrorMessage(); ok {
		t.Error("completed experiment should have no error message")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusRunning.Terminal() {
		t.Error("PENDING and RUNNING are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusError.Terminal() {
		t.Error("COMPLETED and ERROR are terminal")
	}
}

func TestClickModelParameters(t *testing.T) {
	p, err := NewClickModelParameters(20).WithDateRange("2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("WithDateRange() error = %v", err)
	}
	if p.RoundingDigits != DefaultRoundingDigits {
		t.Errorf("RoundingDigits = %d, want %d", p.RoundingDigits, DefaultRoundingDigits)
	}

	inside := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	if !p.InRange(inside) {
		t.Error("end date should be inclusive of the whole day")
	}
	if p.InRange(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("February should be out of range")
	}
	if p.InRange(time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)) {
		t.Error("December should be out of range")
	}

	if _, err := NewClickModelParameters(20).WithDateRange("2024-02-01", "2024-01-01"); err == nil {
		t.Error("reversed range should fail validation")
	}
	if _, err := NewClickModelParameters(20).WithDateRange("yesterday", ""); err == nil {
		t.Error("malformed date should fail")
	}
	if err := NewClickModelParameters(0).Validate(); err == nil {
		t.Error("max rank 0 should fail validation")
	}
}

func TestClickModelParametersCacheKey(t *testing.T) {
	a := NewClickModelParameters(20)
	b := NewClickModelParameters(20)
	if a.CacheKey() != b.CacheKey() {
		t.Error("identical parameters should share a cache key")
	}

	c := NewClickModelParameters(10)
	if a.CacheKey() == c.CacheKey() {
		t.Error("different max rank should change the cache key")
	}

	d, _ := NewClickModelParameters(20).WithDateRange("2024-01-01", "")
	if a.CacheKey() == d.CacheKey() {
		t.Error("date range should change the cache key")
	}
}

func TestJobParameters(t *testing.T) {
	simple := JobParameters{JobID: "j1", ExperimentID: "e1", LockDurationSeconds: 20}
	if simple.Replay() {
		t.Error("job with experiment id is not a replay")
	}
	if err := simple.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if simple.LockDuration() != 20*time.Second {
		t.Errorf("LockDuration() = %v, want 20s", simple.LockDuration())
	}
	if simple.LockKey() != "job:j1" {
		t.Errorf("LockKey() = %s", simple.LockKey())
	}

	unlocked := JobParameters{ExperimentID: "e1"}
	if unlocked.LockDuration() != 0 {
		t.Error("zero lock duration should disable locking")
	}
	if unlocked.LockKey() != "experiment:e1" {
		t.Errorf("LockKey() = %s", unlocked.LockKey())
	}

	replay := JobParameters{
		ExperimentType:         PointwiseEvaluation,
		QuerySetID:             "qs",
		SearchConfigurationIDs: []string{"c1", "c2"},
		JudgmentIDs:            []string{"j1"},
		Size:                   5,
	}
	if err := replay.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	exp := replay.NewExperiment("e2", time.Now())
	if exp.Status != StatusPending || exp.Type != PointwiseEvaluation || len(exp.SearchConfigurationIDs) != 2 {
		t.Errorf("NewExperiment() = %+v", exp)
	}

	replay.ExperimentType = "RANDOM"
	if err := replay.Validate(); err == nil {
		t.Error("unknown experiment type should fail validation")
	}
}

func TestJobParametersPeriod(t *testing.T) {
	p := JobParameters{Interval: "15m"}
	d, err := p.Period()
	if err != nil || d != 15*time.Minute {
		t.Errorf("Period() = %v, %v", d, err)
	}
	if _, err := (JobParameters{Interval: "0 * * * *"}).Period(); err == nil {
		t.Error("cron expressions are not parsed here")
	}
}
