package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/storage"
)

// jobFile is a self-contained run definition: the job plus any documents
// it needs that are not already in storage.
type jobFile struct {
	Job                  model.JobParameters         `yaml:"job"`
	QuerySets            []model.QuerySet            `yaml:"query_sets"`
	SearchConfigurations []model.SearchConfiguration `yaml:"search_configurations"`
	Judgments            []model.Judgment            `yaml:"judgments"`
}

func loadJobFile(path string) (*jobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	var jf jobFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	if err := jf.Job.Validate(); err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return &jf, nil
}

// seed stores the documents carried by the job file.
func (jf *jobFile) seed(ctx context.Context, store *storage.Store) error {
	for i := range jf.QuerySets {
		qs := &jf.QuerySets[i]
		if err := store.QuerySets.Put(ctx, qs.ID, qs); err != nil {
			return err
		}
	}
	for i := range jf.SearchConfigurations {
		sc := &jf.SearchConfigurations[i]
		if err := store.SearchConfigurations.Put(ctx, sc.ID, sc); err != nil {
			return err
		}
	}
	for i := range jf.Judgments {
		j := &jf.Judgments[i]
		if j.Type == "" {
			j.Type = model.ImportJudgment
		}
		if j.Status == "" {
			j.Status = model.JudgmentCompleted
		}
		if err := store.Judgments.Put(ctx, j.ID, j); err != nil {
			return err
		}
	}
	return nil
}
