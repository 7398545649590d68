package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ricesearch/search-relevance/internal/pkg/hash"
)

// JudgmentType records where a judgment set came from.
type JudgmentType string

// Judgment sources. Evaluators treat all of them the same way.
const (
	LLMJudgment    JudgmentType = "LLM_JUDGMENT"
	UBIJudgment    JudgmentType = "UBI_JUDGMENT"
	ImportJudgment JudgmentType = "IMPORT_JUDGMENT"
)

// JudgmentStatus is the processing state of a judgment set.
type JudgmentStatus string

// Judgment statuses.
const (
	JudgmentProcessing JudgmentStatus = "PROCESSING"
	JudgmentCompleted  JudgmentStatus = "COMPLETED"
	JudgmentError      JudgmentStatus = "ERROR"
)

// DocRating is the relevance of one document for a query.
type DocRating struct {
	DocID  string  `json:"docId" yaml:"doc_id"`
	Rating float64 `json:"rating" yaml:"rating"`
}

// QueryRatings groups the ratings of one query.
type QueryRatings struct {
	Query   string      `json:"query" yaml:"query"`
	Ratings []DocRating `json:"ratings" yaml:"ratings"`
}

// Judgment is a stored set of (query, document) relevance scores.
type Judgment struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Type      JudgmentType   `json:"type" yaml:"type"`
	Status    JudgmentStatus `json:"status" yaml:"status"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Ratings   []QueryRatings `json:"judgmentRatings" yaml:"ratings"`
	CreatedAt time.Time      `json:"timestamp" yaml:"created_at"`
}

// DefaultRoundingDigits is the precision used when none is requested.
const DefaultRoundingDigits = 3

// DateLayout is the layout accepted for click-model date ranges.
const DateLayout = "2006-01-02"

// ClickModelParameters drives one COEC computation. Not persisted on its
// own; it is copied into the judgment's metadata.
type ClickModelParameters struct {
	MaxRank        int        `json:"maxRank"`
	RoundingDigits int        `json:"roundingDigits"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
}

// NewClickModelParameters returns parameters with the default rounding.
func NewClickModelParameters(maxRank int) ClickModelParameters {
	return ClickModelParameters{MaxRank: maxRank, RoundingDigits: DefaultRoundingDigits}
}

// WithDateRange parses inclusive start and end dates (yyyy-mm-dd). Empty
// strings leave that side open. The end date covers the whole day.
func (p ClickModelParameters) WithDateRange(start, end string) (ClickModelParameters, error) {
	if start != "" {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return p, fmt.Errorf("invalid start date %q: %w", start, err)
		}
		p.StartDate = &t
	}
	if end != "" {
		t, err := time.Parse(DateLayout, end)
		if err != nil {
			return p, fmt.Errorf("invalid end date %q: %w", end, err)
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		p.EndDate = &t
	}
	return p, p.Validate()
}

// Validate checks parameter ranges.
func (p ClickModelParameters) Validate() error {
	if p.MaxRank < 1 {
		return fmt.Errorf("max rank must be positive, got %d", p.MaxRank)
	}
	if p.RoundingDigits < 0 || p.RoundingDigits > 10 {
		return fmt.Errorf("rounding digits must be between 0 and 10, got %d", p.RoundingDigits)
	}
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return fmt.Errorf("start date is after end date")
	}
	return nil
}

// InRange reports whether t falls inside the optional date range.
func (p ClickModelParameters) InRange(t time.Time) bool {
	if p.StartDate != nil && t.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && t.After(*p.EndDate) {
		return false
	}
	return true
}

// CacheKey identifies a computation so that identical requests reuse a
// previously computed judgment set.
func (p ClickModelParameters) CacheKey() string {
	start, end := "", ""
	if p.StartDate != nil {
		start = p.StartDate.UTC().Format(time.RFC3339Nano)
	}
	if p.EndDate != nil {
		end = p.EndDate.UTC().Format(time.RFC3339Nano)
	}
	return hash.Key("coec", strconv.Itoa(p.MaxRank), strconv.Itoa(p.RoundingDigits), start, end)
}

// Metadata renders the parameters for storage on a judgment document.
func (p ClickModelParameters) Metadata() map[string]any {
	md := map[string]any{
		"clickModel":     "coec",
		"maxRank":        p.MaxRank,
		"roundingDigits": p.RoundingDigits,
	}
	if p.StartDate != nil {
		md["startDate"] = p.StartDate.Format(DateLayout)
	}
	if p.EndDate != nil {
		md["endDate"] = p.EndDate.Format(DateLayout)
	}
	return md
}
