package model

// QueryEntry is one representative query.
type QueryEntry struct {
	QueryText   string `json:"queryText" yaml:"query_text"`
	ReferenceID string `json:"referenceAnswer,omitempty" yaml:"reference_id,omitempty"`
}

// QuerySet is an immutable ordered list of queries.
type QuerySet struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Queries     []QueryEntry `json:"querySetQueries" yaml:"queries"`
}

// Texts returns the query texts in set order.
func (q *QuerySet) Texts() []string {
	texts := make([]string, len(q.Queries))
	for i, entry := range q.Queries {
		texts[i] = entry.QueryText
	}
	return texts
}

// SearchTextPlaceholder is replaced by the query text when a template is rendered.
const SearchTextPlaceholder = "%SearchText%"

// SearchConfiguration defines how a query is executed against the engine.
type SearchConfiguration struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Index          string `json:"index" yaml:"index"`
	QueryTemplate  string `json:"query" yaml:"query"`
	SearchPipeline string `json:"searchPipeline,omitempty" yaml:"search_pipeline,omitempty"`
}
