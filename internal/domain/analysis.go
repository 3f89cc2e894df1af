package domain

import (
	"fmt"
	"time"
)

// AnalysisStatus is the explicit article lifecycle marker. It is stored as a
// first-class column and set exactly once per terminal outcome, so selecting
// unprocessed articles never depends on scanning the payload text.
type AnalysisStatus string

const (
	StatusUnanalyzed    AnalysisStatus = "unanalyzed"
	StatusAnalyzed      AnalysisStatus = "analyzed"
	StatusAnalysisError AnalysisStatus = "analysis_error"
)

// Classification values for Analysis.ContentClassification.
const (
	ClassificationHeadlineOnly = "headline-only"
	ClassificationClickthrough = "clickthrough"
)

// KeyFact is a single fact extracted from an article with an importance
// score from 1 to 10.
type KeyFact struct {
	Fact       string `json:"fact"`
	Importance int    `json:"importance"`
}

// RawEntry snapshots the feed entry an article was created from. It is stored
// in the analysis payload at ingest time and must survive later merges.
type RawEntry struct {
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Published *time.Time `json:"published,omitempty"`
}

// Analysis is the structured payload attached to an article. Fields are
// optional; the payload accretes across ingest and analysis runs with
// field-wise last-write-wins merge semantics at the store boundary.
type Analysis struct {
	KeyFacts              []KeyFact  `json:"key_facts"`
	RelevanceScore        int        `json:"relevance_score"`
	PRProbability         int        `json:"pr_probability"`
	ContentClassification string     `json:"content_classification"`
	Summary               string     `json:"summary"`
	Reasoning             string     `json:"reasoning"`
	ProcessedAt           *time.Time `json:"processed_at,omitempty"`
	Error                 string     `json:"error,omitempty"`
	RawEntry              *RawEntry  `json:"raw_entry,omitempty"`
}

// Status derives the terminal status for this payload.
func (a Analysis) Status() AnalysisStatus {
	if a.Error != "" {
		return StatusAnalysisError
	}
	return StatusAnalyzed
}

// Validate checks field presence, numeric ranges and the classification enum.
func (a Analysis) Validate() error {
	for _, f := range a.KeyFacts {
		if f.Fact == "" {
			return fmt.Errorf("key fact with empty text")
		}
		if f.Importance < 1 || f.Importance > 10 {
			return fmt.Errorf("key fact importance %d out of range [1,10]", f.Importance)
		}
	}
	if a.RelevanceScore < 0 || a.RelevanceScore > 10 {
		return fmt.Errorf("relevance score %d out of range [0,10]", a.RelevanceScore)
	}
	if a.PRProbability < 0 || a.PRProbability > 100 {
		return fmt.Errorf("pr probability %d out of range [0,100]", a.PRProbability)
	}
	if a.ContentClassification != ClassificationHeadlineOnly && a.ContentClassification != ClassificationClickthrough {
		return fmt.Errorf("unknown content classification %q", a.ContentClassification)
	}
	if a.Summary == "" {
		return fmt.Errorf("empty summary")
	}
	return nil
}
