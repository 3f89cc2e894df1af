package domain

import "time"

// IngestStats holds counts for one feed ingestion run.
type IngestStats struct {
	Source    string
	Fetched   int
	New       int
	Skipped   int
	Errors    int
	Published int
	Duration  time.Duration
}

// StoreStats summarizes the database for the stats command.
type StoreStats struct {
	TotalArticles int
	BySource      map[string]int
	Tracking      []SourceTracking
}
