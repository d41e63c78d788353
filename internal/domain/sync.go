package domain

import "time"

// SyncStats holds statistics about one full sync cycle.
type SyncStats struct {
	SourceID   string
	Pages      int
	Fetched    int
	New        int
	Changed    int
	Unchanged  int
	Removed    int
	Errors     int
	Published  int
	Unresolved int
	Duration   time.Duration
}
