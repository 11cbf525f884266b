package domain

import "time"

// SyncStats holds statistics about a sync operation.
type SyncStats struct {
	Job             string
	Fetched         int
	New             int
	Updated         int
	Unchanged       int
	Rejected        int
	Errors          int
	Published       int
	HistoryAppended int
	Duration        time.Duration
}

// FeedArticle is one entry of the upstream article feed.
type FeedArticle struct {
	ID        int64
	Type      string
	Title     string
	PublishAt string
	Message   string
}

// FeedArea is one entry of the upstream area-status feed.
type FeedArea struct {
	Name      string
	Status    string
	UpdatedAt string
}
