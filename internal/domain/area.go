package domain

import "time"

// AreaStatus is the latest known status of a named area.
type AreaStatus struct {
	Name        string    `db:"name" json:"name"`
	Status      string    `db:"status" json:"status"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// AreaStatusChange is one row of the edge-triggered status history.
type AreaStatusChange struct {
	ID         int64     `db:"id" json:"id"`
	Area       string    `db:"area" json:"area_id"`
	Status     string    `db:"status" json:"status"`
	RecordedAt time.Time `db:"recorded_at" json:"timestamp"`
}
