package domain

import "time"

// Location is a point of interest reported by a participant or device.
type Location struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Latitude    *float64  `db:"latitude" json:"latitude"`
	Longitude   *float64  `db:"longitude" json:"longitude"`
	UpdatedAt   time.Time `db:"updated_at" json:"timestamp"`
}
