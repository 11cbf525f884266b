package domain

import "time"

// Series names a response-time series.
type Series string

const (
	SeriesUpstream Series = "upstream"
	SeriesAPI      Series = "api"
)

type ResponseTimeSample struct {
	ID             int64     `db:"id" json:"id"`
	Endpoint       string    `db:"endpoint" json:"endpoint,omitempty"`
	RecordedAt     time.Time `db:"recorded_at" json:"timestamp"`
	ResponseTimeMs float64   `db:"response_time_ms" json:"response_time_ms"`
}
