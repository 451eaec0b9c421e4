package database

import (
	"errors"
	"time"
)

// ErrStore is returned when the underlying storage fails on a read or write.
var ErrStore = errors.New("detection store failure")

// Detection is one persisted classification event. ID and CreatedAt are
// assigned by the store on insert; rows are never updated or deleted.
type Detection struct {
	ID         int64
	SessionID  string
	Name       string
	Email      string
	AgeGroup   string
	Gender     string
	Emotion    string
	Confidence float64
	ImagePath  string
	IsOnline   bool
	CreatedAt  time.Time
}

// EmotionStat is one aggregation row: per-label event count and mean
// confidence. Derived on demand, never persisted.
type EmotionStat struct {
	Emotion       string
	Count         int64
	AvgConfidence float64
}

type DetectionStore interface {
	// CreateSchema ensures the detections table exists. Idempotent; safe to
	// call on every startup.
	CreateSchema() error

	// Insert appends a detection, assigning its ID and CreatedAt, and
	// returns the new ID. IDs are strictly increasing in insertion order.
	Insert(d *Detection) (int64, error)

	// ListRecent returns at most limit detections, newest first (created_at
	// descending, ties broken by id descending). A limit <= 0 yields an
	// empty result.
	ListRecent(limit int) ([]Detection, error)

	// Aggregate returns one row per emotion present in the store with its
	// count and average confidence. Emotions never observed produce no row.
	Aggregate() ([]EmotionStat, error)

	// Count returns the total number of stored detections.
	Count() (int64, error)

	Close() error
}
