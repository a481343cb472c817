package models

import "time"

// SourceName identifies where a canonical event came from
type SourceName string

const (
	SourceTourismData   SourceName = "tourism-data"
	SourceGeoFeed       SourceName = "geo-feed"
	SourceUserSubmitted SourceName = "user-submitted"
)

// Category is a label from the closed secondhand-market taxonomy
type Category string

const (
	CategoryGradeSale          Category = "gradeSale"
	CategoryAntiqueFair        Category = "antiqueFair"
	CategoryFleaMarket         Category = "fleaMarket"
	CategoryCollectorsExchange Category = "collectorsExchange"
	CategoryEstateClear        Category = "estateClear"
	CategorySwapMeet           Category = "swapMeet"
	CategoryOther              Category = "other"
)

// Categories lists every taxonomy label in classification priority order.
var Categories = []Category{
	CategoryGradeSale,
	CategoryAntiqueFair,
	CategoryFleaMarket,
	CategoryCollectorsExchange,
	CategoryEstateClear,
	CategorySwapMeet,
	CategoryOther,
}

// Valid reports whether c is one of the taxonomy labels.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the moderation lifecycle of a stored event. The ingestion
// pipeline only ever writes StatusPendingReview.
type Status string

const (
	StatusPendingReview Status = "pendingReview"
	StatusPublished     Status = "published"
	StatusRejected      Status = "rejected"
)

// CanonicalEvent is the unit persisted by the pipeline and later served to search
type CanonicalEvent struct {
	ID           string     `json:"id" db:"id"`
	SourceID     string     `json:"source_id" db:"source_id"`
	SourceName   SourceName `json:"source_name" db:"source_name"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	Category     Category   `json:"category" db:"category"`
	Latitude     float64    `json:"latitude" db:"latitude"`
	Longitude    float64    `json:"longitude" db:"longitude"`
	StartAt      time.Time  `json:"start_at" db:"start_at"`
	EndAt        time.Time  `json:"end_at" db:"end_at"`
	Address      string     `json:"address" db:"address"`
	City         string     `json:"city" db:"city"`
	PostalCode   string     `json:"postal_code" db:"postal_code"`
	Phone        string     `json:"phone,omitempty" db:"phone"`
	Email        string     `json:"email,omitempty" db:"email"`
	Website      string     `json:"website,omitempty" db:"website"`
	VisitorPrice string     `json:"visitor_price,omitempty" db:"visitor_price"`
	Status       Status     `json:"status" db:"status"`
	Fingerprint  string     `json:"fingerprint" db:"fingerprint"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Window is the inclusive date range an import run accepts events for
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ImportWindow returns the window from the start of now's day through the
// last instant of the month that is months after now's month.
func ImportWindow(now time.Time, months int) Window {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := firstOfMonth.AddDate(0, months+1, 0).Add(-time.Millisecond)
	return Window{Start: start, End: end}
}

// Overlaps reports whether [start, end] intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return !end.Before(w.Start) && !start.After(w.End)
}
