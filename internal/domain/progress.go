package domain

import (
	"time"
)

// DateFormat is the ISO 8601 calendar-date layout used for journal dates.
const DateFormat = "2006-01-02"

// ProgressEntry journals the first exchange of a unique study day.
// At most one entry exists per (user, date); day numbers count unique days
// starting at zero, they are not calendar offsets.
type ProgressEntry struct {
	UserHash  string    `json:"user_hash"`
	DayNumber int       `json:"day_number"`
	Date      string    `json:"date"`
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressOverview is a read-only aggregate of a user's journaled days.
type ProgressOverview struct {
	CompletedDays int `json:"completed_days"`
	TargetDays    int `json:"target_days"`
}

// Ratio returns completion as a fraction of the target, clamped to 1.0 for
// display. A learner can journal past the target; the overview just stops
// growing.
func (p ProgressOverview) Ratio() float64 {
	if p.TargetDays <= 0 {
		return 0
	}
	r := float64(p.CompletedDays) / float64(p.TargetDays)
	if r > 1 {
		return 1
	}
	return r
}
