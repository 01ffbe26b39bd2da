package models

import "time"

// SchoolYear represents one academic cycle. Exactly one year is active at a time.
type SchoolYear struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:32;not null" json:"name"`
	StartDate      time.Time `gorm:"not null" json:"start_date"`
	EndDate        time.Time `gorm:"not null" json:"end_date"`
	Sequence       int       `gorm:"uniqueIndex" json:"sequence"`
	ActiveSemester int       `gorm:"not null;default:1" json:"active_semester"`
	Active         bool      `gorm:"not null;default:false;index" json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Contains reports whether the instant falls within the year's date range.
func (y SchoolYear) Contains(t time.Time) bool {
	return !t.Before(y.StartDate) && !t.After(y.EndDate)
}
