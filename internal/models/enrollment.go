package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "active"
	EnrollmentStatusPromoted EnrollmentStatus = "promoted"
)

// Enrollment registers a student into a school year, optionally into a class.
// A student holds at most one active enrollment per year; promotion flips the
// prior enrollment to promoted and opens a classless active one in the next
// year.
type Enrollment struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	StudentID    uint             `gorm:"not null;index" json:"student_id"`
	SchoolYearID uint             `gorm:"not null;index" json:"school_year_id"`
	ClassID      *uint            `gorm:"index" json:"class_id,omitempty"`
	Status       EnrollmentStatus `gorm:"size:16;not null;default:active" json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
