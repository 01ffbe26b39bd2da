package models

import (
	"time"

	"gorm.io/datatypes"
)

// PromotionArchive is the immutable snapshot taken before a promotion
// mutates anything. It is the only durable record of the student's state at
// the pre-promotion level.
type PromotionArchive struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	StudentID    uint           `gorm:"not null;index" json:"student_id"`
	AssignmentID uint           `gorm:"not null;index" json:"assignment_id"`
	SchoolYearID uint           `gorm:"not null;index" json:"school_year_id"`
	Level        string         `gorm:"size:16;not null" json:"level"`
	Snapshot     datatypes.JSON `gorm:"type:json;not null" json:"snapshot"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PromotionSnapshot is the payload serialized into a PromotionArchive row.
type PromotionSnapshot struct {
	Student     Student             `json:"student"`
	Enrollment  *Enrollment         `json:"enrollment,omitempty"`
	Assignment  CarnetAssignment    `json:"assignment"`
	Completions []TeacherCompletion `json:"completions"`
	TakenAt     time.Time           `json:"taken_at"`
}
