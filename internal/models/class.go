package models

import (
	"time"

	"gorm.io/datatypes"
)

// ClassGroup represents one class at a level within a school year.
type ClassGroup struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:64;not null" json:"name"`
	Level        string    `gorm:"size:16;not null;index" json:"level"`
	SchoolYearID uint      `gorm:"not null;index" json:"school_year_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TeacherClassLink binds a teacher to a class with the languages they cover.
// A generalist link covers the polyvalent bucket.
type TeacherClassLink struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	TeacherID    uint                        `gorm:"not null;index" json:"teacher_id"`
	ClassID      uint                        `gorm:"not null;index" json:"class_id"`
	SchoolYearID uint                        `gorm:"not null;index" json:"school_year_id"`
	Languages    datatypes.JSONSlice[string] `json:"languages"`
	IsGeneralist bool                        `gorm:"not null;default:false" json:"is_generalist"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// StaffSupervision declares that a supervisor (sub-administrator) oversees a
// teacher's work.
type StaffSupervision struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SupervisorID uint      `gorm:"not null;index:idx_supervision_pair" json:"supervisor_id"`
	TeacherID    uint      `gorm:"not null;index:idx_supervision_pair" json:"teacher_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// LevelScope grants a staff member declared authority over every class of a level.
type LevelScope struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StaffID   uint      `gorm:"not null;index" json:"staff_id"`
	Level     string    `gorm:"size:16;not null" json:"level"`
	CreatedAt time.Time `json:"created_at"`
}
