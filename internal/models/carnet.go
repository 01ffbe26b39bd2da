package models

import (
	"time"

	"gorm.io/datatypes"
)

// CarnetStatus tracks the assignment through its lifecycle.
type CarnetStatus string

// Lifecycle states of a carnet assignment.
const (
	CarnetStatusDraft      CarnetStatus = "draft"
	CarnetStatusInProgress CarnetStatus = "in_progress"
	CarnetStatusCompleted  CarnetStatus = "completed"
	CarnetStatusSigned     CarnetStatus = "signed"
)

// ReviewReady reports whether the status alone satisfies signature gating.
func (s CarnetStatus) ReviewReady() bool {
	return s == CarnetStatusCompleted || s == CarnetStatusSigned
}

// PromotionNote is the denormalized promotion trace kept on the assignment.
type PromotionNote struct {
	SchoolYearID   uint      `json:"school_year_id"`
	FromLevel      string    `json:"from_level"`
	ToLevel        string    `json:"to_level"`
	PromotedByID   uint      `json:"promoted_by_id"`
	Remark         string    `json:"remark,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Date           time.Time `json:"date"`
}

// CarnetAuxiliary is the typed flexible payload carried by an assignment:
// per-block content overrides and the denormalized promotion history.
type CarnetAuxiliary struct {
	BlockOverrides   map[string]string `json:"block_overrides,omitempty"`
	PromotionHistory []PromotionNote   `json:"promotion_history,omitempty"`
}

// CarnetAssignment binds one template to one student and carries the
// completion and signature workflow state.
type CarnetAssignment struct {
	ID                 uint                                `gorm:"primaryKey" json:"id"`
	TemplateID         uint                                `gorm:"not null;index" json:"template_id"`
	TemplateVersion    int                                 `gorm:"not null;default:1" json:"template_version"`
	StudentID          uint                                `gorm:"not null;index" json:"student_id"`
	ClassID            *uint                               `gorm:"index" json:"class_id,omitempty"`
	Status             CarnetStatus                        `gorm:"size:16;not null;default:draft" json:"status"`
	AssignedTeacherIDs datatypes.JSONSlice[uint]           `json:"assigned_teacher_ids"`
	Auxiliary          datatypes.JSONType[CarnetAuxiliary] `json:"auxiliary"`
	Completions        []TeacherCompletion                 `gorm:"foreignKey:AssignmentID" json:"completions,omitempty"`
	CreatedAt          time.Time                           `json:"created_at"`
	UpdatedAt          time.Time                           `json:"updated_at"`
}

// TeacherCompletion records a teacher's per-semester declaration that their
// portion of the carnet is ready for review. CompletedLegacy predates the
// two-semester split and is only ever read, never written.
type TeacherCompletion struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AssignmentID    uint      `gorm:"not null;uniqueIndex:idx_completion_assignment_teacher" json:"assignment_id"`
	TeacherID       uint      `gorm:"not null;uniqueIndex:idx_completion_assignment_teacher" json:"teacher_id"`
	CompletedSem1   bool      `gorm:"not null;default:false" json:"completed_sem1"`
	CompletedSem2   bool      `gorm:"not null;default:false" json:"completed_sem2"`
	CompletedLegacy bool      `gorm:"not null;default:false" json:"completed_legacy"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DoneForSemester reports completion for the given semester, treating the
// legacy single flag as semester-1 equivalent.
func (c TeacherCompletion) DoneForSemester(semester int) bool {
	if semester == 2 {
		return c.CompletedSem2
	}
	return c.CompletedSem1 || c.CompletedLegacy
}
