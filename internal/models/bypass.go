package models

import "time"

// BypassScopeType narrows where a gating override applies.
type BypassScopeType string

// Supported bypass scope types.
const (
	BypassScopeAll     BypassScopeType = "ALL"
	BypassScopeLevel   BypassScopeType = "LEVEL"
	BypassScopeClass   BypassScopeType = "CLASS"
	BypassScopeStudent BypassScopeType = "STUDENT"
)

// BypassScope exempts its subject from completion gating on matching
// assignments.
type BypassScope struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SubjectID uint            `gorm:"not null;index" json:"subject_id"`
	Type      BypassScopeType `gorm:"size:16;not null" json:"type"`
	Value     string          `gorm:"size:64" json:"value"`
	CreatedAt time.Time       `json:"created_at"`
}
