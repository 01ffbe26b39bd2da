package models

import "time"

// Student represents a pupil whose carnet progresses through the lifecycle.
type Student struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	FirstName string `gorm:"size:255;not null" json:"first_name"`
	LastName  string `gorm:"size:255;not null" json:"last_name"`
	// Level is the rung the student currently occupies. PendingLevel is staged
	// by a promotion and finalized by the later class-assignment step.
	Level        string            `gorm:"size:16;not null;index" json:"level"`
	PendingLevel string            `gorm:"size:16" json:"pending_level,omitempty"`
	Promotions   []PromotionRecord `gorm:"foreignKey:StudentID" json:"promotions,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// PromotionRecord is the durable trace of one level advancement. At most one
// record exists per (student, school year).
type PromotionRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_promotion_student_year" json:"student_id"`
	SchoolYearID uint      `gorm:"not null;uniqueIndex:idx_promotion_student_year" json:"school_year_id"`
	Date         time.Time `gorm:"not null" json:"date"`
	FromLevel    string    `gorm:"size:16;not null" json:"from_level"`
	ToLevel      string    `gorm:"size:16;not null" json:"to_level"`
	PromotedByID uint      `gorm:"not null" json:"promoted_by_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// LatestPromotion returns the most recent promotion record by date, or nil.
func (s Student) LatestPromotion() *PromotionRecord {
	var latest *PromotionRecord
	for i := range s.Promotions {
		record := &s.Promotions[i]
		if latest == nil || record.Date.After(latest.Date) {
			latest = record
		}
	}
	return latest
}

// PromotionInto returns the most recent promotion that moved the student into
// the given level, or nil when none exists.
func (s Student) PromotionInto(level string) *PromotionRecord {
	var match *PromotionRecord
	for i := range s.Promotions {
		record := &s.Promotions[i]
		if record.ToLevel != level {
			continue
		}
		if match == nil || record.Date.After(match.Date) {
			match = record
		}
	}
	return match
}
