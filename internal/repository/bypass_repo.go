package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// BypassRepository defines persistence operations for gating bypass scopes.
type BypassRepository interface {
	ListForSubject(ctx context.Context, subjectID uint) ([]models.BypassScope, error)
}

type bypassRepository struct {
	db *gorm.DB
}

// NewBypassRepository instantiates a GORM-backed repository.
func NewBypassRepository(db *gorm.DB) BypassRepository {
	return &bypassRepository{db: db}
}

func (r *bypassRepository) ListForSubject(ctx context.Context, subjectID uint) ([]models.BypassScope, error) {
	var scopes []models.BypassScope
	if err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).Find(&scopes).Error; err != nil {
		return nil, err
	}

	return scopes, nil
}
