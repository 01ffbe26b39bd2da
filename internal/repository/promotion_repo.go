package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// ErrPromotionExists indicates a promotion record already exists for the
// (student, school year) pair.
var ErrPromotionExists = errors.New("promotion record already exists")

// PromotionRepository defines persistence operations for promotion records
// and their pre-mutation archives.
type PromotionRepository interface {
	// CreateRecordIfAbsent appends the promotion record unless one already
	// exists for the same (student, school year). This is the exactly-once
	// guard for the promotion operation.
	CreateRecordIfAbsent(ctx context.Context, record *models.PromotionRecord) error
	ExistsForYear(ctx context.Context, studentID, schoolYearID uint) (bool, error)
	CreateArchive(ctx context.Context, archive *models.PromotionArchive) error
	ListArchives(ctx context.Context, studentID uint) ([]models.PromotionArchive, error)
}

type promotionRepository struct {
	db *gorm.DB
}

// NewPromotionRepository instantiates a GORM-backed repository.
func NewPromotionRepository(db *gorm.DB) PromotionRepository {
	return &promotionRepository{db: db}
}

func (r *promotionRepository) CreateRecordIfAbsent(ctx context.Context, record *models.PromotionRecord) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "school_year_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPromotionExists
	}
	return nil
}

func (r *promotionRepository) ExistsForYear(ctx context.Context, studentID, schoolYearID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PromotionRecord{}).
		Where("student_id = ? AND school_year_id = ?", studentID, schoolYearID).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *promotionRepository) CreateArchive(ctx context.Context, archive *models.PromotionArchive) error {
	return r.db.WithContext(ctx).Create(archive).Error
}

func (r *promotionRepository) ListArchives(ctx context.Context, studentID uint) ([]models.PromotionArchive, error) {
	var archives []models.PromotionArchive
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&archives).Error
	if err != nil {
		return nil, err
	}

	return archives, nil
}
