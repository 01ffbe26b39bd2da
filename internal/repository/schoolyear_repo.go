package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// SchoolYearRepository defines persistence operations for school years.
type SchoolYearRepository interface {
	Active(ctx context.Context) (models.SchoolYear, error)
	GetByID(ctx context.Context, id uint) (models.SchoolYear, error)
	BySequence(ctx context.Context, sequence int) (models.SchoolYear, error)
	ByName(ctx context.Context, name string) (models.SchoolYear, error)
	PrecedingByEndDate(ctx context.Context, endBefore time.Time) (models.SchoolYear, error)
	ContainingDate(ctx context.Context, instant time.Time) (models.SchoolYear, error)
}

type schoolYearRepository struct {
	db *gorm.DB
}

// NewSchoolYearRepository instantiates a GORM-backed repository.
func NewSchoolYearRepository(db *gorm.DB) SchoolYearRepository {
	return &schoolYearRepository{db: db}
}

func (r *schoolYearRepository) Active(ctx context.Context) (models.SchoolYear, error) {
	var year models.SchoolYear
	if err := r.db.WithContext(ctx).Where("active = ?", true).First(&year).Error; err != nil {
		return models.SchoolYear{}, err
	}

	return year, nil
}

func (r *schoolYearRepository) GetByID(ctx context.Context, id uint) (models.SchoolYear, error) {
	var year models.SchoolYear
	if err := r.db.WithContext(ctx).First(&year, id).Error; err != nil {
		return models.SchoolYear{}, err
	}

	return year, nil
}

func (r *schoolYearRepository) BySequence(ctx context.Context, sequence int) (models.SchoolYear, error) {
	var year models.SchoolYear
	if err := r.db.WithContext(ctx).Where("sequence = ?", sequence).First(&year).Error; err != nil {
		return models.SchoolYear{}, err
	}

	return year, nil
}

func (r *schoolYearRepository) ByName(ctx context.Context, name string) (models.SchoolYear, error) {
	var year models.SchoolYear
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&year).Error; err != nil {
		return models.SchoolYear{}, err
	}

	return year, nil
}

func (r *schoolYearRepository) PrecedingByEndDate(ctx context.Context, endBefore time.Time) (models.SchoolYear, error) {
	var year models.SchoolYear
	err := r.db.WithContext(ctx).
		Where("end_date < ?", endBefore).
		Order("end_date DESC").
		First(&year).Error
	if err != nil {
		return models.SchoolYear{}, err
	}

	return year, nil
}

func (r *schoolYearRepository) ContainingDate(ctx context.Context, instant time.Time) (models.SchoolYear, error) {
	var year models.SchoolYear
	err := r.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", instant, instant).
		Order("start_date DESC").
		First(&year).Error
	if err != nil {
		return models.SchoolYear{}, err
	}

	return year, nil
}
