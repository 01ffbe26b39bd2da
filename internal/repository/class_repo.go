package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// ClassRepository defines persistence operations for classes, teacher links
// and staff scoping data.
type ClassRepository interface {
	GetByID(ctx context.Context, id uint) (models.ClassGroup, error)
	LinksForClass(ctx context.Context, classID uint) ([]models.TeacherClassLink, error)
	SupervisedTeacherIDs(ctx context.Context, supervisorID uint) ([]uint, error)
	LevelScopes(ctx context.Context, staffID uint) ([]string, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository instantiates a GORM-backed repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.ClassGroup, error) {
	var class models.ClassGroup
	if err := r.db.WithContext(ctx).First(&class, id).Error; err != nil {
		return models.ClassGroup{}, err
	}

	return class, nil
}

func (r *classRepository) LinksForClass(ctx context.Context, classID uint) ([]models.TeacherClassLink, error) {
	var links []models.TeacherClassLink
	if err := r.db.WithContext(ctx).Where("class_id = ?", classID).Find(&links).Error; err != nil {
		return nil, err
	}

	return links, nil
}

func (r *classRepository) SupervisedTeacherIDs(ctx context.Context, supervisorID uint) ([]uint, error) {
	var teacherIDs []uint
	err := r.db.WithContext(ctx).
		Model(&models.StaffSupervision{}).
		Where("supervisor_id = ?", supervisorID).
		Pluck("teacher_id", &teacherIDs).Error
	if err != nil {
		return nil, err
	}

	return teacherIDs, nil
}

func (r *classRepository) LevelScopes(ctx context.Context, staffID uint) ([]string, error) {
	var levels []string
	err := r.db.WithContext(ctx).
		Model(&models.LevelScope{}).
		Where("staff_id = ?", staffID).
		Pluck("level", &levels).Error
	if err != nil {
		return nil, err
	}

	return levels, nil
}
