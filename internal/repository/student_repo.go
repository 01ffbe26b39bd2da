package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// StudentRepository defines persistence operations for students and their
// promotion records.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	Update(ctx context.Context, student *models.Student) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository instantiates a GORM-backed repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Preload("Promotions").First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) Update(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Omit("Promotions").Save(student).Error
}
