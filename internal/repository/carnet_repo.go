package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// CarnetRepository defines persistence operations for carnet assignments and
// their teacher completions.
type CarnetRepository interface {
	GetByID(ctx context.Context, id uint) (models.CarnetAssignment, error)
	Update(ctx context.Context, assignment *models.CarnetAssignment) error
	UpsertCompletion(ctx context.Context, completion *models.TeacherCompletion) error
	CompletionsForAssignment(ctx context.Context, assignmentID uint) ([]models.TeacherCompletion, error)
}

type carnetRepository struct {
	db *gorm.DB
}

// NewCarnetRepository instantiates a GORM-backed repository.
func NewCarnetRepository(db *gorm.DB) CarnetRepository {
	return &carnetRepository{db: db}
}

func (r *carnetRepository) GetByID(ctx context.Context, id uint) (models.CarnetAssignment, error) {
	var assignment models.CarnetAssignment
	if err := r.db.WithContext(ctx).Preload("Completions").First(&assignment, id).Error; err != nil {
		return models.CarnetAssignment{}, err
	}

	return assignment, nil
}

func (r *carnetRepository) Update(ctx context.Context, assignment *models.CarnetAssignment) error {
	return r.db.WithContext(ctx).Omit("Completions").Save(assignment).Error
}

// UpsertCompletion writes the semester flags for one (assignment, teacher)
// pair. The legacy flag is deliberately excluded from the update set: it is a
// read-only compatibility input.
func (r *carnetRepository) UpsertCompletion(ctx context.Context, completion *models.TeacherCompletion) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "teacher_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed_sem1", "completed_sem2", "updated_at"}),
	}).Create(completion).Error
}

func (r *carnetRepository) CompletionsForAssignment(ctx context.Context, assignmentID uint) ([]models.TeacherCompletion, error) {
	var completions []models.TeacherCompletion
	if err := r.db.WithContext(ctx).Where("assignment_id = ?", assignmentID).Find(&completions).Error; err != nil {
		return nil, err
	}

	return completions, nil
}
