package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amanar-edu/carnet-api/internal/models"
)

// ErrSignatureExists indicates the conditional insert found a live signature
// for the same (assignment, type, level) key.
var ErrSignatureExists = errors.New("signature already exists")

// SignatureRepository defines persistence operations for the signature ledger.
type SignatureRepository interface {
	// CreateIfAbsent inserts the signature unless one already exists for the
	// same (assignment, type, level). The conditional insert closes the race
	// between two concurrent sign calls.
	CreateIfAbsent(ctx context.Context, signature *models.Signature) error
	Delete(ctx context.Context, assignmentID uint, sigType models.SignatureType, level string) error
	ListForAssignment(ctx context.Context, assignmentID uint) ([]models.Signature, error)
}

type signatureRepository struct {
	db *gorm.DB
}

// NewSignatureRepository instantiates a GORM-backed repository.
func NewSignatureRepository(db *gorm.DB) SignatureRepository {
	return &signatureRepository{db: db}
}

func (r *signatureRepository) CreateIfAbsent(ctx context.Context, signature *models.Signature) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "type"}, {Name: "level"}},
		DoNothing: true,
	}).Create(signature)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSignatureExists
	}
	return nil
}

func (r *signatureRepository) Delete(ctx context.Context, assignmentID uint, sigType models.SignatureType, level string) error {
	result := r.db.WithContext(ctx).
		Where("assignment_id = ? AND type = ? AND level = ?", assignmentID, sigType, level).
		Delete(&models.Signature{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *signatureRepository) ListForAssignment(ctx context.Context, assignmentID uint) ([]models.Signature, error) {
	var signatures []models.Signature
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("signed_at ASC").
		Find(&signatures).Error
	if err != nil {
		return nil, err
	}

	return signatures, nil
}
