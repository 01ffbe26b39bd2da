package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
)

// Sentinel errors surfaced by the promotion engine.
var (
	ErrAlreadyPromoted          = errors.New("student is already promoted for the current school year")
	ErrNotSignedByReviewer      = errors.New("carnet has no visible end-of-year signature")
	ErrCannotDetermineNextLevel = errors.New("next level cannot be determined")
)

// PromotionRequest carries the inputs of one promote call.
type PromotionRequest struct {
	ActorID            uint
	RequestedNextLevel string
	Remark             string
	IdempotencyKey     string
}

// PromotionResult is the post-promotion state returned to the caller.
type PromotionResult struct {
	Student    models.Student
	Assignment models.CarnetAssignment
	Record     models.PromotionRecord
	// Replayed is true when the same idempotency key already promoted the
	// student this year and no new mutation happened.
	Replayed bool
}

// PromotionEngine performs the exactly-once advancement of a student to the
// next level and school year, snapshotting state before mutating it.
type PromotionEngine struct {
	db          *gorm.DB
	ladder      LevelLadder
	schoolYears *SchoolYearService
	signatures  *SignatureLedger
	scoper      *AuthorizationScoper
	logger      zerolog.Logger
	now         func() time.Time
}

// NewPromotionEngine constructs the engine.
func NewPromotionEngine(db *gorm.DB, ladder LevelLadder, schoolYears *SchoolYearService, signatures *SignatureLedger, scoper *AuthorizationScoper, logger zerolog.Logger) *PromotionEngine {
	return &PromotionEngine{
		db:          db,
		ladder:      ladder,
		schoolYears: schoolYears,
		signatures:  signatures,
		scoper:      scoper,
		logger:      logger.With().Str("component", "promotion_engine").Logger(),
		now:         time.Now,
	}
}

// Promote advances the student of the given carnet. It requires a visible
// end-of-year signature, re-checks authorization, resolves the next level and
// year, then archives and mutates atomically. The promotion record's unique
// constraint makes the operation exactly-once per (student, school year).
func (e *PromotionEngine) Promote(ctx context.Context, assignment models.CarnetAssignment, student models.Student, req PromotionRequest) (PromotionResult, error) {
	active, err := e.schoolYears.ActiveYear(ctx)
	if err != nil {
		return PromotionResult{}, fmt.Errorf("failed to resolve active school year: %w", err)
	}

	if err := e.requireVisibleFinalSignature(ctx, assignment, student, active); err != nil {
		return PromotionResult{}, err
	}

	class, err := e.scoper.ResolveClassContext(ctx, assignment, student)
	if err != nil {
		return PromotionResult{}, err
	}
	if err := e.scoper.Authorize(ctx, req.ActorID, assignment, student, class); err != nil {
		return PromotionResult{}, err
	}

	promotions := repository.NewPromotionRepository(e.db)
	exists, err := promotions.ExistsForYear(ctx, student.ID, active.ID)
	if err != nil {
		return PromotionResult{}, err
	}
	if exists {
		if replay, ok := e.replayForKey(assignment, active.ID, req.IdempotencyKey); ok {
			return PromotionResult{Student: student, Assignment: assignment, Record: replay, Replayed: true}, nil
		}
		return PromotionResult{}, ErrAlreadyPromoted
	}

	currentLevel := class.Level
	if currentLevel == "" {
		currentLevel = student.Level
	}

	nextLevel, ok := e.ladder.Successor(currentLevel)
	if !ok {
		nextLevel = req.RequestedNextLevel
	}
	if nextLevel == "" {
		return PromotionResult{}, ErrCannotDetermineNextLevel
	}

	nextYear, err := e.schoolYears.NextYear(ctx, active)
	if err != nil {
		return PromotionResult{}, err
	}

	var result PromotionResult
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txPromotions := repository.NewPromotionRepository(tx)
		txEnrollments := repository.NewEnrollmentRepository(tx)
		txStudents := repository.NewStudentRepository(tx)
		txCarnets := repository.NewCarnetRepository(tx)

		enrollment, err := txEnrollments.ActiveForStudent(ctx, student.ID)
		priorEnrollment := &enrollment
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			priorEnrollment = nil
		}

		// Snapshot before any mutation; the archive is the only durable
		// record of the student's state at this level.
		snapshot := models.PromotionSnapshot{
			Student:     student,
			Enrollment:  priorEnrollment,
			Assignment:  assignment,
			Completions: assignment.Completions,
			TakenAt:     e.now(),
		}
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("failed to serialize promotion snapshot: %w", err)
		}
		archive := models.PromotionArchive{
			StudentID:    student.ID,
			AssignmentID: assignment.ID,
			SchoolYearID: active.ID,
			Level:        currentLevel,
			Snapshot:     payload,
		}
		if err := txPromotions.CreateArchive(ctx, &archive); err != nil {
			return err
		}

		record := models.PromotionRecord{
			StudentID:    student.ID,
			SchoolYearID: active.ID,
			Date:         e.now(),
			FromLevel:    currentLevel,
			ToLevel:      nextLevel,
			PromotedByID: req.ActorID,
		}
		if err := txPromotions.CreateRecordIfAbsent(ctx, &record); err != nil {
			if errors.Is(err, repository.ErrPromotionExists) {
				return ErrAlreadyPromoted
			}
			return err
		}

		if priorEnrollment != nil {
			priorEnrollment.Status = models.EnrollmentStatusPromoted
			if err := txEnrollments.Update(ctx, priorEnrollment); err != nil {
				return err
			}
		}
		nextEnrollment := models.Enrollment{
			StudentID:    student.ID,
			SchoolYearID: nextYear.ID,
			Status:       models.EnrollmentStatusActive,
		}
		if err := txEnrollments.Create(ctx, &nextEnrollment); err != nil {
			return err
		}

		// The actual level flip happens in the later class-assignment step;
		// only the pending field is staged here.
		student.PendingLevel = nextLevel
		student.Promotions = append(student.Promotions, record)
		if err := txStudents.Update(ctx, &student); err != nil {
			return err
		}

		auxiliary := assignment.Auxiliary.Data()
		auxiliary.PromotionHistory = append(auxiliary.PromotionHistory, models.PromotionNote{
			SchoolYearID:   active.ID,
			FromLevel:      currentLevel,
			ToLevel:        nextLevel,
			PromotedByID:   req.ActorID,
			Remark:         req.Remark,
			IdempotencyKey: req.IdempotencyKey,
			Date:           record.Date,
		})
		assignment.Auxiliary = datatypes.NewJSONType(auxiliary)
		if err := txCarnets.Update(ctx, &assignment); err != nil {
			return err
		}

		result = PromotionResult{Student: student, Assignment: assignment, Record: record}
		return nil
	})
	if err != nil {
		return PromotionResult{}, err
	}

	e.logger.Info().
		Uint("student_id", student.ID).
		Uint("assignment_id", assignment.ID).
		Str("from_level", currentLevel).
		Str("to_level", nextLevel).
		Uint("actor_id", req.ActorID).
		Msg("student promoted")

	return result, nil
}

func (e *PromotionEngine) requireVisibleFinalSignature(ctx context.Context, assignment models.CarnetAssignment, student models.Student, active models.SchoolYear) error {
	signatures, err := e.signatures.ListForAssignment(ctx, assignment.ID)
	if err != nil {
		return err
	}

	threshold, upper, err := e.schoolYears.VisibilityWindow(ctx, active)
	if err != nil {
		return err
	}

	for _, signature := range e.schoolYears.VisibleSignatures(signatures, student, threshold, upper) {
		if signature.Type == models.SignatureTypeEndOfYear {
			return nil
		}
	}

	return ErrNotSignedByReviewer
}

func (e *PromotionEngine) replayForKey(assignment models.CarnetAssignment, schoolYearID uint, key string) (models.PromotionRecord, bool) {
	if key == "" {
		return models.PromotionRecord{}, false
	}

	for _, note := range assignment.Auxiliary.Data().PromotionHistory {
		if note.SchoolYearID == schoolYearID && note.IdempotencyKey == key {
			return models.PromotionRecord{
				StudentID:    assignment.StudentID,
				SchoolYearID: note.SchoolYearID,
				Date:         note.Date,
				FromLevel:    note.FromLevel,
				ToLevel:      note.ToLevel,
				PromotedByID: note.PromotedByID,
			}, true
		}
	}

	return models.PromotionRecord{}, false
}
