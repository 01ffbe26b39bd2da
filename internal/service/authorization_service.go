package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
)

// ErrNotAuthorized indicates the actor holds no scope over the carnet.
var ErrNotAuthorized = errors.New("actor is not authorized for this carnet")

// GatingPolicy carries the signature restriction toggles. It is injected
// explicitly rather than read from ambient settings.
type GatingPolicy struct {
	// RestrictSignatures gates signing on category completion. When false,
	// completion gating is skipped for everyone.
	RestrictSignatures bool
	// ExemptStandard and ExemptEndOfYear disable gating for one signature
	// type only.
	ExemptStandard  bool
	ExemptEndOfYear bool
}

// ClassContext is the resolved class/level a carnet belongs to. ClassID may
// be nil when only the level could be determined.
type ClassContext struct {
	ClassID *uint
	Level   string
}

// AuthorizationScoper decides whether an actor may act on a carnet, via
// supervision links, level scopes or promotion authorship, and whether the
// actor's bypass scopes exempt them from completion gating.
type AuthorizationScoper struct {
	classes     repository.ClassRepository
	enrollments repository.EnrollmentRepository
	bypasses    repository.BypassRepository
	logger      zerolog.Logger
}

// NewAuthorizationScoper constructs the scoper.
func NewAuthorizationScoper(classes repository.ClassRepository, enrollments repository.EnrollmentRepository, bypasses repository.BypassRepository, logger zerolog.Logger) *AuthorizationScoper {
	return &AuthorizationScoper{
		classes:     classes,
		enrollments: enrollments,
		bypasses:    bypasses,
		logger:      logger.With().Str("component", "authorization_scoper").Logger(),
	}
}

// Authorize grants access when any of the following holds: the actor is
// directly linked to the carnet as a teacher, supervises an assigned teacher,
// supervises a teacher of one of the student's classes, holds a level scope
// over the carnet's level, or authored the student's most recent promotion.
func (s *AuthorizationScoper) Authorize(ctx context.Context, actorID uint, assignment models.CarnetAssignment, student models.Student, class ClassContext) error {
	if s.directlyLinked(ctx, actorID, assignment, class) {
		return nil
	}

	supervised, err := s.classes.SupervisedTeacherIDs(ctx, actorID)
	if err != nil {
		return err
	}
	supervisedSet := make(map[uint]bool, len(supervised))
	for _, teacherID := range supervised {
		supervisedSet[teacherID] = true
	}

	for _, teacherID := range assignment.AssignedTeacherIDs {
		if supervisedSet[teacherID] {
			return nil
		}
	}

	if len(supervisedSet) > 0 {
		ok, err := s.supervisesEnrollmentTeacher(ctx, student.ID, supervisedSet)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	if class.Level != "" {
		levels, err := s.classes.LevelScopes(ctx, actorID)
		if err != nil {
			return err
		}
		for _, level := range levels {
			if strings.EqualFold(level, class.Level) {
				return nil
			}
		}
	}

	if latest := student.LatestPromotion(); latest != nil && latest.PromotedByID == actorID {
		return nil
	}

	s.logger.Debug().Uint("actor_id", actorID).Uint("assignment_id", assignment.ID).Msg("authorization rejected")

	return ErrNotAuthorized
}

// GatingBypassed reports whether the actor may skip the completion
// requirement for the given signature type. It applies only to sign and
// promote, never to read access.
func (s *AuthorizationScoper) GatingBypassed(ctx context.Context, actorID uint, student models.Student, class ClassContext, policy GatingPolicy, sigType models.SignatureType) (bool, error) {
	if !policy.RestrictSignatures {
		return true, nil
	}
	if sigType == models.SignatureTypeStandard && policy.ExemptStandard {
		return true, nil
	}
	if sigType == models.SignatureTypeEndOfYear && policy.ExemptEndOfYear {
		return true, nil
	}

	scopes, err := s.bypasses.ListForSubject(ctx, actorID)
	if err != nil {
		return false, err
	}

	for _, scope := range scopes {
		switch scope.Type {
		case models.BypassScopeAll:
			return true, nil
		case models.BypassScopeLevel:
			if class.Level != "" && strings.EqualFold(scope.Value, class.Level) {
				return true, nil
			}
		case models.BypassScopeClass:
			if class.ClassID != nil && scope.Value == strconv.FormatUint(uint64(*class.ClassID), 10) {
				return true, nil
			}
		case models.BypassScopeStudent:
			if scope.Value == strconv.FormatUint(uint64(student.ID), 10) {
				return true, nil
			}
		}
	}

	return false, nil
}

// ResolveClassContext tries an ordered list of strategies to find the class
// and level the carnet belongs to, stopping at the first hit: the carnet's
// own class, the student's active enrollment, the most recent promoted
// enrollment, and finally the student's bare level.
func (s *AuthorizationScoper) ResolveClassContext(ctx context.Context, assignment models.CarnetAssignment, student models.Student) (ClassContext, error) {
	if assignment.ClassID != nil {
		class, err := s.classes.GetByID(ctx, *assignment.ClassID)
		if err == nil {
			return ClassContext{ClassID: assignment.ClassID, Level: class.Level}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return ClassContext{}, err
		}
	}

	enrollments, err := s.enrollments.ListForStudent(ctx, student.ID)
	if err != nil {
		return ClassContext{}, err
	}

	for _, status := range []models.EnrollmentStatus{models.EnrollmentStatusActive, models.EnrollmentStatusPromoted} {
		for _, enrollment := range enrollments {
			if enrollment.Status != status || enrollment.ClassID == nil {
				continue
			}
			class, err := s.classes.GetByID(ctx, *enrollment.ClassID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return ClassContext{}, err
			}
			return ClassContext{ClassID: enrollment.ClassID, Level: class.Level}, nil
		}
	}

	return ClassContext{Level: student.Level}, nil
}

// directlyLinked reports whether the actor teaches this carnet, either as a
// directly assigned teacher or through a class link.
func (s *AuthorizationScoper) directlyLinked(ctx context.Context, actorID uint, assignment models.CarnetAssignment, class ClassContext) bool {
	for _, teacherID := range assignment.AssignedTeacherIDs {
		if teacherID == actorID {
			return true
		}
	}

	if class.ClassID != nil {
		links, err := s.classes.LinksForClass(ctx, *class.ClassID)
		if err == nil {
			for _, link := range links {
				if link.TeacherID == actorID {
					return true
				}
			}
		}
	}

	return false
}

func (s *AuthorizationScoper) supervisesEnrollmentTeacher(ctx context.Context, studentID uint, supervisedSet map[uint]bool) (bool, error) {
	enrollments, err := s.enrollments.ListForStudent(ctx, studentID)
	if err != nil {
		return false, err
	}

	for _, enrollment := range enrollments {
		if enrollment.ClassID == nil {
			continue
		}
		links, err := s.classes.LinksForClass(ctx, *enrollment.ClassID)
		if err != nil {
			return false, err
		}
		for _, link := range links {
			if supervisedSet[link.TeacherID] {
				return true, nil
			}
		}
	}

	return false, nil
}
