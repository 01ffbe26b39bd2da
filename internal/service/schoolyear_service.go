package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
)

// ErrNoNextSchoolYear indicates the successor school year could not be
// resolved from the ledger or the year name.
var ErrNoNextSchoolYear = errors.New("next school year cannot be resolved")

// SchoolYearService is the ledger of academic years plus the read-side
// window resolver that keeps signatures scoped to the current cycle. A level
// name recurs every year, so a stale signature from a prior cycle must never
// surface as already signed.
type SchoolYearService struct {
	repo   repository.SchoolYearRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewSchoolYearService constructs the school year service.
func NewSchoolYearService(repo repository.SchoolYearRepository, logger zerolog.Logger) *SchoolYearService {
	return &SchoolYearService{
		repo:   repo,
		logger: logger.With().Str("component", "schoolyear_service").Logger(),
		now:    time.Now,
	}
}

// ActiveYear returns the single active school year.
func (s *SchoolYearService) ActiveYear(ctx context.Context) (models.SchoolYear, error) {
	return s.repo.Active(ctx)
}

// NextYear resolves the school year following the given one: by sequence
// first, then by incrementing the numeric range in the year name.
func (s *SchoolYearService) NextYear(ctx context.Context, current models.SchoolYear) (models.SchoolYear, error) {
	if current.Sequence > 0 {
		next, err := s.repo.BySequence(ctx, current.Sequence+1)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SchoolYear{}, err
		}
	}

	nextName, ok := NextYearName(current.Name)
	if !ok {
		return models.SchoolYear{}, ErrNoNextSchoolYear
	}

	next, err := s.repo.ByName(ctx, nextName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SchoolYear{}, ErrNoNextSchoolYear
		}
		return models.SchoolYear{}, err
	}

	return next, nil
}

// VisibilityWindow computes the (threshold, upperBound) pair bounding the
// signatures that belong to the active cycle. The threshold is the end of the
// preceding year (active start when none exists); a future threshold is a
// data anomaly and falls back to one year before now. The upper bound stays
// open while the year is nominally ended but the cycle is still running.
func (s *SchoolYearService) VisibilityWindow(ctx context.Context, active models.SchoolYear) (time.Time, time.Time, error) {
	now := s.now()

	threshold := active.StartDate
	preceding, err := s.repo.PrecedingByEndDate(ctx, active.EndDate)
	switch {
	case err == nil:
		threshold = preceding.EndDate
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return time.Time{}, time.Time{}, err
	}

	if threshold.After(now) {
		s.logger.Warn().Time("threshold", threshold).Msg("visibility threshold in the future, falling back to one year before now")
		threshold = now.AddDate(-1, 0, 0)
	}

	upper := active.EndDate
	if now.After(upper) {
		upper = now
	}

	return threshold, upper, nil
}

// VisibleSignatures filters ledger entries down to the ones belonging to the
// student's current cycle and level. A signature predating the student's
// promotion into their current level is from a previous pass through that
// level and stays hidden.
func (s *SchoolYearService) VisibleSignatures(signatures []models.Signature, student models.Student, threshold, upper time.Time) []models.Signature {
	promotionIn := student.PromotionInto(student.Level)

	visible := make([]models.Signature, 0, len(signatures))
	for _, signature := range signatures {
		if !signature.SignedAt.After(threshold) || signature.SignedAt.After(upper) {
			continue
		}
		if signature.Level != "" && !strings.EqualFold(signature.Level, student.Level) {
			continue
		}
		if promotionIn != nil && signature.SignedAt.Before(promotionIn.Date) {
			continue
		}
		visible = append(visible, signature)
	}
	return visible
}

// NominalYearLabel returns the display label of the school year a signature
// belongs to. An end-of-year signature conceptually closes the cycle, so it
// is labeled with the following year.
func (s *SchoolYearService) NominalYearLabel(ctx context.Context, signature models.Signature) (string, error) {
	year, err := s.repo.ContainingDate(ctx, signature.SignedAt)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	if signature.Type != models.SignatureTypeEndOfYear {
		return year.Name, nil
	}

	next, err := s.NextYear(ctx, year)
	if err != nil {
		if errors.Is(err, ErrNoNextSchoolYear) {
			if name, ok := NextYearName(year.Name); ok {
				return name, nil
			}
			return year.Name, nil
		}
		return "", err
	}

	return next.Name, nil
}

// NextYearName increments both ends of a "2024-2025" style year name.
func NextYearName(name string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(name), "-")
	if len(parts) != 2 {
		return "", false
	}

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", false
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", false
	}

	return fmt.Sprintf("%d-%d", start+1, end+1), true
}
