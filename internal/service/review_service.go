package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/dto"
	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/observability"
	"github.com/amanar-edu/carnet-api/internal/repository"
	"github.com/amanar-edu/carnet-api/pkg/templatestore"
)

// ErrCarnetNotFound indicates the requested carnet assignment does not exist.
var ErrCarnetNotFound = errors.New("carnet assignment not found")

// eventSubject is the bus subject carrying live data-patch echoes.
const eventSubject = "carnet.events"

// TemplateStore is the narrow read-only collaborator providing template
// content.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id uint, version int) (templatestore.Template, error)
}

// CarnetReviewService is the lifecycle façade: it scopes every call through
// the authorization scoper first, gates mutations through the eligibility
// evaluator, and delegates to the signature ledger or promotion engine.
type CarnetReviewService interface {
	GetReviewView(ctx context.Context, assignmentID, viewerID uint) (dto.ReviewViewResponse, error)
	SetTeacherCompletion(ctx context.Context, assignmentID, teacherID uint, payload dto.CompletionUpdateRequest) (dto.CarnetResponse, error)
	Sign(ctx context.Context, assignmentID, signerID uint, payload dto.SignRequest) (dto.SignatureResponse, error)
	Unsign(ctx context.Context, assignmentID, actorID uint, sigType models.SignatureType) error
	Promote(ctx context.Context, assignmentID, actorID uint, payload dto.PromoteRequest) (dto.PromoteResponse, error)
}

type carnetReviewService struct {
	carnets     repository.CarnetRepository
	students    repository.StudentRepository
	classes     repository.ClassRepository
	scoper      *AuthorizationScoper
	evaluator   EligibilityEvaluator
	schoolYears *SchoolYearService
	ledger      *SignatureLedger
	engine      *PromotionEngine
	templates   TemplateStore
	activity    ActivityService
	policy      GatingPolicy
	validator   *validator.Validate
	redis       *redis.Client
	cacheTTL    time.Duration
	nats        *nats.Conn
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// CarnetReviewDeps groups the façade dependencies.
type CarnetReviewDeps struct {
	Carnets     repository.CarnetRepository
	Students    repository.StudentRepository
	Classes     repository.ClassRepository
	Scoper      *AuthorizationScoper
	SchoolYears *SchoolYearService
	Ledger      *SignatureLedger
	Engine      *PromotionEngine
	Templates   TemplateStore
	Activity    ActivityService
	Policy      GatingPolicy
	Validator   *validator.Validate
	Redis       *redis.Client
	CacheTTL    time.Duration
	NATS        *nats.Conn
}

// NewCarnetReviewService builds the lifecycle façade.
func NewCarnetReviewService(deps CarnetReviewDeps, logger zerolog.Logger) CarnetReviewService {
	return &carnetReviewService{
		carnets:     deps.Carnets,
		students:    deps.Students,
		classes:     deps.Classes,
		scoper:      deps.Scoper,
		evaluator:   NewEligibilityEvaluator(),
		schoolYears: deps.SchoolYears,
		ledger:      deps.Ledger,
		engine:      deps.Engine,
		templates:   deps.Templates,
		activity:    deps.Activity,
		policy:      deps.Policy,
		validator:   deps.Validator,
		redis:       deps.Redis,
		cacheTTL:    deps.CacheTTL,
		nats:        deps.NATS,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "carnet_review_service").Logger(),
		tracer:      otel.Tracer("carnet.review"),
	}
}

func (s *carnetReviewService) GetReviewView(ctx context.Context, assignmentID, viewerID uint) (dto.ReviewViewResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "carnet.review_view", trace.WithAttributes(
		attribute.Int64("carnet.assignment_id", int64(assignmentID)),
		attribute.Int64("carnet.viewer_id", int64(viewerID)),
	))
	defer span.End()

	observability.ReviewRequestsTotal().Inc()

	if cached, ok := s.cachedView(spanCtx, assignmentID, viewerID); ok {
		observability.ReviewCacheHits().Inc()
		return cached, nil
	}

	assignment, student, err := s.loadCarnet(spanCtx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.ReviewViewResponse{}, err
	}

	class, err := s.scoper.ResolveClassContext(spanCtx, assignment, student)
	if err != nil {
		return dto.ReviewViewResponse{}, err
	}
	if err := s.scoper.Authorize(spanCtx, viewerID, assignment, student, class); err != nil {
		return dto.ReviewViewResponse{}, err
	}

	template, err := s.templates.GetTemplate(spanCtx, assignment.TemplateID, assignment.TemplateVersion)
	if err != nil {
		span.RecordError(err)
		return dto.ReviewViewResponse{}, fmt.Errorf("failed to fetch template: %w", err)
	}

	active, err := s.schoolYears.ActiveYear(spanCtx)
	if err != nil {
		return dto.ReviewViewResponse{}, fmt.Errorf("failed to resolve active school year: %w", err)
	}

	threshold, upper, err := s.schoolYears.VisibilityWindow(spanCtx, active)
	if err != nil {
		return dto.ReviewViewResponse{}, err
	}

	signatures, err := s.ledger.ListForAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.ReviewViewResponse{}, err
	}
	visible := s.schoolYears.VisibleSignatures(signatures, student, threshold, upper)

	links, err := s.linksForClass(spanCtx, class)
	if err != nil {
		return dto.ReviewViewResponse{}, err
	}

	level := class.Level
	if level == "" {
		level = student.Level
	}

	categories := s.evaluator.RequiredCategories(template, level)
	statuses := s.evaluator.CategoryStatuses(categories, links, assignment.AssignedTeacherIDs, assignment.Completions)

	response := dto.ReviewViewResponse{
		Assignment:          dto.NewCarnetResponse(assignment),
		Template:            dto.NewTemplateView(template, assignment.Auxiliary.Data().BlockOverrides),
		Student:             dto.NewStudentResponse(student),
		CanEdit:             s.scoper.directlyLinked(spanCtx, viewerID, assignment, class) && assignment.Status != models.CarnetStatusSigned,
		IsPromoted:          hasPromotionForYear(student, active.ID),
		ActiveSemester:      active.ActiveSemester,
		EligibleForStandard: s.evaluator.EligibleFor(assignment, statuses, models.SignatureTypeStandard),
		EligibleForFinal:    s.evaluator.EligibleFor(assignment, statuses, models.SignatureTypeEndOfYear),
		Categories:          categoryStatusViews(statuses),
	}

	for _, signature := range visible {
		if signature.SignerID == viewerID {
			response.IsSignedByViewer = true
		}

		label, err := s.schoolYears.NominalYearLabel(spanCtx, signature)
		if err != nil {
			return dto.ReviewViewResponse{}, err
		}
		view := dto.NewSignatureResponse(signature, label)

		switch signature.Type {
		case models.SignatureTypeStandard:
			if response.VisibleSignature == nil {
				response.VisibleSignature = &view
			}
		case models.SignatureTypeEndOfYear:
			if response.VisibleFinalSignature == nil {
				response.VisibleFinalSignature = &view
			}
		}
	}

	s.storeView(spanCtx, assignmentID, viewerID, response)

	return response, nil
}

func (s *carnetReviewService) SetTeacherCompletion(ctx context.Context, assignmentID, teacherID uint, payload dto.CompletionUpdateRequest) (dto.CarnetResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CarnetResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "carnet.set_completion", trace.WithAttributes(
		attribute.Int64("carnet.assignment_id", int64(assignmentID)),
		attribute.Int64("carnet.teacher_id", int64(teacherID)),
		attribute.Int("carnet.semester", payload.Semester),
	))
	defer span.End()

	assignment, student, err := s.loadCarnet(spanCtx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.CarnetResponse{}, err
	}

	class, err := s.scoper.ResolveClassContext(spanCtx, assignment, student)
	if err != nil {
		return dto.CarnetResponse{}, err
	}
	if !s.scoper.directlyLinked(spanCtx, teacherID, assignment, class) {
		return dto.CarnetResponse{}, ErrNotAuthorized
	}

	completion := models.TeacherCompletion{AssignmentID: assignmentID, TeacherID: teacherID}
	for _, existing := range assignment.Completions {
		if existing.TeacherID == teacherID {
			completion = existing
			break
		}
	}
	if payload.Semester == 2 {
		completion.CompletedSem2 = *payload.Done
	} else {
		completion.CompletedSem1 = *payload.Done
	}

	if err := s.carnets.UpsertCompletion(spanCtx, &completion); err != nil {
		return dto.CarnetResponse{}, err
	}

	completions, err := s.carnets.CompletionsForAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.CarnetResponse{}, err
	}
	assignment.Completions = completions

	if err := s.advanceStatus(spanCtx, &assignment, class, payload.Semester); err != nil {
		return dto.CarnetResponse{}, err
	}

	s.bumpCacheEpoch(spanCtx, assignmentID)
	s.echoEvent(spanCtx, "completion_updated", assignmentID, teacherID)
	s.recordActivity(spanCtx, teacherID, "teacher", "carnet.completion_updated", assignmentID, map[string]interface{}{
		"semester": payload.Semester,
		"done":     *payload.Done,
	})

	return dto.NewCarnetResponse(assignment), nil
}

func (s *carnetReviewService) Sign(ctx context.Context, assignmentID, signerID uint, payload dto.SignRequest) (dto.SignatureResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SignatureResponse{}, err
	}
	sigType := models.SignatureType(payload.Type)

	spanCtx, span := s.tracer.Start(ctx, "carnet.sign", trace.WithAttributes(
		attribute.Int64("carnet.assignment_id", int64(assignmentID)),
		attribute.Int64("carnet.signer_id", int64(signerID)),
		attribute.String("carnet.signature_type", payload.Type),
	))
	defer span.End()

	assignment, student, err := s.loadCarnet(spanCtx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SignatureResponse{}, err
	}

	class, err := s.scoper.ResolveClassContext(spanCtx, assignment, student)
	if err != nil {
		return dto.SignatureResponse{}, err
	}
	if err := s.scoper.Authorize(spanCtx, signerID, assignment, student, class); err != nil {
		return dto.SignatureResponse{}, err
	}

	active, err := s.schoolYears.ActiveYear(spanCtx)
	if err != nil {
		return dto.SignatureResponse{}, fmt.Errorf("failed to resolve active school year: %w", err)
	}

	gate := SignGate{ActiveSemester: active.ActiveSemester}
	gate.Bypassed, err = s.scoper.GatingBypassed(spanCtx, signerID, student, class, s.policy, sigType)
	if err != nil {
		return dto.SignatureResponse{}, err
	}
	if !gate.Bypassed {
		gate.Eligible, err = s.eligibleFor(spanCtx, assignment, class, student, sigType)
		if err != nil {
			return dto.SignatureResponse{}, err
		}
	}

	level := class.Level
	if level == "" {
		level = student.Level
	}

	signature, err := s.ledger.Sign(spanCtx, assignmentID, signerID, sigType, level, gate)
	if err != nil {
		span.RecordError(err)
		return dto.SignatureResponse{}, err
	}

	observability.SignaturesTotal().WithLabelValues(payload.Type).Inc()
	s.bumpCacheEpoch(spanCtx, assignmentID)
	s.echoEvent(spanCtx, "signed", assignmentID, signerID)
	s.recordActivity(spanCtx, signerID, "sub_admin", "carnet.signed", assignmentID, map[string]interface{}{
		"type":  payload.Type,
		"level": level,
	})

	label, err := s.schoolYears.NominalYearLabel(spanCtx, signature)
	if err != nil {
		label = ""
	}

	return dto.NewSignatureResponse(signature, label), nil
}

func (s *carnetReviewService) Unsign(ctx context.Context, assignmentID, actorID uint, sigType models.SignatureType) error {
	spanCtx, span := s.tracer.Start(ctx, "carnet.unsign", trace.WithAttributes(
		attribute.Int64("carnet.assignment_id", int64(assignmentID)),
		attribute.Int64("carnet.actor_id", int64(actorID)),
		attribute.String("carnet.signature_type", string(sigType)),
	))
	defer span.End()

	assignment, student, err := s.loadCarnet(spanCtx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	class, err := s.scoper.ResolveClassContext(spanCtx, assignment, student)
	if err != nil {
		return err
	}
	if err := s.scoper.Authorize(spanCtx, actorID, assignment, student, class); err != nil {
		return err
	}

	level := class.Level
	if level == "" {
		level = student.Level
	}

	// The original signer is recorded before deletion so the audit trail
	// keeps the self-service correction reviewable.
	var originalSigner uint
	if signatures, listErr := s.ledger.ListForAssignment(spanCtx, assignmentID); listErr == nil {
		for _, signature := range signatures {
			if signature.Type == sigType && signature.Level == level {
				originalSigner = signature.SignerID
			}
		}
	}

	if err := s.ledger.Unsign(spanCtx, assignmentID, sigType, level); err != nil {
		span.RecordError(err)
		return err
	}

	observability.UnsignsTotal().WithLabelValues(string(sigType)).Inc()
	s.bumpCacheEpoch(spanCtx, assignmentID)
	s.echoEvent(spanCtx, "unsigned", assignmentID, actorID)
	s.recordActivity(spanCtx, actorID, "sub_admin", "carnet.unsigned", assignmentID, map[string]interface{}{
		"type":            string(sigType),
		"level":           level,
		"original_signer": originalSigner,
	})

	return nil
}

func (s *carnetReviewService) Promote(ctx context.Context, assignmentID, actorID uint, payload dto.PromoteRequest) (dto.PromoteResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PromoteResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "carnet.promote", trace.WithAttributes(
		attribute.Int64("carnet.assignment_id", int64(assignmentID)),
		attribute.Int64("carnet.actor_id", int64(actorID)),
	))
	defer span.End()

	assignment, student, err := s.loadCarnet(spanCtx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.PromoteResponse{}, err
	}

	result, err := s.engine.Promote(spanCtx, assignment, student, PromotionRequest{
		ActorID:            actorID,
		RequestedNextLevel: payload.NextLevel,
		Remark:             s.sanitizer.Sanitize(payload.Remark),
		IdempotencyKey:     payload.IdempotencyKey,
	})
	if err != nil {
		span.RecordError(err)
		return dto.PromoteResponse{}, err
	}

	if !result.Replayed {
		observability.PromotionsTotal().Inc()
		s.bumpCacheEpoch(spanCtx, assignmentID)
		s.echoEvent(spanCtx, "promoted", assignmentID, actorID)
		s.recordActivity(spanCtx, actorID, "sub_admin", "carnet.promoted", assignmentID, map[string]interface{}{
			"student_id": student.ID,
			"from_level": result.Record.FromLevel,
			"to_level":   result.Record.ToLevel,
		})
	}

	return dto.PromoteResponse{
		Assignment: dto.NewCarnetResponse(result.Assignment),
		Student:    dto.NewStudentResponse(result.Student),
		FromLevel:  result.Record.FromLevel,
		ToLevel:    result.Record.ToLevel,
		Replayed:   result.Replayed,
	}, nil
}

func (s *carnetReviewService) loadCarnet(ctx context.Context, assignmentID uint) (models.CarnetAssignment, models.Student, error) {
	assignment, err := s.carnets.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CarnetAssignment{}, models.Student{}, ErrCarnetNotFound
		}
		return models.CarnetAssignment{}, models.Student{}, err
	}

	student, err := s.students.GetByID(ctx, assignment.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CarnetAssignment{}, models.Student{}, ErrCarnetNotFound
		}
		return models.CarnetAssignment{}, models.Student{}, err
	}

	return assignment, student, nil
}

func (s *carnetReviewService) eligibleFor(ctx context.Context, assignment models.CarnetAssignment, class ClassContext, student models.Student, sigType models.SignatureType) (bool, error) {
	template, err := s.templates.GetTemplate(ctx, assignment.TemplateID, assignment.TemplateVersion)
	if err != nil {
		return false, fmt.Errorf("failed to fetch template: %w", err)
	}

	links, err := s.linksForClass(ctx, class)
	if err != nil {
		return false, err
	}

	level := class.Level
	if level == "" {
		level = student.Level
	}

	categories := s.evaluator.RequiredCategories(template, level)
	statuses := s.evaluator.CategoryStatuses(categories, links, assignment.AssignedTeacherIDs, assignment.Completions)

	return s.evaluator.EligibleFor(assignment, statuses, sigType), nil
}

// advanceStatus applies the lifecycle transitions triggered by completion
// edits: any teacher edit moves draft forward, full category coverage for the
// touched semester moves the carnet to completed, and losing coverage moves a
// completed carnet back. A signed carnet is terminal.
func (s *carnetReviewService) advanceStatus(ctx context.Context, assignment *models.CarnetAssignment, class ClassContext, semester int) error {
	if assignment.Status == models.CarnetStatusSigned {
		return nil
	}

	previous := assignment.Status
	if assignment.Status == models.CarnetStatusDraft {
		assignment.Status = models.CarnetStatusInProgress
	}

	template, err := s.templates.GetTemplate(ctx, assignment.TemplateID, assignment.TemplateVersion)
	if err != nil {
		return fmt.Errorf("failed to fetch template: %w", err)
	}

	links, err := s.linksForClass(ctx, class)
	if err != nil {
		return err
	}

	level := class.Level
	categories := s.evaluator.RequiredCategories(template, level)
	statuses := s.evaluator.CategoryStatuses(categories, links, assignment.AssignedTeacherIDs, assignment.Completions)

	covered := len(statuses) > 0
	for _, status := range statuses {
		done := status.Sem1Done
		if semester == 2 {
			done = status.Sem2Done
		}
		if !done {
			covered = false
			break
		}
	}

	if covered {
		assignment.Status = models.CarnetStatusCompleted
	} else if assignment.Status == models.CarnetStatusCompleted {
		assignment.Status = models.CarnetStatusInProgress
	}

	if assignment.Status == previous {
		return nil
	}

	return s.carnets.Update(ctx, assignment)
}

func (s *carnetReviewService) linksForClass(ctx context.Context, class ClassContext) ([]models.TeacherClassLink, error) {
	if class.ClassID == nil {
		return nil, nil
	}
	return s.classes.LinksForClass(ctx, *class.ClassID)
}

func (s *carnetReviewService) cachedView(ctx context.Context, assignmentID, viewerID uint) (dto.ReviewViewResponse, bool) {
	if s.redis == nil {
		return dto.ReviewViewResponse{}, false
	}

	payload, err := s.redis.Get(ctx, s.viewCacheKey(ctx, assignmentID, viewerID)).Bytes()
	if err != nil {
		return dto.ReviewViewResponse{}, false
	}

	var view dto.ReviewViewResponse
	if err := json.Unmarshal(payload, &view); err != nil {
		return dto.ReviewViewResponse{}, false
	}

	return view, true
}

func (s *carnetReviewService) storeView(ctx context.Context, assignmentID, viewerID uint, view dto.ReviewViewResponse) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}

	payload, err := json.Marshal(view)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, s.viewCacheKey(ctx, assignmentID, viewerID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache review view")
	}
}

// viewCacheKey folds the assignment's cache epoch into the key, so bumping
// the epoch invalidates every viewer's cached copy at once.
func (s *carnetReviewService) viewCacheKey(ctx context.Context, assignmentID, viewerID uint) string {
	epoch := 0
	if value, err := s.redis.Get(ctx, epochKey(assignmentID)).Result(); err == nil {
		if parsed, parseErr := strconv.Atoi(value); parseErr == nil {
			epoch = parsed
		}
	}
	return fmt.Sprintf("carnet:review:%d:%d:%d", assignmentID, viewerID, epoch)
}

func (s *carnetReviewService) bumpCacheEpoch(ctx context.Context, assignmentID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Incr(ctx, epochKey(assignmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to bump review cache epoch")
	}
}

func epochKey(assignmentID uint) string {
	return fmt.Sprintf("carnet:review:epoch:%d", assignmentID)
}

type carnetEvent struct {
	AssignmentID uint      `json:"assignment_id"`
	Kind         string    `json:"kind"`
	ActorID      uint      `json:"actor_id"`
	At           time.Time `json:"at"`
}

// echoEvent pushes a live data-patch notification for connected viewers.
// Delivery is best effort; failures are logged and ignored.
func (s *carnetReviewService) echoEvent(_ context.Context, kind string, assignmentID, actorID uint) {
	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(carnetEvent{
		AssignmentID: assignmentID,
		Kind:         kind,
		ActorID:      actorID,
		At:           time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := s.nats.Publish(eventSubject, payload); err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("failed to publish carnet event")
	}
}

// recordActivity is fire-and-forget: audit failures never abort the primary
// operation.
func (s *carnetReviewService) recordActivity(ctx context.Context, actorID uint, role, action string, assignmentID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}

	entityID := assignmentID
	err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actorID,
		ActorRole:  role,
		Action:     action,
		EntityType: "carnet_assignment",
		EntityID:   &entityID,
		Metadata:   metadata,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}

func categoryStatusViews(statuses []CategoryStatus) []dto.CategoryStatusView {
	views := make([]dto.CategoryStatusView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, dto.CategoryStatusView{
			Category:   string(status.Category),
			TeacherIDs: status.TeacherIDs,
			Sem1Done:   status.Sem1Done,
			Sem2Done:   status.Sem2Done,
		})
	}
	return views
}

func hasPromotionForYear(student models.Student, schoolYearID uint) bool {
	for _, record := range student.Promotions {
		if record.SchoolYearID == schoolYearID {
			return true
		}
	}
	return false
}
