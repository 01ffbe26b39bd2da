package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/amanar-edu/carnet-api/internal/dto"
	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/service"
	"github.com/amanar-edu/carnet-api/internal/utils"
)

// CarnetHandler exposes the carnet review lifecycle over HTTP.
type CarnetHandler struct {
	reviews service.CarnetReviewService
	logger  zerolog.Logger
}

// NewCarnetHandler constructs the handler.
func NewCarnetHandler(reviews service.CarnetReviewService, logger zerolog.Logger) *CarnetHandler {
	return &CarnetHandler{
		reviews: reviews,
		logger:  logger.With().Str("component", "carnet_handler").Logger(),
	}
}

// Register mounts the carnet routes. The review view and completions are
// open to every staff role; signing and promotion stay on the elevated group.
func (h *CarnetHandler) Register(staff, elevated fiber.Router) {
	staff.Get("/:id/review", h.GetReviewView)
	staff.Put("/:id/completions", h.SetTeacherCompletion)
	elevated.Post("/:id/signatures", h.Sign)
	elevated.Delete("/:id/signatures/:type", h.Unsign)
	elevated.Post("/:id/promotion", h.Promote)
}

// GetReviewView handles GET /carnets/:id/review.
func (h *CarnetHandler) GetReviewView(c *fiber.Ctx) error {
	assignmentID, err := parseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid carnet id")
	}

	view, err := h.reviews.GetReviewView(c.UserContext(), assignmentID, userIDFromContext(c))
	if err != nil {
		return h.sendCarnetError(c, err, "failed to build review view")
	}

	return utils.SendSuccess(c, "review view fetched", view)
}

// SetTeacherCompletion handles PUT /carnets/:id/completions.
func (h *CarnetHandler) SetTeacherCompletion(c *fiber.Ctx) error {
	assignmentID, err := parseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid carnet id")
	}

	var payload dto.CompletionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	carnet, err := h.reviews.SetTeacherCompletion(c.UserContext(), assignmentID, userIDFromContext(c), payload)
	if err != nil {
		return h.sendCarnetError(c, err, "failed to update completion")
	}

	return utils.SendSuccess(c, "completion updated", carnet)
}

// Sign handles POST /carnets/:id/signatures.
func (h *CarnetHandler) Sign(c *fiber.Ctx) error {
	assignmentID, err := parseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid carnet id")
	}

	var payload dto.SignRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	signature, err := h.reviews.Sign(c.UserContext(), assignmentID, userIDFromContext(c), payload)
	if err != nil {
		return h.sendCarnetError(c, err, "failed to sign carnet")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "carnet signed", signature)
}

// Unsign handles DELETE /carnets/:id/signatures/:type.
func (h *CarnetHandler) Unsign(c *fiber.Ctx) error {
	assignmentID, err := parseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid carnet id")
	}

	sigType := models.SignatureType(c.Params("type"))
	if !sigType.Valid() {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid signature type")
	}

	if err := h.reviews.Unsign(c.UserContext(), assignmentID, userIDFromContext(c), sigType); err != nil {
		return h.sendCarnetError(c, err, "failed to remove signature")
	}

	return utils.SendSuccess(c, "signature removed", nil)
}

// Promote handles POST /carnets/:id/promotion.
func (h *CarnetHandler) Promote(c *fiber.Ctx) error {
	assignmentID, err := parseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid carnet id")
	}

	var payload dto.PromoteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.reviews.Promote(c.UserContext(), assignmentID, userIDFromContext(c), payload)
	if err != nil {
		return h.sendCarnetError(c, err, "failed to promote student")
	}

	status := fiber.StatusCreated
	if result.Replayed {
		status = fiber.StatusOK
	}

	return utils.SendSuccessWithStatus(c, status, "student promoted", result)
}

func (h *CarnetHandler) sendCarnetError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCarnetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "carnet not found")
	case errors.Is(err, service.ErrSignatureNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "signature not found")
	case errors.Is(err, service.ErrNotAuthorized):
		return utils.SendError(c, fiber.StatusForbidden, "not authorized for this carnet")
	case errors.Is(err, service.ErrAlreadySigned):
		return utils.SendError(c, fiber.StatusConflict, "carnet already signed")
	case errors.Is(err, service.ErrAlreadyPromoted):
		return utils.SendError(c, fiber.StatusConflict, "student already promoted this school year")
	case errors.Is(err, service.ErrNotCompleted):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "carnet is not completed by every responsible teacher")
	case errors.Is(err, service.ErrSemester2Required):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "end of year signature requires the second semester")
	case errors.Is(err, service.ErrNotSignedByReviewer):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "carnet is missing the end of year signature")
	case errors.Is(err, service.ErrCannotDetermineNextLevel):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "cannot determine the next level")
	case errors.Is(err, service.ErrNoNextSchoolYear):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "no next school year is configured")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	raw := c.Params("id")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}
