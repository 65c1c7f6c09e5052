package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/internflow/internflow-api/internal/dto"
	"github.com/internflow/internflow-api/internal/service"
	"github.com/internflow/internflow-api/internal/utils"
)

// RatingHandler manages the evaluation workflow endpoints.
type RatingHandler struct {
	service   service.EvaluationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRatingHandler builds a rating handler instance.
func NewRatingHandler(svc service.EvaluationService, validate *validator.Validate, logger zerolog.Logger) *RatingHandler {
	return &RatingHandler{
		service:   svc,
		validator: validate,
		logger:    logger.With().Str("component", "rating_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. approverOnly
// guards the approver inbox; pass nil to leave it open.
func (h *RatingHandler) Register(router fiber.Router, approverOnly fiber.Handler) {
	if approverOnly == nil {
		approverOnly = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/views/awaiting-approval", approverOnly, h.awaitingApproval)
	router.Get("/views/about-me", h.aboutMe)
	router.Get("/views/my-drafts", h.myDrafts)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/submit", h.submit)
	router.Post("/:id/approve", h.approve)
	router.Post("/:id/reject", h.reject)
	router.Post("/:id/respond", h.respond)
}

func (h *RatingHandler) create(c *fiber.Ctx) error {
	var payload dto.RatingCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	evaluatorID := userIDFromContext(c)
	if evaluatorID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authenticated user required")
	}

	rating, err := h.service.Create(c.UserContext(), evaluatorID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rating draft created", rating)
}

func (h *RatingHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	rating, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rating retrieved", rating)
}

func (h *RatingHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	var payload dto.RatingUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rating, err := h.service.Update(c.UserContext(), id, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rating updated", rating)
}

func (h *RatingHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	if err := h.service.Delete(c.UserContext(), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rating deleted", nil)
}

func (h *RatingHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	rating, err := h.service.Submit(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rating submitted", rating)
}

func (h *RatingHandler) approve(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	rating, err := h.service.Approve(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rating approved", rating)
}

func (h *RatingHandler) reject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	var payload dto.RatingRejectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rating, err := h.service.Reject(c.UserContext(), id, actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rating rejected", rating)
}

func (h *RatingHandler) respond(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid rating id")
	}

	var payload dto.RatingRespondRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rating, err := h.service.Respond(c.UserContext(), id, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "response recorded", rating)
}

func (h *RatingHandler) list(c *fiber.Ctx) error {
	filter, err := h.parseFilter(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ratings, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "ratings retrieved", ratings)
}

func (h *RatingHandler) awaitingApproval(c *fiber.Ctx) error {
	page, pageSize, err := parsePaging(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ratings, err := h.service.ListAwaitingApproval(c.UserContext(), page, pageSize)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "ratings awaiting approval retrieved", ratings)
}

func (h *RatingHandler) aboutMe(c *fiber.Ctx) error {
	page, pageSize, err := parsePaging(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ratings, err := h.service.ListAboutUser(c.UserContext(), userIDFromContext(c), page, pageSize)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "ratings about you retrieved", ratings)
}

func (h *RatingHandler) myDrafts(c *fiber.Ctx) error {
	page, pageSize, err := parsePaging(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ratings, err := h.service.ListDrafts(c.UserContext(), userIDFromContext(c), page, pageSize)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "draft ratings retrieved", ratings)
}

func (h *RatingHandler) parseFilter(c *fiber.Ctx) (dto.RatingFilter, error) {
	filter := dto.RatingFilter{}

	evaluatorID, err := parseQueryUint(c, "evaluator_id")
	if err != nil {
		return filter, errors.New("invalid evaluator_id")
	}
	filter.EvaluatorID = evaluatorID

	evaluatedUserID, err := parseQueryUint(c, "evaluated_user_id")
	if err != nil {
		return filter, errors.New("invalid evaluated_user_id")
	}
	filter.EvaluatedUserID = evaluatedUserID

	if value := c.Query("type"); value != "" {
		filter.Type = &value
	}

	if value := c.Query("status"); value != "" {
		filter.Status = &value
	}

	if value := c.Query("created_from"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return filter, errors.New("invalid created_from, expected RFC3339")
		}
		filter.CreatedFrom = &parsed
	}

	if value := c.Query("created_to"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return filter, errors.New("invalid created_to, expected RFC3339")
		}
		filter.CreatedTo = &parsed
	}

	if value := c.QueryFloat("score_min", -1); value >= 0 {
		filter.ScoreMin = &value
	}

	if value := c.QueryFloat("score_max", -1); value >= 0 {
		filter.ScoreMax = &value
	}

	filter.StageReference = c.Query("stage_reference")
	filter.SortBy = c.Query("sort_by")
	filter.SortDesc = c.QueryBool("sort_desc", false)

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return filter, errors.New("invalid page")
	}
	filter.Page = page

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return filter, errors.New("invalid page_size")
	}
	filter.PageSize = pageSize

	return filter, nil
}

func parsePaging(c *fiber.Ctx) (int, int, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return 0, 0, errors.New("invalid page")
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return 0, 0, errors.New("invalid page_size")
	}

	return page, pageSize, nil
}

func (h *RatingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	var invalidTransition *service.InvalidTransitionError
	var validation *service.ValidationError

	switch {
	case errors.As(err, &validation):
		return utils.SendError(c, fiber.StatusBadRequest, validation.Reason)
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRatingNotFound), errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateEvaluation):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &invalidTransition):
		return utils.SendError(c, fiber.StatusConflict, invalidTransition.Error())
	case errors.Is(err, service.ErrNotEditable):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAlreadyResponded):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "rating store temporarily unavailable")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
