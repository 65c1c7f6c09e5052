package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/service"
	"github.com/internflow/internflow-api/internal/utils"
)

// RatingStatsHandler exposes the aggregated statistics endpoint.
type RatingStatsHandler struct {
	service service.RatingStatsService
	logger  zerolog.Logger
}

// NewRatingStatsHandler builds a statistics handler instance.
func NewRatingStatsHandler(svc service.RatingStatsService, logger zerolog.Logger) *RatingStatsHandler {
	return &RatingStatsHandler{
		service: svc,
		logger:  logger.With().Str("component", "rating_stats_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *RatingStatsHandler) Register(router fiber.Router) {
	router.Get("/stats", h.stats)
}

func (h *RatingStatsHandler) stats(c *fiber.Ctx) error {
	userID, err := parseQueryUint(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user_id")
	}

	var ratingType *models.RatingType
	if value := c.Query("type"); value != "" {
		parsed := models.RatingType(value)
		if !parsed.IsValid() {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation type")
		}
		ratingType = &parsed
	}

	stats, err := h.service.Stats(c.UserContext(), userID, ratingType)
	if err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			return utils.SendError(c, fiber.StatusServiceUnavailable, "rating store temporarily unavailable")
		}
		h.logger.Error().Err(err).Msg("failed to compute rating statistics")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to compute statistics")
	}

	return utils.SendSuccess(c, "statistics computed", stats)
}
