package handler_test

import (
	"context"
	"io"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/internflow/internflow-api/internal/dto"
	"github.com/internflow/internflow-api/internal/handler"
	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/service"
)

type stubStatsService struct {
	gotUserID *uint
	gotType   *models.RatingType
	response  dto.RatingStatsResponse
	err       error
}

func (s *stubStatsService) Stats(_ context.Context, evaluatedUserID *uint, ratingType *models.RatingType) (dto.RatingStatsResponse, error) {
	s.gotUserID = evaluatedUserID
	s.gotType = ratingType
	return s.response, s.err
}

func (s *stubStatsService) Invalidate(context.Context) {}

func TestRatingStatsHandler(t *testing.T) {
	svc := &stubStatsService{response: dto.RatingStatsResponse{
		Total:                3,
		AverageApprovedScore: 4.2,
		Distribution:         map[int]int64{1: 0, 2: 0, 3: 0, 4: 2, 5: 1},
	}}

	app := fiber.New()
	h := handler.NewRatingStatsHandler(svc, zerolog.New(io.Discard))
	h.Register(app.Group("/ratings"))

	resp, envelope := doJSON(t, app, fiber.MethodGet, "/ratings/stats?user_id=10&type=hr_to_intern", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, envelope.Success)

	require.NotNil(t, svc.gotUserID)
	require.Equal(t, uint(10), *svc.gotUserID)
	require.NotNil(t, svc.gotType)
	require.Equal(t, models.RatingTypeHRToIntern, *svc.gotType)

	resp, _ = doJSON(t, app, fiber.MethodGet, "/ratings/stats?type=sideways", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, fiber.MethodGet, "/ratings/stats?user_id=oops", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRatingStatsHandlerStoreOutage(t *testing.T) {
	svc := &stubStatsService{err: service.ErrStoreUnavailable}

	app := fiber.New()
	h := handler.NewRatingStatsHandler(svc, zerolog.New(io.Discard))
	h.Register(app.Group("/ratings"))

	resp, envelope := doJSON(t, app, fiber.MethodGet, "/ratings/stats", nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.False(t, envelope.Success)
}
