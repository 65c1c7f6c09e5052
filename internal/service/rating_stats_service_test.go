package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/repository"
)

type statsRepoStub struct {
	repository.RatingRepository
	ratings []models.Rating
	calls   int
}

func (s *statsRepoStub) ListForStats(_ context.Context, evaluatedUserID *uint, ratingType *models.RatingType) ([]models.Rating, error) {
	s.calls++

	var matched []models.Rating
	for _, rating := range s.ratings {
		if evaluatedUserID != nil && rating.EvaluatedUserID != *evaluatedUserID {
			continue
		}
		if ratingType != nil && rating.Type != *ratingType {
			continue
		}
		matched = append(matched, rating)
	}

	return matched, nil
}

func floatPtr(v float64) *float64 { return &v }

func statsFixtureRatings() []models.Rating {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Rating{
		{EvaluatedUserID: 10, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusApproved, Score: floatPtr(2), CreatedAt: base},
		{EvaluatedUserID: 10, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusApproved, Score: floatPtr(3), CreatedAt: base.Add(time.Hour)},
		{EvaluatedUserID: 10, Type: models.RatingTypeHRToIntern, Status: models.RatingStatusApproved, Score: floatPtr(4), CreatedAt: base.Add(2 * time.Hour)},
		{EvaluatedUserID: 11, Type: models.RatingTypeHRToIntern, Status: models.RatingStatusApproved, Score: floatPtr(5), CreatedAt: base.Add(3 * time.Hour)},
		{EvaluatedUserID: 11, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusSubmitted, Score: floatPtr(1), CreatedAt: base.Add(4 * time.Hour)},
		{EvaluatedUserID: 10, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusDraft, CreatedAt: base.Add(5 * time.Hour)},
		{EvaluatedUserID: 10, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusRejected, Score: floatPtr(5), CreatedAt: base.Add(6 * time.Hour)},
	}
}

func TestRatingStatsAggregation(t *testing.T) {
	repo := &statsRepoStub{ratings: statsFixtureRatings()}
	svc := NewRatingStatsService(repo, nil, time.Minute, testLogger())

	stats, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)

	require.Equal(t, int64(7), stats.Total)
	require.Equal(t, int64(4), stats.ApprovedCount)
	require.Equal(t, int64(1), stats.PendingCount)
	require.Equal(t, int64(1), stats.DraftCount)

	// Only approved scores feed the average: (2+3+4+5)/4.
	require.InDelta(t, 3.5, stats.AverageApprovedScore, 1e-9)
	require.Equal(t, map[int]int64{1: 0, 2: 1, 3: 1, 4: 1, 5: 1}, stats.Distribution)

	tutorStats := stats.PerTypeStats[string(models.RatingTypeTutorToIntern)]
	require.Equal(t, int64(5), tutorStats.Count)
	require.InDelta(t, 2.5, tutorStats.AverageApprovedScore, 1e-9)
	require.NotNil(t, tutorStats.LatestCreatedAt)
	require.Equal(t, statsFixtureRatings()[6].CreatedAt, *tutorStats.LatestCreatedAt)

	hrStats := stats.PerTypeStats[string(models.RatingTypeHRToIntern)]
	require.Equal(t, int64(2), hrStats.Count)
	require.InDelta(t, 4.5, hrStats.AverageApprovedScore, 1e-9)
}

func TestRatingStatsFilters(t *testing.T) {
	repo := &statsRepoStub{ratings: statsFixtureRatings()}
	svc := NewRatingStatsService(repo, nil, time.Minute, testLogger())

	userID := uint(11)
	stats, err := svc.Stats(context.Background(), &userID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.ApprovedCount)
	require.InDelta(t, 5.0, stats.AverageApprovedScore, 1e-9)

	ratingType := models.RatingTypeHRToIntern
	stats, err = svc.Stats(context.Background(), nil, &ratingType)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.InDelta(t, 4.5, stats.AverageApprovedScore, 1e-9)
}

func TestRatingStatsEmptySlice(t *testing.T) {
	repo := &statsRepoStub{}
	svc := NewRatingStatsService(repo, nil, time.Minute, testLogger())

	stats, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Zero(t, stats.Total)
	require.Zero(t, stats.AverageApprovedScore, "no approved ratings must not divide by zero")
	require.Equal(t, map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}, stats.Distribution)
	require.Empty(t, stats.PerTypeStats)
}

func TestFractionalScoresUseCeilBuckets(t *testing.T) {
	repo := &statsRepoStub{ratings: []models.Rating{
		{EvaluatedUserID: 10, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusApproved, Score: floatPtr(3.2)},
		{EvaluatedUserID: 10, Type: models.RatingTypeTutorToIntern, Status: models.RatingStatusApproved, Score: floatPtr(4.0)},
	}}
	svc := NewRatingStatsService(repo, nil, time.Minute, testLogger())

	stats, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, map[int]int64{1: 0, 2: 0, 3: 0, 4: 2, 5: 0}, stats.Distribution, "3.2 rounds up into the 4 bucket")
}

type failingStatsRepo struct {
	repository.RatingRepository
}

func (failingStatsRepo) ListForStats(context.Context, *uint, *models.RatingType) ([]models.Rating, error) {
	return nil, errors.New("connection refused")
}

func TestRatingStatsStoreFaultIsUnavailable(t *testing.T) {
	svc := NewRatingStatsService(failingStatsRepo{}, nil, time.Minute, testLogger())

	_, err := svc.Stats(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRatingStatsCaching(t *testing.T) {
	server := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	repo := &statsRepoStub{ratings: statsFixtureRatings()}
	svc := NewRatingStatsService(repo, cache, time.Minute, testLogger())

	first, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	second, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls, "second read must come from the cache")
	require.Equal(t, first, second)

	// Invalidation bumps the version key, making the cached entry unreachable.
	svc.Invalidate(context.Background())

	_, err = svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls, "invalidation must force a recompute")

	// Distinct filters cache under distinct keys.
	userID := uint(10)
	_, err = svc.Stats(context.Background(), &userID, nil)
	require.NoError(t, err)
	require.Equal(t, 3, repo.calls)
}
