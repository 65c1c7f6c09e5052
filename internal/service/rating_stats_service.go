package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/internflow/internflow-api/internal/dto"
	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/repository"
)

const statsVersionKey = "rating:stats:version"

// RatingStatsService aggregates score statistics over filtered rating slices.
type RatingStatsService interface {
	Stats(ctx context.Context, evaluatedUserID *uint, ratingType *models.RatingType) (dto.RatingStatsResponse, error)
	Invalidate(ctx context.Context)
}

type ratingStatsService struct {
	ratings  repository.RatingRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewRatingStatsService builds the aggregator. cache may be nil, in which case
// every call recomputes from the store.
func NewRatingStatsService(ratings repository.RatingRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) RatingStatsService {
	return &ratingStatsService{
		ratings:  ratings,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "rating_stats_service").Logger(),
	}
}

func (s *ratingStatsService) Stats(ctx context.Context, evaluatedUserID *uint, ratingType *models.RatingType) (dto.RatingStatsResponse, error) {
	cacheKey := s.cacheKey(ctx, evaluatedUserID, ratingType)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.RatingStatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("key", cacheKey).Msg("stats cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
		}
	}

	// One query, one snapshot: the whole aggregate is derived from a single
	// consistent read instead of several queries racing concurrent writers.
	ratings, err := s.ratings.ListForStats(ctx, evaluatedUserID, ratingType)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load ratings for aggregation")
		return dto.RatingStatsResponse{}, errors.Join(ErrStoreUnavailable, err)
	}

	response := buildStats(ratings)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store stats cache")
			}
		}
	}

	return response, nil
}

// Invalidate bumps the cache version so every previously written stats entry
// becomes unreachable and expires on its own TTL.
func (s *ratingStatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Incr(ctx, statsVersionKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to bump stats cache version")
	}
}

func (s *ratingStatsService) cacheKey(ctx context.Context, evaluatedUserID *uint, ratingType *models.RatingType) string {
	version := int64(0)
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, statsVersionKey).Int64(); err == nil {
			version = v
		}
	}

	user := "all"
	if evaluatedUserID != nil {
		user = fmt.Sprintf("%d", *evaluatedUserID)
	}

	kind := "all"
	if ratingType != nil {
		kind = string(*ratingType)
	}

	return fmt.Sprintf("rating:stats:v%d:u:%s:t:%s", version, user, kind)
}

func buildStats(ratings []models.Rating) dto.RatingStatsResponse {
	response := dto.RatingStatsResponse{
		Total:        int64(len(ratings)),
		Distribution: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		PerTypeStats: make(map[string]dto.RatingTypeStats),
	}

	var approvedSum float64
	var approvedCount int64

	type typeAccumulator struct {
		count         int64
		approvedSum   float64
		approvedCount int64
		latest        time.Time
	}
	perType := make(map[models.RatingType]*typeAccumulator)

	for _, rating := range ratings {
		acc, ok := perType[rating.Type]
		if !ok {
			acc = &typeAccumulator{}
			perType[rating.Type] = acc
		}
		acc.count++
		if rating.CreatedAt.After(acc.latest) {
			acc.latest = rating.CreatedAt
		}

		switch rating.Status {
		case models.RatingStatusDraft:
			response.DraftCount++
		case models.RatingStatusSubmitted:
			response.PendingCount++
		case models.RatingStatusApproved:
			response.ApprovedCount++
			if rating.Score != nil {
				approvedSum += *rating.Score
				approvedCount++
				acc.approvedSum += *rating.Score
				acc.approvedCount++
				response.Distribution[scoreBucket(*rating.Score)]++
			}
		}
	}

	if approvedCount > 0 {
		response.AverageApprovedScore = approvedSum / float64(approvedCount)
	}

	for ratingType, acc := range perType {
		stats := dto.RatingTypeStats{Count: acc.count}
		if acc.approvedCount > 0 {
			stats.AverageApprovedScore = acc.approvedSum / float64(acc.approvedCount)
		}
		if !acc.latest.IsZero() {
			latest := acc.latest
			stats.LatestCreatedAt = &latest
		}
		response.PerTypeStats[string(ratingType)] = stats
	}

	return response
}

// scoreBucket maps a score onto its ceil-integer distribution bucket, clamped
// to the 1..5 key range.
func scoreBucket(score float64) int {
	bucket := int(math.Ceil(score))
	if bucket < 1 {
		return 1
	}
	if bucket > 5 {
		return 5
	}
	return bucket
}
