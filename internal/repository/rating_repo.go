package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/internflow/internflow-api/internal/models"
)

// ErrDuplicateSlot is returned when an insert collides with the partial unique
// index guarding the active evaluation slot.
var ErrDuplicateSlot = errors.New("active evaluation slot already taken")

// ErrStaleStatus is returned by UpdateAtomic when the rating exists but its
// status no longer matches the expected one, meaning a concurrent transition
// won the race.
var ErrStaleStatus = errors.New("rating status changed concurrently")

// Sort keys accepted by RatingFilter. Anything else falls back to creation time.
const (
	SortByCreatedAt     = "created_at"
	SortByScore         = "score"
	SortByStatus        = "status"
	SortByType          = "type"
	SortByEvaluatorName = "evaluator_name"
	SortByEvaluatedName = "evaluated_name"
)

// RatingFilter narrows and pages rating queries.
type RatingFilter struct {
	EvaluatorID     *uint
	EvaluatedUserID *uint
	Type            *models.RatingType
	Status          *models.RatingStatus
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	ScoreMin        *float64
	ScoreMax        *float64
	StageReference  string
	SortKey         string
	SortDesc        bool
	Page            int
	PageSize        int
}

// RatingRepository is the persistence boundary of the evaluation engine.
type RatingRepository interface {
	Create(ctx context.Context, rating *models.Rating) error
	GetByID(ctx context.Context, id uint) (models.Rating, error)
	FindActiveSlot(ctx context.Context, evaluatorID, evaluatedUserID uint, ratingType models.RatingType, periodStart, periodEnd *time.Time) (models.Rating, error)
	UpdateAtomic(ctx context.Context, id uint, expected models.RatingStatus, mutate func(*models.Rating) error) (models.Rating, error)
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter RatingFilter) ([]models.Rating, int64, error)
	ListForStats(ctx context.Context, evaluatedUserID *uint, ratingType *models.RatingType) ([]models.Rating, error)
}

type ratingRepository struct {
	db *gorm.DB
}

// NewRatingRepository instantiates the repository.
func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

// EnsureRatingIndexes creates the partial unique index backing the uniqueness
// guard: at most one non-rejected rating per evaluator/evaluated/type/period
// tuple. Absent period bounds are coalesced so the no-period slot is unique too.
// The expression is valid on both PostgreSQL and the SQLite used in tests.
func EnsureRatingIndexes(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ratings_active_slot
		 ON ratings (
			evaluator_id,
			evaluated_user_id,
			type,
			COALESCE(evaluation_period_start, '0001-01-01 00:00:00'),
			COALESCE(evaluation_period_end, '0001-01-01 00:00:00')
		 )
		 WHERE status <> 'rejected'`,
	).Error
}

func (r *ratingRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Rating{}).
		Preload("Evaluator").
		Preload("EvaluatedUser")
}

func (r *ratingRepository) Create(ctx context.Context, rating *models.Rating) error {
	if err := r.db.WithContext(ctx).Omit("Evaluator", "EvaluatedUser").Create(rating).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return err
	}

	return nil
}

func (r *ratingRepository) GetByID(ctx context.Context, id uint) (models.Rating, error) {
	var rating models.Rating
	if err := r.baseQuery(ctx).First(&rating, id).Error; err != nil {
		return models.Rating{}, err
	}

	return rating, nil
}

func (r *ratingRepository) FindActiveSlot(ctx context.Context, evaluatorID, evaluatedUserID uint, ratingType models.RatingType, periodStart, periodEnd *time.Time) (models.Rating, error) {
	query := r.db.WithContext(ctx).Model(&models.Rating{}).
		Where("evaluator_id = ?", evaluatorID).
		Where("evaluated_user_id = ?", evaluatedUserID).
		Where("type = ?", ratingType).
		Where("status <> ?", models.RatingStatusRejected)

	if periodStart != nil {
		query = query.Where("evaluation_period_start = ?", *periodStart)
	} else {
		query = query.Where("evaluation_period_start IS NULL")
	}

	if periodEnd != nil {
		query = query.Where("evaluation_period_end = ?", *periodEnd)
	} else {
		query = query.Where("evaluation_period_end IS NULL")
	}

	var rating models.Rating
	if err := query.First(&rating).Error; err != nil {
		return models.Rating{}, err
	}

	return rating, nil
}

// UpdateAtomic loads the rating inside a transaction, applies the mutation and
// writes it back with a status-guarded UPDATE. When the guard matches zero
// rows a concurrent transition got there first and ErrStaleStatus is returned;
// the caller re-reads to report the post-transition state.
func (r *ratingRepository) UpdateAtomic(ctx context.Context, id uint, expected models.RatingStatus, mutate func(*models.Rating) error) (models.Rating, error) {
	var updated models.Rating

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rating models.Rating
		if err := tx.First(&rating, id).Error; err != nil {
			return err
		}

		if rating.Status != expected {
			return ErrStaleStatus
		}

		if err := mutate(&rating); err != nil {
			return err
		}

		result := tx.Model(&models.Rating{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(mutationColumns(rating))
		if result.Error != nil {
			// A draft edit can move the rating onto an occupied slot, e.g. by
			// setting the period of an already taken tuple.
			if isUniqueViolation(result.Error) {
				return ErrDuplicateSlot
			}
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrStaleStatus
		}

		updated = rating
		return nil
	})
	if err != nil {
		return models.Rating{}, err
	}

	return r.GetByID(ctx, updated.ID)
}

// mutationColumns lists every column a lifecycle edge or draft edit may touch.
// Identity columns (evaluator, evaluated, type) are immutable after creation
// and deliberately absent.
func mutationColumns(rating models.Rating) map[string]interface{} {
	return map[string]interface{}{
		"status":                  rating.Status,
		"score":                   rating.Score,
		"comment":                 rating.Comment,
		"detailed_scores":         rating.DetailedScores,
		"rejection_reason":        rating.RejectionReason,
		"response":                rating.Response,
		"response_date":           rating.ResponseDate,
		"evaluation_period_start": rating.EvaluationPeriodStart,
		"evaluation_period_end":   rating.EvaluationPeriodEnd,
		"stage_reference":         rating.StageReference,
		"submitted_at":            rating.SubmittedAt,
		"approved_at":             rating.ApprovedAt,
		"approved_by_user_id":     rating.ApprovedByUserID,
		"updated_at":              time.Now(),
	}
}

func (r *ratingRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Rating{}, id)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *ratingRepository) List(ctx context.Context, filter RatingFilter) ([]models.Rating, int64, error) {
	query := r.baseQuery(ctx)

	if filter.EvaluatorID != nil {
		query = query.Where("ratings.evaluator_id = ?", *filter.EvaluatorID)
	}

	if filter.EvaluatedUserID != nil {
		query = query.Where("ratings.evaluated_user_id = ?", *filter.EvaluatedUserID)
	}

	if filter.Type != nil {
		query = query.Where("ratings.type = ?", *filter.Type)
	}

	if filter.Status != nil {
		query = query.Where("ratings.status = ?", *filter.Status)
	}

	if filter.CreatedFrom != nil {
		query = query.Where("ratings.created_at >= ?", *filter.CreatedFrom)
	}

	if filter.CreatedTo != nil {
		query = query.Where("ratings.created_at <= ?", *filter.CreatedTo)
	}

	if filter.ScoreMin != nil {
		query = query.Where("ratings.score >= ?", *filter.ScoreMin)
	}

	if filter.ScoreMax != nil {
		query = query.Where("ratings.score <= ?", *filter.ScoreMax)
	}

	if filter.StageReference != "" {
		query = query.Where("ratings.stage_reference = ?", filter.StageReference)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applySort(query, filter)

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Limit(filter.PageSize).Offset(offset)
	}

	var ratings []models.Rating
	if err := query.Find(&ratings).Error; err != nil {
		return nil, 0, err
	}

	return ratings, total, nil
}

func applySort(query *gorm.DB, filter RatingFilter) *gorm.DB {
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	switch filter.SortKey {
	case SortByScore:
		return query.Order("ratings.score " + direction)
	case SortByStatus:
		return query.Order("ratings.status " + direction)
	case SortByType:
		return query.Order("ratings.type " + direction)
	case SortByEvaluatorName:
		return query.
			Joins("LEFT JOIN users AS evaluators ON evaluators.id = ratings.evaluator_id").
			Order("evaluators.name " + direction)
	case SortByEvaluatedName:
		return query.
			Joins("LEFT JOIN users AS evaluated_users ON evaluated_users.id = ratings.evaluated_user_id").
			Order("evaluated_users.name " + direction)
	case SortByCreatedAt:
		return query.Order("ratings.created_at " + direction)
	default:
		return query.Order("ratings.created_at DESC")
	}
}

// ListForStats fetches every rating matching the statistics filter in a single
// query so the aggregate is computed over one consistent snapshot.
func (r *ratingRepository) ListForStats(ctx context.Context, evaluatedUserID *uint, ratingType *models.RatingType) ([]models.Rating, error) {
	query := r.db.WithContext(ctx).Model(&models.Rating{})

	if evaluatedUserID != nil {
		query = query.Where("evaluated_user_id = ?", *evaluatedUserID)
	}

	if ratingType != nil {
		query = query.Where("type = ?", *ratingType)
	}

	var ratings []models.Rating
	if err := query.Find(&ratings).Error; err != nil {
		return nil, err
	}

	return ratings, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	// SQLite, used by the test suite, reports constraint violations as text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
