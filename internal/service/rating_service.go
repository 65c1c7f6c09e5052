package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/internflow/internflow-api/internal/dto"
	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/observability"
	"github.com/internflow/internflow-api/internal/repository"
)

const defaultPageSize = 20

// Actor identifies the authenticated caller of an evaluation operation.
type Actor struct {
	ID   uint
	Role models.Role
}

// StatsInvalidator drops cached statistics after a successful mutation.
type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// EvaluationService is the single entry point other subsystems use to drive
// the rating workflow.
type EvaluationService interface {
	Create(ctx context.Context, evaluatorID uint, payload dto.RatingCreateRequest) (dto.RatingResponse, error)
	Get(ctx context.Context, id uint) (dto.RatingResponse, error)
	Update(ctx context.Context, id, callerID uint, payload dto.RatingUpdateRequest) (dto.RatingResponse, error)
	Submit(ctx context.Context, id, callerID uint) (dto.RatingResponse, error)
	Approve(ctx context.Context, id uint, approver Actor) (dto.RatingResponse, error)
	Reject(ctx context.Context, id uint, approver Actor, payload dto.RatingRejectRequest) (dto.RatingResponse, error)
	Respond(ctx context.Context, id, callerID uint, payload dto.RatingRespondRequest) (dto.RatingResponse, error)
	Delete(ctx context.Context, id uint, caller Actor) error
	List(ctx context.Context, filter dto.RatingFilter) (dto.RatingListResponse, error)
	ListAwaitingApproval(ctx context.Context, page, pageSize int) (dto.RatingListResponse, error)
	ListAboutUser(ctx context.Context, userID uint, page, pageSize int) (dto.RatingListResponse, error)
	ListDrafts(ctx context.Context, evaluatorID uint, page, pageSize int) (dto.RatingListResponse, error)
}

type evaluationService struct {
	ratings     repository.RatingRepository
	eligibility EligibilityService
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	events      RatingEventPublisher
	stats       StatsInvalidator
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEvaluationService constructs the workflow orchestrator. events and stats
// may be nil when the corresponding collaborators are not wired.
func NewEvaluationService(ratings repository.RatingRepository, eligibility EligibilityService, validate *validator.Validate, events RatingEventPublisher, stats StatsInvalidator, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		ratings:     ratings,
		eligibility: eligibility,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		events:      events,
		stats:       stats,
		tracer:      otel.Tracer("github.com/internflow/internflow-api/internal/service/evaluation"),
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		now:         time.Now,
	}
}

func (s *evaluationService) Create(ctx context.Context, evaluatorID uint, payload dto.RatingCreateRequest) (dto.RatingResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RatingResponse{}, err
	}

	ratingType := models.RatingType(payload.Type)

	if err := s.eligibility.Validate(ctx, evaluatorID, payload.EvaluatedUserID, ratingType); err != nil {
		observability.RatingTransitions().WithLabelValues("create", "denied").Inc()
		return dto.RatingResponse{}, err
	}

	if err := validatePeriod(payload.EvaluationPeriodStart, payload.EvaluationPeriodEnd); err != nil {
		return dto.RatingResponse{}, err
	}

	scores := payload.DetailedScores.ToModel()
	if scores != nil {
		if scores.Kind != models.CriteriaKindFor(ratingType) {
			return dto.RatingResponse{}, validationErrorf("detailed scores of kind %q do not match evaluation type %q", scores.Kind, ratingType)
		}
		if err := scores.Validate(); err != nil {
			return dto.RatingResponse{}, &ValidationError{Reason: err.Error()}
		}
	}

	// Fast-path duplicate check; the partial unique index below remains the
	// actual safety net under concurrent creators.
	_, err := s.ratings.FindActiveSlot(ctx, evaluatorID, payload.EvaluatedUserID, ratingType, payload.EvaluationPeriodStart, payload.EvaluationPeriodEnd)
	if err == nil {
		observability.RatingTransitions().WithLabelValues("create", "conflict").Inc()
		return dto.RatingResponse{}, ErrDuplicateEvaluation
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.RatingResponse{}, s.storeError(err)
	}

	rating := models.Rating{
		EvaluatorID:           evaluatorID,
		EvaluatedUserID:       payload.EvaluatedUserID,
		Type:                  ratingType,
		Status:                models.RatingStatusDraft,
		Score:                 payload.Score,
		Comment:               s.clean(payload.Comment),
		EvaluationPeriodStart: payload.EvaluationPeriodStart,
		EvaluationPeriodEnd:   payload.EvaluationPeriodEnd,
		StageReference:        s.clean(payload.StageReference),
	}
	if err := rating.SetCriteria(scores); err != nil {
		return dto.RatingResponse{}, &ValidationError{Reason: err.Error()}
	}

	if err := s.ratings.Create(ctx, &rating); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlot) {
			observability.RatingTransitions().WithLabelValues("create", "conflict").Inc()
			return dto.RatingResponse{}, ErrDuplicateEvaluation
		}
		return dto.RatingResponse{}, s.storeError(err)
	}

	created, err := s.ratings.GetByID(ctx, rating.ID)
	if err != nil {
		return dto.RatingResponse{}, s.storeError(err)
	}

	s.logger.Info().Uint("rating_id", created.ID).Uint("evaluator_id", evaluatorID).Str("type", string(ratingType)).Msg("rating draft created")
	observability.RatingTransitions().WithLabelValues("create", "success").Inc()
	s.afterMutation(ctx, RatingEventCreated, created, evaluatorID)

	return dto.NewRatingResponse(created), nil
}

func (s *evaluationService) Get(ctx context.Context, id uint) (dto.RatingResponse, error) {
	rating, err := s.getRating(ctx, id)
	if err != nil {
		return dto.RatingResponse{}, err
	}

	return dto.NewRatingResponse(rating), nil
}

func (s *evaluationService) Update(ctx context.Context, id, callerID uint, payload dto.RatingUpdateRequest) (dto.RatingResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RatingResponse{}, err
	}

	rating, err := s.getRating(ctx, id)
	if err != nil {
		return dto.RatingResponse{}, err
	}

	if rating.EvaluatorID != callerID {
		return dto.RatingResponse{}, ErrPermissionDenied
	}

	if rating.Status != models.RatingStatusDraft {
		return dto.RatingResponse{}, ErrNotEditable
	}

	updated, err := s.ratings.UpdateAtomic(ctx, id, models.RatingStatusDraft, func(current *models.Rating) error {
		return s.applyDraftEdit(current, payload)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return dto.RatingResponse{}, ErrNotEditable
		}
		if errors.Is(err, repository.ErrDuplicateSlot) {
			observability.RatingTransitions().WithLabelValues(string(EventUpdate), "conflict").Inc()
			return dto.RatingResponse{}, ErrDuplicateEvaluation
		}
		if IsValidation(err) {
			return dto.RatingResponse{}, err
		}
		return dto.RatingResponse{}, s.storeError(err)
	}

	s.logger.Info().Uint("rating_id", id).Msg("rating draft updated")
	s.invalidateStats(ctx)

	return dto.NewRatingResponse(updated), nil
}

func (s *evaluationService) applyDraftEdit(rating *models.Rating, payload dto.RatingUpdateRequest) error {
	if payload.Score != nil {
		rating.Score = payload.Score
	}

	if payload.Comment != nil {
		rating.Comment = s.clean(*payload.Comment)
	}

	if payload.StageReference != nil {
		rating.StageReference = s.clean(*payload.StageReference)
	}

	if payload.EvaluationPeriodStart != nil {
		rating.EvaluationPeriodStart = payload.EvaluationPeriodStart
	}

	if payload.EvaluationPeriodEnd != nil {
		rating.EvaluationPeriodEnd = payload.EvaluationPeriodEnd
	}

	if err := validatePeriod(rating.EvaluationPeriodStart, rating.EvaluationPeriodEnd); err != nil {
		return err
	}

	if payload.DetailedScores != nil {
		scores := payload.DetailedScores.ToModel()
		if scores.Kind != models.CriteriaKindFor(rating.Type) {
			return validationErrorf("detailed scores of kind %q do not match evaluation type %q", scores.Kind, rating.Type)
		}
		if err := scores.Validate(); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		if err := rating.SetCriteria(scores); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
	}

	return nil
}

func (s *evaluationService) Submit(ctx context.Context, id, callerID uint) (dto.RatingResponse, error) {
	rating, err := s.getRating(ctx, id)
	if err != nil {
		return dto.RatingResponse{}, err
	}

	if rating.EvaluatorID != callerID {
		observability.RatingTransitions().WithLabelValues(string(EventSubmit), "denied").Inc()
		return dto.RatingResponse{}, ErrPermissionDenied
	}

	if _, err := NextStatus(rating.Status, EventSubmit); err != nil {
		observability.RatingTransitions().WithLabelValues(string(EventSubmit), "invalid").Inc()
		return dto.RatingResponse{}, err
	}

	updated, err := s.ratings.UpdateAtomic(ctx, id, models.RatingStatusDraft, func(current *models.Rating) error {
		if err := validateForSubmission(current); err != nil {
			return err
		}
		applySubmit(current, s.now())
		return nil
	})
	if err != nil {
		return dto.RatingResponse{}, s.transitionError(ctx, id, EventSubmit, err)
	}

	s.logger.Info().Uint("rating_id", id).Msg("rating submitted for approval")
	observability.RatingTransitions().WithLabelValues(string(EventSubmit), "success").Inc()
	s.afterMutation(ctx, RatingEventSubmitted, updated, callerID)

	return dto.NewRatingResponse(updated), nil
}

func (s *evaluationService) Approve(ctx context.Context, id uint, approver Actor) (dto.RatingResponse, error) {
	ctx, span := s.tracer.Start(ctx, "rating.approve", trace.WithAttributes(
		attribute.Int64("rating.id", int64(id)),
		attribute.Int64("rating.approver_id", int64(approver.ID)),
	))
	defer span.End()

	if !canApprove(approver.Role) {
		span.SetStatus(codes.Error, "approver_authority_missing")
		observability.RatingTransitions().WithLabelValues(string(EventApprove), "denied").Inc()
		return dto.RatingResponse{}, ErrPermissionDenied
	}

	rating, err := s.getRating(ctx, id)
	if err != nil {
		span.RecordError(err)
		return dto.RatingResponse{}, err
	}

	if _, err := NextStatus(rating.Status, EventApprove); err != nil {
		span.SetStatus(codes.Error, "invalid_transition")
		observability.RatingTransitions().WithLabelValues(string(EventApprove), "invalid").Inc()
		return dto.RatingResponse{}, err
	}

	updated, err := s.ratings.UpdateAtomic(ctx, id, models.RatingStatusSubmitted, func(current *models.Rating) error {
		applyApprove(current, approver.ID, s.now())
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.RatingResponse{}, s.transitionError(ctx, id, EventApprove, err)
	}

	s.logger.Info().Uint("rating_id", id).Uint("approver_id", approver.ID).Msg("rating approved")
	observability.RatingTransitions().WithLabelValues(string(EventApprove), "success").Inc()
	s.afterMutation(ctx, RatingEventApproved, updated, approver.ID)

	return dto.NewRatingResponse(updated), nil
}

func (s *evaluationService) Reject(ctx context.Context, id uint, approver Actor, payload dto.RatingRejectRequest) (dto.RatingResponse, error) {
	ctx, span := s.tracer.Start(ctx, "rating.reject", trace.WithAttributes(
		attribute.Int64("rating.id", int64(id)),
		attribute.Int64("rating.approver_id", int64(approver.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.RatingResponse{}, err
	}

	if !canApprove(approver.Role) {
		span.SetStatus(codes.Error, "approver_authority_missing")
		observability.RatingTransitions().WithLabelValues(string(EventReject), "denied").Inc()
		return dto.RatingResponse{}, ErrPermissionDenied
	}

	rating, err := s.getRating(ctx, id)
	if err != nil {
		span.RecordError(err)
		return dto.RatingResponse{}, err
	}

	if _, err := NextStatus(rating.Status, EventReject); err != nil {
		span.SetStatus(codes.Error, "invalid_transition")
		observability.RatingTransitions().WithLabelValues(string(EventReject), "invalid").Inc()
		return dto.RatingResponse{}, err
	}

	reason := s.clean(payload.Reason)
	updated, err := s.ratings.UpdateAtomic(ctx, id, models.RatingStatusSubmitted, func(current *models.Rating) error {
		applyReject(current, approver.ID, reason, s.now())
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.RatingResponse{}, s.transitionError(ctx, id, EventReject, err)
	}

	// The rejected row no longer occupies the uniqueness slot; a fresh
	// evaluation for the same tuple may be created from here on.
	s.logger.Info().Uint("rating_id", id).Uint("approver_id", approver.ID).Msg("rating rejected")
	observability.RatingTransitions().WithLabelValues(string(EventReject), "success").Inc()
	s.afterMutation(ctx, RatingEventRejected, updated, approver.ID)

	return dto.NewRatingResponse(updated), nil
}

func (s *evaluationService) Respond(ctx context.Context, id, callerID uint, payload dto.RatingRespondRequest) (dto.RatingResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RatingResponse{}, err
	}

	rating, err := s.getRating(ctx, id)
	if err != nil {
		return dto.RatingResponse{}, err
	}

	if rating.EvaluatedUserID != callerID {
		observability.RatingTransitions().WithLabelValues(string(EventRespond), "denied").Inc()
		return dto.RatingResponse{}, ErrPermissionDenied
	}

	if _, err := NextStatus(rating.Status, EventRespond); err != nil {
		observability.RatingTransitions().WithLabelValues(string(EventRespond), "invalid").Inc()
		return dto.RatingResponse{}, err
	}

	if rating.HasResponse() {
		return dto.RatingResponse{}, ErrAlreadyResponded
	}

	response := s.clean(payload.Response)
	updated, err := s.ratings.UpdateAtomic(ctx, id, models.RatingStatusApproved, func(current *models.Rating) error {
		// Re-checked inside the transaction so a concurrent responder cannot
		// overwrite a response that landed after our first read.
		if current.HasResponse() {
			return ErrAlreadyResponded
		}
		applyRespond(current, response, s.now())
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyResponded) {
			return dto.RatingResponse{}, ErrAlreadyResponded
		}
		return dto.RatingResponse{}, s.transitionError(ctx, id, EventRespond, err)
	}

	s.logger.Info().Uint("rating_id", id).Msg("response recorded")
	observability.RatingTransitions().WithLabelValues(string(EventRespond), "success").Inc()
	s.afterMutation(ctx, RatingEventResponded, updated, callerID)

	return dto.NewRatingResponse(updated), nil
}

func (s *evaluationService) Delete(ctx context.Context, id uint, caller Actor) error {
	rating, err := s.getRating(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case caller.Role == models.RoleAdmin:
		// Administrators may remove ratings in any state.
	case rating.EvaluatorID == caller.ID:
		if rating.Status != models.RatingStatusDraft {
			return ErrNotEditable
		}
	default:
		return ErrPermissionDenied
	}

	if err := s.ratings.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRatingNotFound
		}
		return s.storeError(err)
	}

	s.logger.Info().Uint("rating_id", id).Uint("caller_id", caller.ID).Msg("rating deleted")
	s.afterMutation(ctx, RatingEventDeleted, rating, caller.ID)

	return nil
}

func (s *evaluationService) List(ctx context.Context, filter dto.RatingFilter) (dto.RatingListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.RatingListResponse{}, err
	}

	repoFilter := repository.RatingFilter{
		EvaluatorID:     filter.EvaluatorID,
		EvaluatedUserID: filter.EvaluatedUserID,
		CreatedFrom:     filter.CreatedFrom,
		CreatedTo:       filter.CreatedTo,
		ScoreMin:        filter.ScoreMin,
		ScoreMax:        filter.ScoreMax,
		StageReference:  filter.StageReference,
		SortKey:         filter.SortBy,
		SortDesc:        filter.SortDesc,
		Page:            filter.Page,
		PageSize:        filter.PageSize,
	}

	if filter.Type != nil {
		ratingType := models.RatingType(*filter.Type)
		repoFilter.Type = &ratingType
	}

	if filter.Status != nil {
		status := models.RatingStatus(*filter.Status)
		repoFilter.Status = &status
	}

	if repoFilter.SortKey == "" {
		repoFilter.SortKey = repository.SortByCreatedAt
		repoFilter.SortDesc = true
	}

	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}

	if repoFilter.PageSize <= 0 {
		repoFilter.PageSize = defaultPageSize
	}

	ratings, total, err := s.ratings.List(ctx, repoFilter)
	if err != nil {
		return dto.RatingListResponse{}, s.storeError(err)
	}

	return dto.RatingListResponse{
		Items:      dto.NewRatingResponseSlice(ratings),
		TotalCount: total,
		Page:       repoFilter.Page,
		PageSize:   repoFilter.PageSize,
	}, nil
}

// ListAwaitingApproval is the approver inbox: submitted ratings, oldest first.
func (s *evaluationService) ListAwaitingApproval(ctx context.Context, page, pageSize int) (dto.RatingListResponse, error) {
	status := string(models.RatingStatusSubmitted)
	return s.List(ctx, dto.RatingFilter{
		Status:   &status,
		SortBy:   repository.SortByCreatedAt,
		SortDesc: false,
		Page:     page,
		PageSize: pageSize,
	})
}

// ListAboutUser projects the ratings issued about one user, newest first.
func (s *evaluationService) ListAboutUser(ctx context.Context, userID uint, page, pageSize int) (dto.RatingListResponse, error) {
	return s.List(ctx, dto.RatingFilter{
		EvaluatedUserID: &userID,
		SortBy:          repository.SortByCreatedAt,
		SortDesc:        true,
		Page:            page,
		PageSize:        pageSize,
	})
}

// ListDrafts projects the caller's still-editable ratings.
func (s *evaluationService) ListDrafts(ctx context.Context, evaluatorID uint, page, pageSize int) (dto.RatingListResponse, error) {
	status := string(models.RatingStatusDraft)
	return s.List(ctx, dto.RatingFilter{
		EvaluatorID: &evaluatorID,
		Status:      &status,
		SortBy:      repository.SortByCreatedAt,
		SortDesc:    true,
		Page:        page,
		PageSize:    pageSize,
	})
}

func (s *evaluationService) getRating(ctx context.Context, id uint) (models.Rating, error) {
	rating, err := s.ratings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Rating{}, ErrRatingNotFound
		}
		return models.Rating{}, s.storeError(err)
	}

	return rating, nil
}

// transitionError maps UpdateAtomic failures onto the error taxonomy. A stale
// status means a concurrent transition won; the caller learns the state it
// actually raced against.
func (s *evaluationService) transitionError(ctx context.Context, id uint, event LifecycleEvent, err error) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		observability.RatingTransitions().WithLabelValues(string(event), "conflict").Inc()
		if fresh, getErr := s.ratings.GetByID(ctx, id); getErr == nil {
			return &InvalidTransitionError{From: fresh.Status, Requested: event}
		}
		return &InvalidTransitionError{From: "unknown", Requested: event}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRatingNotFound
	}

	if IsValidation(err) {
		return err
	}

	return s.storeError(err)
}

// storeError wraps unrecognized repository failures as infrastructure faults
// so callers can distinguish retryable outages from business outcomes.
func (s *evaluationService) storeError(err error) error {
	s.logger.Error().Err(err).Msg("rating store operation failed")
	return errors.Join(ErrStoreUnavailable, err)
}

func (s *evaluationService) clean(input string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(input))
}

func (s *evaluationService) afterMutation(ctx context.Context, event string, rating models.Rating, actorID uint) {
	s.invalidateStats(ctx)

	if s.events == nil {
		return
	}

	s.events.Publish(ctx, RatingEvent{
		Event:           event,
		RatingID:        rating.ID,
		EvaluatorID:     rating.EvaluatorID,
		EvaluatedUserID: rating.EvaluatedUserID,
		Type:            string(rating.Type),
		Status:          string(rating.Status),
		ActorID:         actorID,
		OccurredAt:      s.now(),
	})
}

func (s *evaluationService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}
