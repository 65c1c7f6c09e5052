package dto

import (
	"time"

	"github.com/internflow/internflow-api/internal/models"
)

// DetailedScoresPayload carries the tagged criteria union over the wire. The
// kind selects which variant must be present.
type DetailedScoresPayload struct {
	Kind   string                 `json:"kind" validate:"required,oneof=intern tutor"`
	Intern *InternCriteriaPayload `json:"intern,omitempty" validate:"required_if=Kind intern,excluded_if=Kind tutor"`
	Tutor  *TutorCriteriaPayload  `json:"tutor,omitempty" validate:"required_if=Kind tutor,excluded_if=Kind intern"`
}

// InternCriteriaPayload scores an intern across eight dimensions.
type InternCriteriaPayload struct {
	TechnicalSkills    int `json:"technical_skills" validate:"min=1,max=5"`
	Communication      int `json:"communication" validate:"min=1,max=5"`
	Teamwork           int `json:"teamwork" validate:"min=1,max=5"`
	Initiative         int `json:"initiative" validate:"min=1,max=5"`
	Punctuality        int `json:"punctuality" validate:"min=1,max=5"`
	ProblemSolving     int `json:"problem_solving" validate:"min=1,max=5"`
	Adaptability       int `json:"adaptability" validate:"min=1,max=5"`
	OverallPerformance int `json:"overall_performance" validate:"min=1,max=5"`
}

// TutorCriteriaPayload scores tutor quality across seven dimensions.
type TutorCriteriaPayload struct {
	Availability        int `json:"availability" validate:"min=1,max=5"`
	Guidance            int `json:"guidance" validate:"min=1,max=5"`
	Communication       int `json:"communication" validate:"min=1,max=5"`
	Expertise           int `json:"expertise" validate:"min=1,max=5"`
	Support             int `json:"support" validate:"min=1,max=5"`
	FeedbackQuality     int `json:"feedback_quality" validate:"min=1,max=5"`
	OverallSatisfaction int `json:"overall_satisfaction" validate:"min=1,max=5"`
}

// ToModel converts the payload into the persisted tagged union.
func (p *DetailedScoresPayload) ToModel() *models.DetailedScores {
	if p == nil {
		return nil
	}

	scores := &models.DetailedScores{Kind: models.CriteriaKind(p.Kind)}
	if p.Intern != nil {
		scores.Intern = &models.InternCriteria{
			TechnicalSkills:    p.Intern.TechnicalSkills,
			Communication:      p.Intern.Communication,
			Teamwork:           p.Intern.Teamwork,
			Initiative:         p.Intern.Initiative,
			Punctuality:        p.Intern.Punctuality,
			ProblemSolving:     p.Intern.ProblemSolving,
			Adaptability:       p.Intern.Adaptability,
			OverallPerformance: p.Intern.OverallPerformance,
		}
	}
	if p.Tutor != nil {
		scores.Tutor = &models.TutorCriteria{
			Availability:        p.Tutor.Availability,
			Guidance:            p.Tutor.Guidance,
			Communication:       p.Tutor.Communication,
			Expertise:           p.Tutor.Expertise,
			Support:             p.Tutor.Support,
			FeedbackQuality:     p.Tutor.FeedbackQuality,
			OverallSatisfaction: p.Tutor.OverallSatisfaction,
		}
	}

	return scores
}

func newDetailedScoresPayload(scores *models.DetailedScores) *DetailedScoresPayload {
	if scores == nil {
		return nil
	}

	payload := &DetailedScoresPayload{Kind: string(scores.Kind)}
	if scores.Intern != nil {
		payload.Intern = &InternCriteriaPayload{
			TechnicalSkills:    scores.Intern.TechnicalSkills,
			Communication:      scores.Intern.Communication,
			Teamwork:           scores.Intern.Teamwork,
			Initiative:         scores.Intern.Initiative,
			Punctuality:        scores.Intern.Punctuality,
			ProblemSolving:     scores.Intern.ProblemSolving,
			Adaptability:       scores.Intern.Adaptability,
			OverallPerformance: scores.Intern.OverallPerformance,
		}
	}
	if scores.Tutor != nil {
		payload.Tutor = &TutorCriteriaPayload{
			Availability:        scores.Tutor.Availability,
			Guidance:            scores.Tutor.Guidance,
			Communication:       scores.Tutor.Communication,
			Expertise:           scores.Tutor.Expertise,
			Support:             scores.Tutor.Support,
			FeedbackQuality:     scores.Tutor.FeedbackQuality,
			OverallSatisfaction: scores.Tutor.OverallSatisfaction,
		}
	}

	return payload
}

// RatingCreateRequest opens a draft evaluation. Only the target and type are
// mandatory; score, comment and criteria may arrive later, before submission.
type RatingCreateRequest struct {
	EvaluatedUserID       uint                   `json:"evaluated_user_id" validate:"required,gt=0"`
	Type                  string                 `json:"type" validate:"required,oneof=tutor_to_intern hr_to_intern intern_to_tutor"`
	Score                 *float64               `json:"score" validate:"omitempty,gte=1,lte=5"`
	Comment               string                 `json:"comment" validate:"omitempty,max=1000"`
	DetailedScores        *DetailedScoresPayload `json:"detailed_scores" validate:"omitempty"`
	EvaluationPeriodStart *time.Time             `json:"evaluation_period_start"`
	EvaluationPeriodEnd   *time.Time             `json:"evaluation_period_end"`
	StageReference        string                 `json:"stage_reference" validate:"omitempty,max=128"`
}

// RatingUpdateRequest edits a draft. Absent fields are left untouched.
type RatingUpdateRequest struct {
	Score                 *float64               `json:"score" validate:"omitempty,gte=1,lte=5"`
	Comment               *string                `json:"comment" validate:"omitempty,max=1000"`
	DetailedScores        *DetailedScoresPayload `json:"detailed_scores" validate:"omitempty"`
	EvaluationPeriodStart *time.Time             `json:"evaluation_period_start"`
	EvaluationPeriodEnd   *time.Time             `json:"evaluation_period_end"`
	StageReference        *string                `json:"stage_reference" validate:"omitempty,max=128"`
}

// RatingRejectRequest records why a submitted rating was turned down.
type RatingRejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// RatingRespondRequest carries the evaluated user's one-time response.
type RatingRespondRequest struct {
	Response string `json:"response" validate:"required,max=1000"`
}

// RatingFilter describes query string filters for listing ratings.
type RatingFilter struct {
	EvaluatorID     *uint      `query:"evaluator_id"`
	EvaluatedUserID *uint      `query:"evaluated_user_id"`
	Type            *string    `query:"type" validate:"omitempty,oneof=tutor_to_intern hr_to_intern intern_to_tutor"`
	Status          *string    `query:"status" validate:"omitempty,oneof=draft submitted approved rejected"`
	CreatedFrom     *time.Time `query:"created_from"`
	CreatedTo       *time.Time `query:"created_to"`
	ScoreMin        *float64   `query:"score_min" validate:"omitempty,gte=1,lte=5"`
	ScoreMax        *float64   `query:"score_max" validate:"omitempty,gte=1,lte=5"`
	StageReference  string     `query:"stage_reference"`
	SortBy          string     `query:"sort_by" validate:"omitempty,oneof=created_at score status type evaluator_name evaluated_name"`
	SortDesc        bool       `query:"sort_desc"`
	Page            int        `query:"page" validate:"omitempty,gte=1"`
	PageSize        int        `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// UserLite summarizes a user inside rating responses.
type UserLite struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// RatingResponse is the client-facing projection of a rating.
type RatingResponse struct {
	ID                    uint                   `json:"id"`
	EvaluatorID           uint                   `json:"evaluator_id"`
	EvaluatedUserID       uint                   `json:"evaluated_user_id"`
	Type                  string                 `json:"type"`
	Status                string                 `json:"status"`
	Score                 *float64               `json:"score"`
	Comment               string                 `json:"comment"`
	DetailedScores        *DetailedScoresPayload `json:"detailed_scores,omitempty"`
	RejectionReason       string                 `json:"rejection_reason,omitempty"`
	Response              *string                `json:"response,omitempty"`
	ResponseDate          *time.Time             `json:"response_date,omitempty"`
	EvaluationPeriodStart *time.Time             `json:"evaluation_period_start,omitempty"`
	EvaluationPeriodEnd   *time.Time             `json:"evaluation_period_end,omitempty"`
	StageReference        string                 `json:"stage_reference,omitempty"`
	SubmittedAt           *time.Time             `json:"submitted_at,omitempty"`
	ApprovedAt            *time.Time             `json:"approved_at,omitempty"`
	ApprovedByUserID      *uint                  `json:"approved_by_user_id,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	Evaluator             UserLite               `json:"evaluator"`
	EvaluatedUser         UserLite               `json:"evaluated_user"`
}

// RatingListResponse pages rating listings; TotalCount lets clients compute
// the page count themselves.
type RatingListResponse struct {
	Items      []RatingResponse `json:"items"`
	TotalCount int64            `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// NewRatingResponse converts a Rating model into a DTO.
func NewRatingResponse(model models.Rating) RatingResponse {
	response := RatingResponse{
		ID:                    model.ID,
		EvaluatorID:           model.EvaluatorID,
		EvaluatedUserID:       model.EvaluatedUserID,
		Type:                  string(model.Type),
		Status:                string(model.Status),
		Score:                 model.Score,
		Comment:               model.Comment,
		RejectionReason:       model.RejectionReason,
		Response:              model.Response,
		ResponseDate:          model.ResponseDate,
		EvaluationPeriodStart: model.EvaluationPeriodStart,
		EvaluationPeriodEnd:   model.EvaluationPeriodEnd,
		StageReference:        model.StageReference,
		SubmittedAt:           model.SubmittedAt,
		ApprovedAt:            model.ApprovedAt,
		ApprovedByUserID:      model.ApprovedByUserID,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
		Evaluator:             UserLite{ID: model.Evaluator.ID, Name: model.Evaluator.Name, Role: string(model.Evaluator.Role)},
		EvaluatedUser:         UserLite{ID: model.EvaluatedUser.ID, Name: model.EvaluatedUser.Name, Role: string(model.EvaluatedUser.Role)},
	}

	if criteria, err := model.Criteria(); err == nil {
		response.DetailedScores = newDetailedScoresPayload(criteria)
	}

	return response
}

// NewRatingResponseSlice converts a slice of models.
func NewRatingResponseSlice(ratings []models.Rating) []RatingResponse {
	responses := make([]RatingResponse, 0, len(ratings))
	for _, rating := range ratings {
		responses = append(responses, NewRatingResponse(rating))
	}

	return responses
}

// RatingTypeStats summarizes one evaluation type inside the statistics payload.
type RatingTypeStats struct {
	Count                int64      `json:"count"`
	AverageApprovedScore float64    `json:"average_approved_score"`
	LatestCreatedAt      *time.Time `json:"latest_created_at"`
}

// RatingStatsResponse is the aggregate view over a filtered slice of ratings.
type RatingStatsResponse struct {
	Total                int64                      `json:"total"`
	AverageApprovedScore float64                    `json:"average_approved_score"`
	PendingCount         int64                      `json:"pending_count"`
	ApprovedCount        int64                      `json:"approved_count"`
	DraftCount           int64                      `json:"draft_count"`
	Distribution         map[int]int64              `json:"distribution"`
	PerTypeStats         map[string]RatingTypeStats `json:"per_type_stats"`
}
