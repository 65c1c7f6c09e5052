package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// RatingType identifies which party is evaluating which. It is fixed at
// creation and never mutated afterwards.
type RatingType string

const (
	// RatingTypeTutorToIntern is issued by the assigned tutor about their intern.
	RatingTypeTutorToIntern RatingType = "tutor_to_intern"
	// RatingTypeHRToIntern is issued by HR staff about any intern.
	RatingTypeHRToIntern RatingType = "hr_to_intern"
	// RatingTypeInternToTutor is issued by an intern about their assigned tutor.
	RatingTypeInternToTutor RatingType = "intern_to_tutor"
)

// RatingTypes lists every supported evaluation type.
func RatingTypes() []RatingType {
	return []RatingType{RatingTypeTutorToIntern, RatingTypeHRToIntern, RatingTypeInternToTutor}
}

// IsValid reports whether the type belongs to the closed set.
func (t RatingType) IsValid() bool {
	switch t {
	case RatingTypeTutorToIntern, RatingTypeHRToIntern, RatingTypeInternToTutor:
		return true
	}
	return false
}

// RatingStatus tracks the approval lifecycle of a rating.
type RatingStatus string

const (
	// RatingStatusDraft is the initial, freely editable state.
	RatingStatusDraft RatingStatus = "draft"
	// RatingStatusSubmitted means the rating awaits approval.
	RatingStatusSubmitted RatingStatus = "submitted"
	// RatingStatusApproved is terminal apart from the one-time response.
	RatingStatusApproved RatingStatus = "approved"
	// RatingStatusRejected is terminal and frees the uniqueness slot.
	RatingStatusRejected RatingStatus = "rejected"
)

// CriteriaKind tags which detailed-criteria shape a rating carries.
type CriteriaKind string

const (
	// CriteriaKindIntern is the eight-criterion shape used when an intern is evaluated.
	CriteriaKindIntern CriteriaKind = "intern"
	// CriteriaKindTutor is the seven-criterion shape used when an intern evaluates the tutor.
	CriteriaKindTutor CriteriaKind = "tutor"
)

// CriteriaKindFor returns the criteria shape that matches an evaluation type.
func CriteriaKindFor(t RatingType) CriteriaKind {
	if t == RatingTypeInternToTutor {
		return CriteriaKindTutor
	}
	return CriteriaKindIntern
}

// InternCriteria scores an intern across eight dimensions, each in [1,5].
type InternCriteria struct {
	TechnicalSkills    int `json:"technical_skills"`
	Communication      int `json:"communication"`
	Teamwork           int `json:"teamwork"`
	Initiative         int `json:"initiative"`
	Punctuality        int `json:"punctuality"`
	ProblemSolving     int `json:"problem_solving"`
	Adaptability       int `json:"adaptability"`
	OverallPerformance int `json:"overall_performance"`
}

func (c InternCriteria) values() map[string]int {
	return map[string]int{
		"technical_skills":    c.TechnicalSkills,
		"communication":       c.Communication,
		"teamwork":            c.Teamwork,
		"initiative":          c.Initiative,
		"punctuality":         c.Punctuality,
		"problem_solving":     c.ProblemSolving,
		"adaptability":        c.Adaptability,
		"overall_performance": c.OverallPerformance,
	}
}

// TutorCriteria scores tutor quality across seven dimensions, each in [1,5].
type TutorCriteria struct {
	Availability        int `json:"availability"`
	Guidance            int `json:"guidance"`
	Communication       int `json:"communication"`
	Expertise           int `json:"expertise"`
	Support             int `json:"support"`
	FeedbackQuality     int `json:"feedback_quality"`
	OverallSatisfaction int `json:"overall_satisfaction"`
}

func (c TutorCriteria) values() map[string]int {
	return map[string]int{
		"availability":         c.Availability,
		"guidance":             c.Guidance,
		"communication":        c.Communication,
		"expertise":            c.Expertise,
		"support":              c.Support,
		"feedback_quality":     c.FeedbackQuality,
		"overall_satisfaction": c.OverallSatisfaction,
	}
}

// DetailedScores is the tagged union of the two criteria shapes. Exactly one
// of Intern or Tutor is populated, selected by Kind.
type DetailedScores struct {
	Kind   CriteriaKind    `json:"kind"`
	Intern *InternCriteria `json:"intern,omitempty"`
	Tutor  *TutorCriteria  `json:"tutor,omitempty"`
}

// Validate checks the tag matches the populated variant and every criterion
// value sits inside [1,5].
func (d DetailedScores) Validate() error {
	var values map[string]int

	switch d.Kind {
	case CriteriaKindIntern:
		if d.Intern == nil || d.Tutor != nil {
			return fmt.Errorf("detailed scores tagged %q must carry exactly the intern criteria", d.Kind)
		}
		values = d.Intern.values()
	case CriteriaKindTutor:
		if d.Tutor == nil || d.Intern != nil {
			return fmt.Errorf("detailed scores tagged %q must carry exactly the tutor criteria", d.Kind)
		}
		values = d.Tutor.values()
	default:
		return fmt.Errorf("unknown detailed score kind %q", d.Kind)
	}

	for name, value := range values {
		if value < 1 || value > 5 {
			return fmt.Errorf("criterion %s must be between 1 and 5, got %d", name, value)
		}
	}

	return nil
}

// Rating is a single evaluation one user issues about another, carried through
// the draft/submitted/approved lifecycle.
type Rating struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	EvaluatorID           uint           `gorm:"not null;index" json:"evaluator_id"`
	EvaluatedUserID       uint           `gorm:"not null;index" json:"evaluated_user_id"`
	Type                  RatingType     `gorm:"size:32;not null" json:"type"`
	Status                RatingStatus   `gorm:"size:16;not null" json:"status"`
	Score                 *float64       `json:"score"`
	Comment               string         `gorm:"size:1000" json:"comment"`
	DetailedScores        datatypes.JSON `json:"detailed_scores"`
	RejectionReason       string         `gorm:"size:1000" json:"rejection_reason"`
	Response              *string        `gorm:"size:1000" json:"response"`
	ResponseDate          *time.Time     `json:"response_date"`
	EvaluationPeriodStart *time.Time     `json:"evaluation_period_start"`
	EvaluationPeriodEnd   *time.Time     `json:"evaluation_period_end"`
	StageReference        string         `gorm:"size:128" json:"stage_reference"`
	SubmittedAt           *time.Time     `json:"submitted_at"`
	ApprovedAt            *time.Time     `json:"approved_at"`
	ApprovedByUserID      *uint          `json:"approved_by_user_id"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	Evaluator             User           `gorm:"foreignKey:EvaluatorID" json:"evaluator"`
	EvaluatedUser         User           `gorm:"foreignKey:EvaluatedUserID" json:"evaluated_user"`
}

// Criteria decodes the stored detailed-scores document. Returns nil when the
// rating carries none, which is legal while still a draft.
func (r Rating) Criteria() (*DetailedScores, error) {
	if len(r.DetailedScores) == 0 {
		return nil, nil
	}

	var scores DetailedScores
	if err := json.Unmarshal(r.DetailedScores, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode detailed scores: %w", err)
	}

	return &scores, nil
}

// SetCriteria encodes and stores the detailed-scores document.
func (r *Rating) SetCriteria(scores *DetailedScores) error {
	if scores == nil {
		r.DetailedScores = nil
		return nil
	}

	payload, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("failed to encode detailed scores: %w", err)
	}

	r.DetailedScores = datatypes.JSON(payload)
	return nil
}

// HasResponse reports whether the evaluated user already responded.
func (r Rating) HasResponse() bool {
	return r.ResponseDate != nil
}

// HasPeriod reports whether the rating is scoped to an evaluation cycle.
func (r Rating) HasPeriod() bool {
	return r.EvaluationPeriodStart != nil && r.EvaluationPeriodEnd != nil
}

// IsTerminal reports whether the lifecycle can no longer leave the current state.
func (r Rating) IsTerminal() bool {
	return r.Status == RatingStatusApproved || r.Status == RatingStatusRejected
}
