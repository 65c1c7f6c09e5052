package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/repository"
)

// relationship names the assignment fact a rule requires between the two users.
type relationship int

const (
	// relationNone: no assignment constraint beyond the role pair.
	relationNone relationship = iota
	// relationEvaluatedAssignedToEvaluator: the evaluated user's assigned tutor
	// must be the evaluator (tutor rating their own intern).
	relationEvaluatedAssignedToEvaluator
	// relationEvaluatorAssignedToEvaluated: the evaluator's assigned tutor must
	// be the evaluated user (intern rating their own tutor).
	relationEvaluatorAssignedToEvaluated
)

type eligibilityRule struct {
	evaluatorRole models.Role
	evaluatedRole models.Role
	relation      relationship
	description   string
}

// eligibilityRules is the closed permission table. A type missing from it is
// denied outright; there is no fallback rule.
var eligibilityRules = map[models.RatingType]eligibilityRule{
	models.RatingTypeTutorToIntern: {
		evaluatorRole: models.RoleTutor,
		evaluatedRole: models.RoleIntern,
		relation:      relationEvaluatedAssignedToEvaluator,
		description:   "a tutor may only rate interns assigned to them",
	},
	models.RatingTypeHRToIntern: {
		evaluatorRole: models.RoleHR,
		evaluatedRole: models.RoleIntern,
		relation:      relationNone,
		description:   "only HR staff may issue HR evaluations of interns",
	},
	models.RatingTypeInternToTutor: {
		evaluatorRole: models.RoleIntern,
		evaluatedRole: models.RoleTutor,
		relation:      relationEvaluatorAssignedToEvaluated,
		description:   "an intern may only rate their assigned tutor",
	},
}

// RelationshipFacts carries the live assignment data a rule is evaluated against.
type RelationshipFacts struct {
	EvaluatorAssignedTutorID *uint
	EvaluatedAssignedTutorID *uint
}

// CanRate is the pure decision function of the permission table. It consults
// only its arguments and performs no I/O.
func CanRate(evaluatorRole, evaluatedRole models.Role, ratingType models.RatingType, evaluatorID, evaluatedUserID uint, facts RelationshipFacts) bool {
	rule, ok := eligibilityRules[ratingType]
	if !ok {
		return false
	}

	if evaluatorRole != rule.evaluatorRole || evaluatedRole != rule.evaluatedRole {
		return false
	}

	switch rule.relation {
	case relationEvaluatedAssignedToEvaluator:
		return facts.EvaluatedAssignedTutorID != nil && *facts.EvaluatedAssignedTutorID == evaluatorID
	case relationEvaluatorAssignedToEvaluated:
		return facts.EvaluatorAssignedTutorID != nil && *facts.EvaluatorAssignedTutorID == evaluatedUserID
	default:
		return true
	}
}

// EligibilityService validates who may rate whom, fetching role and assignment
// facts from the user directory at call time.
type EligibilityService interface {
	Validate(ctx context.Context, evaluatorID, evaluatedUserID uint, ratingType models.RatingType) error
}

type eligibilityService struct {
	directory repository.UserDirectory
	logger    zerolog.Logger
}

// NewEligibilityService constructs the eligibility validator.
func NewEligibilityService(directory repository.UserDirectory, logger zerolog.Logger) EligibilityService {
	return &eligibilityService{
		directory: directory,
		logger:    logger.With().Str("component", "eligibility_service").Logger(),
	}
}

func (s *eligibilityService) Validate(ctx context.Context, evaluatorID, evaluatedUserID uint, ratingType models.RatingType) error {
	rule, ok := eligibilityRules[ratingType]
	if !ok {
		return fmt.Errorf("%w: unsupported evaluation type %q", ErrPermissionDenied, ratingType)
	}

	evaluatorRole, err := s.roleOf(ctx, evaluatorID)
	if err != nil {
		return err
	}

	evaluatedRole, err := s.roleOf(ctx, evaluatedUserID)
	if err != nil {
		return err
	}

	facts := RelationshipFacts{}
	switch rule.relation {
	case relationEvaluatedAssignedToEvaluator:
		tutorID, err := s.directory.AssignedTutor(ctx, evaluatedUserID)
		if err != nil {
			return err
		}
		facts.EvaluatedAssignedTutorID = tutorID
	case relationEvaluatorAssignedToEvaluated:
		tutorID, err := s.directory.AssignedTutor(ctx, evaluatorID)
		if err != nil {
			return err
		}
		facts.EvaluatorAssignedTutorID = tutorID
	}

	if !CanRate(evaluatorRole, evaluatedRole, ratingType, evaluatorID, evaluatedUserID, facts) {
		s.logger.Debug().
			Uint("evaluator_id", evaluatorID).
			Uint("evaluated_user_id", evaluatedUserID).
			Str("type", string(ratingType)).
			Msg("eligibility check denied")
		return fmt.Errorf("%w: %s", ErrPermissionDenied, rule.description)
	}

	return nil
}

func (s *eligibilityService) roleOf(ctx context.Context, userID uint) (models.Role, error) {
	role, err := s.directory.Role(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
		}
		return "", err
	}

	return role, nil
}
