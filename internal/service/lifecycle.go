package service

import (
	"strings"
	"time"

	"github.com/internflow/internflow-api/internal/models"
)

// LifecycleEvent names a requested edge of the rating state machine.
type LifecycleEvent string

const (
	EventSubmit  LifecycleEvent = "submit"
	EventApprove LifecycleEvent = "approve"
	EventReject  LifecycleEvent = "reject"
	EventRespond LifecycleEvent = "respond"
	EventUpdate  LifecycleEvent = "update"
	EventDelete  LifecycleEvent = "delete"
)

const maxCommentLength = 1000

// lifecycleTransitions is the explicit state × event table. A missing entry is
// an illegal edge, reported as InvalidTransitionError; nothing falls through.
var lifecycleTransitions = map[models.RatingStatus]map[LifecycleEvent]models.RatingStatus{
	models.RatingStatusDraft: {
		EventUpdate: models.RatingStatusDraft,
		EventSubmit: models.RatingStatusSubmitted,
		EventDelete: models.RatingStatusDraft,
	},
	models.RatingStatusSubmitted: {
		EventApprove: models.RatingStatusApproved,
		EventReject:  models.RatingStatusRejected,
	},
	models.RatingStatusApproved: {
		EventRespond: models.RatingStatusApproved,
	},
}

// NextStatus resolves the transition table for one edge.
func NextStatus(from models.RatingStatus, event LifecycleEvent) (models.RatingStatus, error) {
	if edges, ok := lifecycleTransitions[from]; ok {
		if to, ok := edges[event]; ok {
			return to, nil
		}
	}

	return "", &InvalidTransitionError{From: from, Requested: event}
}

// canApprove reports whether the role carries approver authority. HR approves
// every evaluation type; administrators can stand in for an absent approver.
func canApprove(role models.Role) bool {
	return role == models.RoleHR || role == models.RoleAdmin
}

// validateForSubmission runs the strict checks deferred from creation: drafts
// may be partially filled, submissions may not.
func validateForSubmission(rating *models.Rating) error {
	comment := strings.TrimSpace(rating.Comment)
	if comment == "" {
		return validationErrorf("comment is required before submission")
	}

	if len(comment) > maxCommentLength {
		return validationErrorf("comment must not exceed %d characters", maxCommentLength)
	}

	if rating.Score == nil {
		return validationErrorf("score is required before submission")
	}

	if *rating.Score < 1 || *rating.Score > 5 {
		return validationErrorf("score must be between 1 and 5, got %g", *rating.Score)
	}

	criteria, err := rating.Criteria()
	if err != nil {
		return validationErrorf("detailed scores are malformed: %v", err)
	}

	if criteria != nil {
		if criteria.Kind != models.CriteriaKindFor(rating.Type) {
			return validationErrorf("detailed scores of kind %q do not match evaluation type %q", criteria.Kind, rating.Type)
		}
		if err := criteria.Validate(); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
	}

	return nil
}

// validatePeriod enforces the paired-dates invariant shared by create and
// draft update.
func validatePeriod(start, end *time.Time) error {
	if (start == nil) != (end == nil) {
		return validationErrorf("evaluation period start and end must both be set or both be empty")
	}

	if start != nil && !start.Before(*end) {
		return validationErrorf("evaluation period start must precede its end")
	}

	return nil
}

func applySubmit(rating *models.Rating, now time.Time) {
	rating.Status = models.RatingStatusSubmitted
	rating.SubmittedAt = &now
}

func applyApprove(rating *models.Rating, approverID uint, now time.Time) {
	rating.Status = models.RatingStatusApproved
	rating.ApprovedAt = &now
	rating.ApprovedByUserID = &approverID
}

func applyReject(rating *models.Rating, approverID uint, reason string, now time.Time) {
	rating.Status = models.RatingStatusRejected
	rating.RejectionReason = reason
	rating.ApprovedAt = &now
	rating.ApprovedByUserID = &approverID
}

func applyRespond(rating *models.Rating, response string, now time.Time) {
	rating.Response = &response
	rating.ResponseDate = &now
}
