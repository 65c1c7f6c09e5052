package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/internflow/internflow-api/internal/models"
)

type fakeDirectory struct {
	roles  map[uint]models.Role
	tutors map[uint]*uint
}

func (d *fakeDirectory) Role(_ context.Context, userID uint) (models.Role, error) {
	role, ok := d.roles[userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func (d *fakeDirectory) AssignedTutor(_ context.Context, internID uint) (*uint, error) {
	if _, ok := d.roles[internID]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return d.tutors[internID], nil
}

func uintPtr(v uint) *uint { return &v }

func TestCanRateTable(t *testing.T) {
	cases := []struct {
		name          string
		evaluatorRole models.Role
		evaluatedRole models.Role
		ratingType    models.RatingType
		evaluatorID   uint
		evaluatedID   uint
		facts         RelationshipFacts
		want          bool
	}{
		{
			name:          "tutor rates own intern",
			evaluatorRole: models.RoleTutor,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingTypeTutorToIntern,
			evaluatorID:   1,
			evaluatedID:   10,
			facts:         RelationshipFacts{EvaluatedAssignedTutorID: uintPtr(1)},
			want:          true,
		},
		{
			name:          "tutor rates someone else's intern",
			evaluatorRole: models.RoleTutor,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingTypeTutorToIntern,
			evaluatorID:   1,
			evaluatedID:   10,
			facts:         RelationshipFacts{EvaluatedAssignedTutorID: uintPtr(2)},
			want:          false,
		},
		{
			name:          "tutor rates unassigned intern",
			evaluatorRole: models.RoleTutor,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingTypeTutorToIntern,
			evaluatorID:   1,
			evaluatedID:   10,
			facts:         RelationshipFacts{},
			want:          false,
		},
		{
			name:          "hr rates any intern",
			evaluatorRole: models.RoleHR,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingTypeHRToIntern,
			evaluatorID:   3,
			evaluatedID:   10,
			want:          true,
		},
		{
			name:          "hr cannot use tutor channel",
			evaluatorRole: models.RoleHR,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingTypeTutorToIntern,
			evaluatorID:   3,
			evaluatedID:   10,
			facts:         RelationshipFacts{EvaluatedAssignedTutorID: uintPtr(3)},
			want:          false,
		},
		{
			name:          "intern rates own tutor",
			evaluatorRole: models.RoleIntern,
			evaluatedRole: models.RoleTutor,
			ratingType:    models.RatingTypeInternToTutor,
			evaluatorID:   10,
			evaluatedID:   1,
			facts:         RelationshipFacts{EvaluatorAssignedTutorID: uintPtr(1)},
			want:          true,
		},
		{
			name:          "intern rates a different tutor",
			evaluatorRole: models.RoleIntern,
			evaluatedRole: models.RoleTutor,
			ratingType:    models.RatingTypeInternToTutor,
			evaluatorID:   10,
			evaluatedID:   2,
			facts:         RelationshipFacts{EvaluatorAssignedTutorID: uintPtr(1)},
			want:          false,
		},
		{
			name:          "intern cannot rate an intern",
			evaluatorRole: models.RoleIntern,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingTypeInternToTutor,
			evaluatorID:   10,
			evaluatedID:   11,
			facts:         RelationshipFacts{EvaluatorAssignedTutorID: uintPtr(11)},
			want:          false,
		},
		{
			name:          "unknown evaluation type",
			evaluatorRole: models.RoleAdmin,
			evaluatedRole: models.RoleIntern,
			ratingType:    models.RatingType("admin_to_intern"),
			evaluatorID:   5,
			evaluatedID:   10,
			want:          false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanRate(tc.evaluatorRole, tc.evaluatedRole, tc.ratingType, tc.evaluatorID, tc.evaluatedID, tc.facts)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEligibilityServiceValidate(t *testing.T) {
	directory := &fakeDirectory{
		roles: map[uint]models.Role{
			1:  models.RoleTutor,
			2:  models.RoleTutor,
			3:  models.RoleHR,
			10: models.RoleIntern,
			11: models.RoleIntern,
		},
		tutors: map[uint]*uint{
			10: uintPtr(2),
			11: uintPtr(1),
		},
	}
	svc := NewEligibilityService(directory, testLogger())

	t.Run("tutor denied for intern assigned elsewhere", func(t *testing.T) {
		err := svc.Validate(context.Background(), 1, 10, models.RatingTypeTutorToIntern)
		require.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("tutor allowed for own intern", func(t *testing.T) {
		require.NoError(t, svc.Validate(context.Background(), 1, 11, models.RatingTypeTutorToIntern))
	})

	t.Run("hr allowed for any intern", func(t *testing.T) {
		require.NoError(t, svc.Validate(context.Background(), 3, 10, models.RatingTypeHRToIntern))
		require.NoError(t, svc.Validate(context.Background(), 3, 11, models.RatingTypeHRToIntern))
	})

	t.Run("intern allowed for assigned tutor only", func(t *testing.T) {
		require.NoError(t, svc.Validate(context.Background(), 11, 1, models.RatingTypeInternToTutor))
		require.ErrorIs(t, svc.Validate(context.Background(), 11, 2, models.RatingTypeInternToTutor), ErrPermissionDenied)
	})

	t.Run("unknown user surfaces not found", func(t *testing.T) {
		err := svc.Validate(context.Background(), 1, 999, models.RatingTypeTutorToIntern)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("unsupported type denied before lookups", func(t *testing.T) {
		err := svc.Validate(context.Background(), 1, 10, models.RatingType("peer_to_peer"))
		require.ErrorIs(t, err, ErrPermissionDenied)
	})
}
