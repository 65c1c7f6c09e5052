package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/internflow/internflow-api/internal/models"
)

// UserDirectory exposes the two facts the evaluation engine needs about users.
// Answers always reflect the current row, never a cached assignment, because
// tutor assignments change between requests.
type UserDirectory interface {
	Role(ctx context.Context, userID uint) (models.Role, error)
	AssignedTutor(ctx context.Context, internID uint) (*uint, error)
}

type userDirectory struct {
	db *gorm.DB
}

// NewUserDirectory builds a directory reading the platform's user table.
func NewUserDirectory(db *gorm.DB) UserDirectory {
	return &userDirectory{db: db}
}

func (d *userDirectory) Role(ctx context.Context, userID uint) (models.Role, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Select("id", "role").First(&user, userID).Error; err != nil {
		return "", err
	}

	return user.Role, nil
}

func (d *userDirectory) AssignedTutor(ctx context.Context, internID uint) (*uint, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Select("id", "assigned_tutor_id").First(&user, internID).Error; err != nil {
		return nil, err
	}

	return user.AssignedTutorID, nil
}
