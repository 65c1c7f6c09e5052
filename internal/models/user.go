package models

import "time"

// Role describes a user's function on the platform as far as the evaluation
// engine is concerned.
type Role string

const (
	// RoleIntern participates in an internship and may rate their tutor.
	RoleIntern Role = "intern"
	// RoleTutor supervises interns and rates the ones assigned to them.
	RoleTutor Role = "tutor"
	// RoleHR may rate any intern and approves submitted ratings.
	RoleHR Role = "hr"
	// RoleAdmin administers the platform and may delete any rating.
	RoleAdmin Role = "admin"
)

// User mirrors the columns of the platform's user table this engine reads.
// Full user management lives outside this service.
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	Email           string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role            Role      `gorm:"size:32;not null" json:"role"`
	AssignedTutorID *uint     `gorm:"index" json:"assigned_tutor_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
