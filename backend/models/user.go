package models

import (
	"time"

	"gorm.io/gorm"
)

// Model replaces gorm.Model so every entity serializes with snake_case keys.
type Model struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

const (
	RoleUser       = "user"
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

type User struct {
	Model
	Username     string `gorm:"unique;not null" json:"username"`
	Email        string `gorm:"unique;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"default:user" json:"role"` // user, student, instructor, admin
	Group        string `json:"group"`
	University   string `json:"university"`
}

// CanManageCourses reports whether the user may author content, grade and moderate.
func (u *User) CanManageCourses() bool {
	return u.Role == RoleAdmin || u.Role == RoleInstructor
}
