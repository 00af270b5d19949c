package models

import (
	"fmt"
	"time"
)

type ProgressType string

const (
	ProgressLesson     ProgressType = "lesson"
	ProgressQuiz       ProgressType = "quiz"
	ProgressAssignment ProgressType = "assignment"
	ProgressModule     ProgressType = "module"
	ProgressCourse     ProgressType = "course"
)

func (t ProgressType) Valid() bool {
	switch t {
	case ProgressLesson, ProgressQuiz, ProgressAssignment, ProgressModule, ProgressCourse:
		return true
	}
	return false
}

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
	ProgressSkipped    ProgressStatus = "skipped"
)

// CourseProgress tracks one unit for one enrollment. Exactly one of the unit
// reference columns matching ProgressType is set; UnitKey mirrors it so the
// store can enforce one row per (enrollment, unit).
type CourseProgress struct {
	Model
	EnrollmentID         uint           `gorm:"not null;uniqueIndex:idx_progress_enrollment_unit" json:"enrollment_id"`
	UnitKey              string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_progress_enrollment_unit" json:"unit_key"`
	CourseID             uint           `gorm:"not null;index" json:"course_id"`
	UserID               uint           `gorm:"not null;index" json:"user_id"`
	ModuleID             *uint          `json:"module_id,omitempty"`
	LessonID             *uint          `json:"lesson_id,omitempty"`
	QuizID               *uint          `json:"quiz_id,omitempty"`
	AssignmentID         *uint          `json:"assignment_id,omitempty"`
	ProgressType         ProgressType   `gorm:"type:varchar(16);not null" json:"progress_type"`
	Status               ProgressStatus `gorm:"type:varchar(16);not null" json:"status"`
	CompletionPercentage float64        `gorm:"not null;default:0" json:"completion_percentage"`
	TimeSpentMinutes     int            `gorm:"default:0" json:"time_spent_minutes"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	LastAccessedAt       *time.Time     `json:"last_accessed_at,omitempty"`
	Score                *float64       `json:"score,omitempty"`
	MaxScore             *float64       `json:"max_score,omitempty"`
	Attempts             int            `gorm:"default:0" json:"attempts"`
	MaxAttempts          *int           `json:"max_attempts,omitempty"`
	IsMandatory          bool           `json:"is_mandatory"`
	Weight               float64        `gorm:"type:decimal(6,2);default:1.00" json:"weight"`
	Notes                string         `json:"notes,omitempty"`
}

// UnitKey renders the (type, id) pair stored in CourseProgress.UnitKey.
func UnitKey(t ProgressType, id uint) string {
	return fmt.Sprintf("%s:%d", t, id)
}
