package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
)

// QuizSubmission is one attempt. The unique index keeps attempt numbers from
// colliding when two submissions race.
type QuizSubmission struct {
	Model
	UserID             uint             `gorm:"not null;uniqueIndex:idx_quiz_attempt" json:"user_id"`
	QuizID             uint             `gorm:"not null;uniqueIndex:idx_quiz_attempt;index" json:"quiz_id"`
	AttemptNumber      int              `gorm:"not null;uniqueIndex:idx_quiz_attempt" json:"attempt_number"`
	LessonID           *uint            `json:"lesson_id,omitempty"`
	CourseID           uint             `gorm:"not null;index" json:"course_id"`
	SelectedAnswer     int              `json:"selected_answer"`
	SubmittedAt        time.Time        `json:"submitted_at"`
	Score              float64          `json:"score"`
	MaxScore           float64          `json:"max_score"`
	Percentage         float64          `json:"percentage"`
	IsPassed           bool             `json:"is_passed"`
	Status             SubmissionStatus `gorm:"type:varchar(16);not null" json:"status"`
	GradedAt           *time.Time       `json:"graded_at,omitempty"`
	GradedBy           *uint            `json:"graded_by,omitempty"`
	InstructorFeedback string           `json:"instructor_feedback,omitempty"`
}

// AssignmentSubmission keeps the raw score and the late penalty separately so
// a graded result can always be traced back to what the grader entered.
type AssignmentSubmission struct {
	Model
	UserID             uint             `gorm:"not null;uniqueIndex:idx_assignment_attempt" json:"user_id"`
	AssignmentID       uint             `gorm:"not null;uniqueIndex:idx_assignment_attempt;index" json:"assignment_id"`
	AttemptNumber      int              `gorm:"not null;uniqueIndex:idx_assignment_attempt" json:"attempt_number"`
	LessonID           *uint            `json:"lesson_id,omitempty"`
	CourseID           uint             `gorm:"not null;index" json:"course_id"`
	Payload            datatypes.JSON   `json:"payload"`
	SubmittedAt        time.Time        `json:"submitted_at"`
	IsLate             bool             `json:"is_late"`
	LatePenaltyPercent float64          `json:"late_penalty_percent"`
	RawScore           *float64         `json:"raw_score,omitempty"`
	Score              *float64         `json:"score,omitempty"`
	MaxScore           float64          `json:"max_score"`
	Percentage         *float64         `json:"percentage,omitempty"`
	IsPassed           bool             `json:"is_passed"`
	Status             SubmissionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	GradedAt           *time.Time       `json:"graded_at,omitempty"`
	GradedBy           *uint            `json:"graded_by,omitempty"`
	InstructorFeedback string           `json:"instructor_feedback,omitempty"`
}
