package models

import (
	"time"

	"gorm.io/datatypes"
)

type Course struct {
	Model
	Title          string       `gorm:"not null" json:"title"`
	ShortDesc      string       `json:"short_desc"`
	Description    string       `json:"description"`
	Difficulty     string       `json:"difficulty"` // beginner, intermediate, advanced
	RecommendedFor string       `json:"recommended_for"`
	University     string       `json:"university"`
	Topic          string       `json:"topic"`
	AuthorID       uint         `gorm:"index" json:"author_id"`
	LogoURL        string       `json:"logo_url"`
	IsFree         bool         `gorm:"default:false" json:"is_free"`
	Price          float64      `gorm:"default:0" json:"price"`
	IsPublished    bool         `gorm:"default:false" json:"is_published"`
	Modules        []Module     `json:"modules,omitempty"`
	Lessons        []Lesson     `json:"lessons,omitempty"`
	Quizzes        []Quiz       `json:"quizzes,omitempty"`
	Assignments    []Assignment `json:"assignments,omitempty"`
}

// Free reports whether enrolling costs nothing.
func (c *Course) Free() bool {
	return c.IsFree || c.Price <= 0
}

type Module struct {
	Model
	CourseID      uint   `gorm:"index;not null" json:"course_id"`
	Title         string `gorm:"not null" json:"title"`
	Description   string `json:"description"`
	SequenceOrder int    `json:"sequence_order"`
}

type Lesson struct {
	Model
	CourseID      uint    `gorm:"index;not null" json:"course_id"`
	ModuleID      *uint   `gorm:"index" json:"module_id,omitempty"`
	Title         string  `gorm:"not null" json:"title"`
	Description   string  `json:"description"`
	Content       string  `json:"content"`
	SequenceOrder int     `json:"sequence_order"`
	IsMandatory   bool    `json:"is_mandatory"`
	Weight        float64 `gorm:"type:decimal(6,2);default:1.00" json:"weight"`
}

type Quiz struct {
	Model
	CourseID           uint           `gorm:"index;not null" json:"course_id"`
	ModuleID           *uint          `gorm:"index" json:"module_id,omitempty"`
	LessonID           *uint          `gorm:"index" json:"lesson_id,omitempty"`
	Title              string         `gorm:"not null" json:"title"`
	Question           string         `json:"question"`
	Options            datatypes.JSON `json:"options"` // JSON array of option strings
	CorrectAnswerIndex int            `json:"-"`
	Points             float64        `gorm:"default:1" json:"points"`
	PassRequired       bool           `gorm:"default:false" json:"pass_required"`
	MaxAttempts        *int           `json:"max_attempts,omitempty"`
	SequenceOrder      int            `json:"sequence_order"`
	IsMandatory        bool           `json:"is_mandatory"`
	Weight             float64        `gorm:"type:decimal(6,2);default:1.00" json:"weight"`
}

type Assignment struct {
	Model
	CourseID              uint           `gorm:"index;not null" json:"course_id"`
	ModuleID              *uint          `gorm:"index" json:"module_id,omitempty"`
	LessonID              *uint          `gorm:"index" json:"lesson_id,omitempty"`
	Title                 string         `gorm:"not null" json:"title"`
	Instructions          string         `json:"instructions"`
	MaxScore              float64        `gorm:"default:100" json:"max_score"`
	PassingScore          *float64       `json:"passing_score,omitempty"`
	DueDate               *time.Time     `json:"due_date,omitempty"`
	LateSubmissionAllowed bool           `gorm:"default:false" json:"late_submission_allowed"`
	LatePenaltyPercent    float64        `gorm:"default:0" json:"late_penalty_percent"`
	MaxAttempts           *int           `json:"max_attempts,omitempty"`
	AutoGrade             bool           `gorm:"default:false" json:"auto_grade"`
	AnswerKey             datatypes.JSON `json:"-"` // question key -> expected answer
	SequenceOrder         int            `json:"sequence_order"`
	IsMandatory           bool           `json:"is_mandatory"`
	Weight                float64        `gorm:"type:decimal(6,2);default:1.00" json:"weight"`
}
