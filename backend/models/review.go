package models

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	return s == ReviewPending || s == ReviewApproved || s == ReviewRejected
}

type Review struct {
	Model
	UserID               uint         `gorm:"not null;uniqueIndex:idx_review_user_course" json:"user_id"`
	CourseID             uint         `gorm:"not null;uniqueIndex:idx_review_user_course;index" json:"course_id"`
	Rating               int          `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Title                string       `json:"title"`
	Comment              string       `gorm:"type:text" json:"comment"`
	Pros                 string       `gorm:"type:text" json:"pros,omitempty"`
	Cons                 string       `gorm:"type:text" json:"cons,omitempty"`
	WouldRecommend       bool         `json:"would_recommend"`
	Difficulty           string       `json:"difficulty,omitempty"`
	InstructorRating     *int         `json:"instructor_rating,omitempty"`
	ContentQuality       *int         `json:"content_quality,omitempty"`
	ValueForMoney        *int         `json:"value_for_money,omitempty"`
	CompletionPercentage int          `json:"completion_percentage"`
	IsAnonymous          bool         `json:"is_anonymous"`
	Language             string       `json:"language,omitempty"`
	HelpfulVotes         int          `gorm:"not null;default:0" json:"helpful_votes"`
	Status               ReviewStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ModeratorNotes       string       `json:"moderator_notes,omitempty"`
}
