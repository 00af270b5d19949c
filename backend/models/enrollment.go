package models

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentPartial     PaymentStatus = "partial"
	PaymentFree        PaymentStatus = "free"
	PaymentScholarship PaymentStatus = "scholarship"
)

// CourseEnrollment is unique per (user, course). Progress is a cached value
// written only by the progress tracker.
type CourseEnrollment struct {
	Model
	CourseID            uint             `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	UserID              uint             `gorm:"not null;uniqueIndex:idx_enrollment_user_course;index" json:"user_id"`
	EnrollmentDate      time.Time        `json:"enrollment_date"`
	Status              EnrollmentStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Progress            int              `gorm:"not null;default:0" json:"progress"`
	LastAccessedAt      *time.Time       `json:"last_accessed_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	CertificateIssued   bool             `gorm:"default:false" json:"certificate_issued"`
	CertificateURL      string           `json:"certificate_url,omitempty"`
	PaymentStatus       PaymentStatus    `gorm:"type:varchar(16);not null" json:"payment_status"`
	AmountPaid          float64          `gorm:"default:0" json:"amount_paid"`
	PreferredContact    string           `json:"preferred_contact,omitempty"`
	CertificateLanguage string           `json:"certificate_language,omitempty"`
}
