package services

import (
	"context"
	"fmt"
	"time"

	"learnprogress/backend/models"
	"learnprogress/backend/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EnrollmentDetails struct {
	PreferredContact    string `json:"preferred_contact" validate:"omitempty,max=255"`
	CertificateLanguage string `json:"certificate_language" validate:"omitempty,max=16"`
}

// EnrollResult carries the enrollment plus whether this call promoted the user
// from a casual browser to a student.
type EnrollResult struct {
	Enrollment  *models.CourseEnrollment `json:"enrollment"`
	RoleUpdated bool                     `json:"role_updated"`
}

// courseCompletionReader reports the persisted course-level completion of an enrollment.
type courseCompletionReader interface {
	CourseRowCompletion(ctx context.Context, enrollmentID uint) (float64, error)
}

type EnrollmentManager struct {
	store      *store.Store
	completion courseCompletionReader
	opts       Options
	now        func() time.Time
	log        *zap.Logger
}

func (m *EnrollmentManager) Enroll(ctx context.Context, userID, courseID uint, details EnrollmentDetails) (*EnrollResult, error) {
	if err := Validate(details); err != nil {
		return nil, err
	}
	user, err := m.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, notFound("user", userID)
	}
	course, err := m.store.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", courseID)
	}

	existing, err := m.store.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if existing != nil {
		return m.existingEnrollment(ctx, user, existing)
	}

	payment := models.PaymentPending
	if course.Free() {
		payment = models.PaymentFree
	}
	enrollment := &models.CourseEnrollment{
		CourseID:            courseID,
		UserID:              userID,
		EnrollmentDate:      m.now(),
		Status:              models.EnrollmentActive,
		PaymentStatus:       payment,
		PreferredContact:    details.PreferredContact,
		CertificateLanguage: details.CertificateLanguage,
	}
	result := &EnrollResult{Enrollment: enrollment}
	err = m.store.Transaction(ctx, func(ctx context.Context) error {
		prior, err := m.store.Enrollments.CountByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("count enrollments: %w", err)
		}
		if err := m.store.Enrollments.Create(ctx, enrollment); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		if prior == 0 && user.Role == models.RoleUser {
			if err := m.store.Users.UpdateRole(ctx, userID, models.RoleStudent); err != nil {
				return fmt.Errorf("promote user: %w", err)
			}
			result.RoleUpdated = true
		}
		return nil
	})
	if store.IsDuplicate(err) {
		// Lost a race with a concurrent enroll for the same pair.
		existing, ferr := m.store.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
		if ferr != nil || existing == nil {
			return nil, err
		}
		return m.existingEnrollment(ctx, user, existing)
	}
	if err != nil {
		return nil, err
	}

	m.log.Info("user enrolled",
		zap.Uint("user_id", userID),
		zap.Uint("course_id", courseID),
		zap.Uint("enrollment_id", enrollment.ID),
		zap.String("payment_status", string(payment)),
		zap.Bool("role_updated", result.RoleUpdated),
	)
	return result, nil
}

// existingEnrollment answers a repeated enroll. A learner still holding the
// plain user role is promoted here as well.
func (m *EnrollmentManager) existingEnrollment(ctx context.Context, user *models.User, e *models.CourseEnrollment) (*EnrollResult, error) {
	switch e.Status {
	case models.EnrollmentActive, models.EnrollmentCompleted:
	default:
		return nil, transition("enrollment %d is %s", e.ID, e.Status)
	}
	res := &EnrollResult{Enrollment: e}
	if user.Role == models.RoleUser {
		if err := m.store.Users.UpdateRole(ctx, user.ID, models.RoleStudent); err != nil {
			return nil, fmt.Errorf("promote user: %w", err)
		}
		res.RoleUpdated = true
		m.log.Info("enrolled user promoted on retry", zap.Uint("user_id", user.ID), zap.Uint("enrollment_id", e.ID))
	}
	return res, ErrAlreadyEnrolled
}

// GetEnrollment returns nil when the user is not enrolled.
func (m *EnrollmentManager) GetEnrollment(ctx context.Context, userID, courseID uint) (*models.CourseEnrollment, error) {
	return m.store.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
}

func (m *EnrollmentManager) GetEnrollmentByID(ctx context.Context, enrollmentID uint) (*models.CourseEnrollment, error) {
	return m.store.Enrollments.Get(ctx, enrollmentID)
}

func (m *EnrollmentManager) ListEnrollmentsByUser(ctx context.Context, userID uint) ([]models.CourseEnrollment, error) {
	return m.store.Enrollments.ListByUser(ctx, userID)
}

func (m *EnrollmentManager) ListEnrollmentsByCourse(ctx context.Context, courseID uint) ([]models.CourseEnrollment, error) {
	return m.store.Enrollments.ListByCourse(ctx, courseID)
}

var enrollmentTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentActive:    {models.EnrollmentCompleted, models.EnrollmentDropped, models.EnrollmentSuspended},
	models.EnrollmentSuspended: {models.EnrollmentActive},
}

func canTransition(from, to models.EnrollmentStatus) bool {
	for _, s := range enrollmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (m *EnrollmentManager) UpdateStatus(ctx context.Context, enrollmentID uint, status models.EnrollmentStatus) (*models.CourseEnrollment, error) {
	switch status {
	case models.EnrollmentActive, models.EnrollmentCompleted, models.EnrollmentDropped, models.EnrollmentSuspended:
	default:
		return nil, invalid("status", "must be one of: active completed dropped suspended")
	}
	e, err := m.mustGet(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !canTransition(e.Status, status) {
		return nil, transition("enrollment %d cannot move from %s to %s", e.ID, e.Status, status)
	}
	if status == models.EnrollmentCompleted {
		pct, err := m.completion.CourseRowCompletion(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if pct < 100 {
			return nil, transition("enrollment %d is %.2f%% complete", e.ID, pct)
		}
		return m.complete(ctx, e)
	}

	if err := m.store.Enrollments.Update(ctx, e.ID, map[string]interface{}{"status": status}); err != nil {
		return nil, fmt.Errorf("update enrollment status: %w", err)
	}
	m.log.Info("enrollment status changed",
		zap.Uint("enrollment_id", e.ID),
		zap.String("from", string(e.Status)),
		zap.String("to", string(status)),
	)
	return m.mustGet(ctx, e.ID)
}

// complete moves an active enrollment to completed without re-checking progress.
func (m *EnrollmentManager) complete(ctx context.Context, e *models.CourseEnrollment) (*models.CourseEnrollment, error) {
	now := m.now()
	err := m.store.Enrollments.Update(ctx, e.ID, map[string]interface{}{
		"status":       models.EnrollmentCompleted,
		"completed_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("complete enrollment: %w", err)
	}
	m.log.Info("enrollment completed", zap.Uint("enrollment_id", e.ID), zap.Uint("course_id", e.CourseID))
	return m.mustGet(ctx, e.ID)
}

// IssueCertificate is idempotent: a second call returns the certificate already issued.
func (m *EnrollmentManager) IssueCertificate(ctx context.Context, enrollmentID uint) (*models.CourseEnrollment, error) {
	e, err := m.mustGet(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EnrollmentCompleted {
		return nil, transition("enrollment %d is %s, not completed", e.ID, e.Status)
	}
	if e.CertificateIssued {
		return e, nil
	}
	url := m.opts.CertificateBaseURL + "/" + uuid.NewString()
	err = m.store.Enrollments.Update(ctx, e.ID, map[string]interface{}{
		"certificate_issued": true,
		"certificate_url":    url,
	})
	if err != nil {
		return nil, fmt.Errorf("issue certificate: %w", err)
	}
	m.log.Info("certificate issued", zap.Uint("enrollment_id", e.ID), zap.String("url", url))
	return m.mustGet(ctx, e.ID)
}

// RecordPayment accumulates amountPaid and settles the payment status against the course price.
func (m *EnrollmentManager) RecordPayment(ctx context.Context, enrollmentID uint, amount float64) (*models.CourseEnrollment, error) {
	if amount <= 0 {
		return nil, invalid("amount", "must be greater than 0")
	}
	e, err := m.mustGet(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	switch e.PaymentStatus {
	case models.PaymentFree, models.PaymentScholarship:
		return nil, transition("enrollment %d does not take payments (%s)", e.ID, e.PaymentStatus)
	}
	course, err := m.store.Courses.GetCourse(ctx, e.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", e.CourseID)
	}

	total := roundTo(e.AmountPaid+amount, 2)
	status := models.PaymentPartial
	if total >= course.Price {
		status = models.PaymentPaid
	}
	err = m.store.Enrollments.Update(ctx, e.ID, map[string]interface{}{
		"amount_paid":    total,
		"payment_status": status,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	m.log.Info("payment recorded",
		zap.Uint("enrollment_id", e.ID),
		zap.Float64("amount", amount),
		zap.Float64("total", total),
		zap.String("payment_status", string(status)),
	)
	return m.mustGet(ctx, e.ID)
}

func (m *EnrollmentManager) GrantScholarship(ctx context.Context, enrollmentID uint) (*models.CourseEnrollment, error) {
	e, err := m.mustGet(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	switch e.PaymentStatus {
	case models.PaymentScholarship:
		return e, nil
	case models.PaymentPaid, models.PaymentFree:
		return nil, transition("enrollment %d is already %s", e.ID, e.PaymentStatus)
	}
	err = m.store.Enrollments.Update(ctx, e.ID, map[string]interface{}{"payment_status": models.PaymentScholarship})
	if err != nil {
		return nil, fmt.Errorf("grant scholarship: %w", err)
	}
	m.log.Info("scholarship granted", zap.Uint("enrollment_id", e.ID))
	return m.mustGet(ctx, e.ID)
}

func (m *EnrollmentManager) touch(ctx context.Context, enrollmentID uint, at time.Time) error {
	return m.store.Enrollments.Update(ctx, enrollmentID, map[string]interface{}{"last_accessed_at": at})
}

func (m *EnrollmentManager) mustGet(ctx context.Context, id uint) (*models.CourseEnrollment, error) {
	e, err := m.store.Enrollments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if e == nil {
		return nil, notFound("enrollment", id)
	}
	return e, nil
}
