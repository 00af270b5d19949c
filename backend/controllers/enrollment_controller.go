package controllers

import (
	"errors"

	"learnprogress/backend/middleware"
	"learnprogress/backend/models"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type EnrollmentController struct {
	Svc   *services.Services
	Users store.UserRepo
	Log   *zap.Logger
}

func NewEnrollmentController(svc *services.Services, users store.UserRepo, log *zap.Logger) *EnrollmentController {
	return &EnrollmentController{Svc: svc, Users: users, Log: log.Named("enrollment")}
}

type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=active completed dropped suspended"`
}

type PaymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// Enroll godoc
// @Summary Enroll in a course
// @Description Enrolling twice is not an error: the existing enrollment comes back with a notice
// @Tags enrollments
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param input body services.EnrollmentDetails false "Enrollment preferences"
// @Success 200 {object} utils.SuccessResponse{data=services.EnrollResult}
// @Success 201 {object} utils.SuccessResponse{data=services.EnrollResult}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /courses/{id}/enroll [post]
func (ec *EnrollmentController) Enroll(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	var details services.EnrollmentDetails
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&details); err != nil {
			return utils.BadRequest(c, "Cannot parse JSON")
		}
	}

	res, err := ec.Svc.Enrollments.Enroll(c.UserContext(), middleware.UserID(c), courseID, details)
	if errors.Is(err, services.ErrAlreadyEnrolled) && res != nil {
		return utils.Notice(c, fiber.StatusOK, "Already enrolled in this course", res)
	}
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.Created(c, res)
}

// ListMyEnrollments godoc
// @Summary List the caller's enrollments
// @Tags enrollments
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=[]models.CourseEnrollment}
// @Security ApiKeyAuth
// @Router /enrollments [get]
func (ec *EnrollmentController) ListMyEnrollments(c *fiber.Ctx) error {
	enrollments, err := ec.Svc.Enrollments.ListEnrollmentsByUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.OK(c, enrollments)
}

// GetMyEnrollment godoc
// @Summary Get the caller's enrollment in a course
// @Tags enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseEnrollment}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /courses/{id}/enrollment [get]
func (ec *EnrollmentController) GetMyEnrollment(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	e, err := ec.Svc.Enrollments.GetEnrollment(c.UserContext(), middleware.UserID(c), courseID)
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	if e == nil {
		return utils.NotFound(c, "Not enrolled in this course")
	}
	return utils.OK(c, e)
}

// ListCourseEnrollments godoc
// @Summary List enrollments of a course
// @Tags admin
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} utils.SuccessResponse{data=[]models.CourseEnrollment}
// @Security ApiKeyAuth
// @Router /admin/courses/{id}/enrollments [get]
func (ec *EnrollmentController) ListCourseEnrollments(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	enrollments, err := ec.Svc.Enrollments.ListEnrollmentsByCourse(c.UserContext(), courseID)
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.OK(c, enrollments)
}

// UpdateStatus godoc
// @Summary Change enrollment status
// @Description Completing requires the course-level progress to be at 100
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param input body UpdateEnrollmentStatusRequest true "New status"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseEnrollment}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/enrollments/{id}/status [put]
func (ec *EnrollmentController) UpdateStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid enrollment ID")
	}
	var input UpdateEnrollmentStatusRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, ec.Log, err)
	}
	e, err := ec.Svc.Enrollments.UpdateStatus(c.UserContext(), id, input.Status)
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.OK(c, e)
}

// IssueCertificate godoc
// @Summary Issue completion certificate
// @Description Idempotent; the enrollment must be completed
// @Tags enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseEnrollment}
// @Failure 403 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /enrollments/{id}/certificate [post]
func (ec *EnrollmentController) IssueCertificate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid enrollment ID")
	}
	if _, err := ownedEnrollment(c, ec.Svc, ec.Users, id); err != nil {
		return respondError(c, ec.Log, err)
	}
	e, err := ec.Svc.Enrollments.IssueCertificate(c.UserContext(), id)
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.OK(c, e)
}

// RecordPayment godoc
// @Summary Record a payment against an enrollment
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param input body PaymentRequest true "Amount paid"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseEnrollment}
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/enrollments/{id}/payments [post]
func (ec *EnrollmentController) RecordPayment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid enrollment ID")
	}
	var input PaymentRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, ec.Log, err)
	}
	e, err := ec.Svc.Enrollments.RecordPayment(c.UserContext(), id, input.Amount)
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.OK(c, e)
}

// GrantScholarship godoc
// @Summary Waive the course fee
// @Tags admin
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseEnrollment}
// @Failure 409 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/enrollments/{id}/scholarship [post]
func (ec *EnrollmentController) GrantScholarship(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid enrollment ID")
	}
	e, err := ec.Svc.Enrollments.GrantScholarship(c.UserContext(), id)
	if err != nil {
		return respondError(c, ec.Log, err)
	}
	return utils.OK(c, e)
}
