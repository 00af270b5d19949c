package controllers

import (
	"learnprogress/backend/middleware"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ProgressController struct {
	Svc   *services.Services
	Users store.UserRepo
	Log   *zap.Logger
}

func NewProgressController(svc *services.Services, users store.UserRepo, log *zap.Logger) *ProgressController {
	return &ProgressController{Svc: svc, Users: users, Log: log.Named("progress")}
}

type UnitAccessRequest struct {
	EnrollmentID uint             `json:"enrollment_id" validate:"required"`
	Unit         services.UnitRef `json:"unit"`
}

type MarkCompleteRequest struct {
	EnrollmentID         uint             `json:"enrollment_id" validate:"required"`
	Unit                 services.UnitRef `json:"unit"`
	CompletionPercentage *float64         `json:"completion_percentage" validate:"omitempty,gte=0,lte=100"`
}

type CompletionResponse struct {
	EnrollmentID         uint    `json:"enrollment_id"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// RecordAccess godoc
// @Summary Record that a unit was opened
// @Tags progress
// @Accept json
// @Produce json
// @Param input body UnitAccessRequest true "Unit"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseProgress}
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress/access [post]
func (pc *ProgressController) RecordAccess(c *fiber.Ctx) error {
	var input UnitAccessRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, pc.Log, err)
	}
	if _, err := ownedEnrollment(c, pc.Svc, pc.Users, input.EnrollmentID); err != nil {
		return respondError(c, pc.Log, err)
	}
	row, err := pc.Svc.Progress.RecordAccess(c.UserContext(), input.EnrollmentID, input.Unit)
	if err != nil {
		return respondError(c, pc.Log, err)
	}
	return utils.OK(c, row)
}

// MarkComplete godoc
// @Summary Set a unit's completion
// @Description completion_percentage defaults to 100; lowering a stored value is rejected
// @Tags progress
// @Accept json
// @Produce json
// @Param input body MarkCompleteRequest true "Unit and completion"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseProgress}
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress/complete [post]
func (pc *ProgressController) MarkComplete(c *fiber.Ctx) error {
	var input MarkCompleteRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, pc.Log, err)
	}
	if _, err := ownedEnrollment(c, pc.Svc, pc.Users, input.EnrollmentID); err != nil {
		return respondError(c, pc.Log, err)
	}
	pct := 100.0
	if input.CompletionPercentage != nil {
		pct = *input.CompletionPercentage
	}
	row, err := pc.Svc.Progress.MarkComplete(c.UserContext(), input.EnrollmentID, input.Unit, pct)
	if err != nil {
		return respondError(c, pc.Log, err)
	}
	return utils.OK(c, row)
}

// UpdateProgress godoc
// @Summary Partially update a unit's progress
// @Description Time spent accumulates; notes are replaced
// @Tags progress
// @Accept json
// @Produce json
// @Param input body services.ProgressUpdate true "Progress update"
// @Success 200 {object} utils.SuccessResponse{data=models.CourseProgress}
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress [post]
func (pc *ProgressController) UpdateProgress(c *fiber.Ctx) error {
	var input services.ProgressUpdate
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, pc.Log, err)
	}
	if _, err := ownedEnrollment(c, pc.Svc, pc.Users, input.EnrollmentID); err != nil {
		return respondError(c, pc.Log, err)
	}
	row, err := pc.Svc.Progress.UpdateProgress(c.UserContext(), input)
	if err != nil {
		return respondError(c, pc.Log, err)
	}
	return utils.OK(c, row)
}

// ListProgress godoc
// @Summary List every progress row of an enrollment
// @Tags progress
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} utils.SuccessResponse{data=[]models.CourseProgress}
// @Failure 403 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /enrollments/{id}/progress [get]
func (pc *ProgressController) ListProgress(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid enrollment ID")
	}
	if _, err := ownedEnrollment(c, pc.Svc, pc.Users, id); err != nil {
		return respondError(c, pc.Log, err)
	}
	rows, err := pc.Svc.Progress.ListProgress(c.UserContext(), id)
	if err != nil {
		return respondError(c, pc.Log, err)
	}
	return utils.OK(c, rows)
}

// GetCompletion godoc
// @Summary Weighted course completion of an enrollment
// @Tags progress
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} utils.SuccessResponse{data=CompletionResponse}
// @Failure 403 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /enrollments/{id}/completion [get]
func (pc *ProgressController) GetCompletion(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid enrollment ID")
	}
	if _, err := ownedEnrollment(c, pc.Svc, pc.Users, id); err != nil {
		return respondError(c, pc.Log, err)
	}
	pct, err := pc.Svc.Progress.ComputeCourseCompletion(c.UserContext(), id)
	if err != nil {
		return respondError(c, pc.Log, err)
	}
	return utils.OK(c, CompletionResponse{EnrollmentID: id, CompletionPercentage: pct})
}

// GetSummary godoc
// @Summary Progress summary of the caller
// @Tags progress
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=services.UserProgressSummary}
// @Security ApiKeyAuth
// @Router /progress/summary [get]
func (pc *ProgressController) GetSummary(c *fiber.Ctx) error {
	summary, err := pc.Svc.Stats.GetUserProgressSummary(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, pc.Log, err)
	}
	return utils.OK(c, summary)
}
