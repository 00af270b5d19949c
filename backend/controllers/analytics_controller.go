package controllers

import (
	"learnprogress/backend/services"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AnalyticsController struct {
	Svc *services.Services
	Log *zap.Logger
}

func NewAnalyticsController(svc *services.Services, log *zap.Logger) *AnalyticsController {
	return &AnalyticsController{Svc: svc, Log: log.Named("analytics")}
}

// GetCourseProgressSummary godoc
// @Summary Progress analytics of a course
// @Description Enrollment breakdowns, completion rate and per-unit activity
// @Tags admin
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} utils.SuccessResponse{data=services.CourseProgressSummary}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/courses/{id}/progress-summary [get]
func (ac *AnalyticsController) GetCourseProgressSummary(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	summary, err := ac.Svc.Stats.GetCourseProgressSummary(c.UserContext(), courseID)
	if err != nil {
		return respondError(c, ac.Log, err)
	}
	return utils.OK(c, summary)
}
