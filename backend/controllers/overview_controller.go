package controllers

import (
	"learnprogress/backend/services"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type OverviewController struct {
	Svc *services.Services
	Log *zap.Logger
}

func NewOverviewController(svc *services.Services, log *zap.Logger) *OverviewController {
	return &OverviewController{Svc: svc, Log: log.Named("overview")}
}

// SearchCourses godoc
// @Summary Search the published catalog
// @Description Each course carries its approved-review rating and enrollment count
// @Tags overview
// @Produce json
// @Param search query string false "Matches title or description"
// @Success 200 {object} utils.SuccessResponse{data=[]services.CourseOverview}
// @Security ApiKeyAuth
// @Router /overview/courses [get]
func (oc *OverviewController) SearchCourses(c *fiber.Ctx) error {
	courses, err := oc.Svc.Stats.CatalogOverview(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondError(c, oc.Log, err)
	}
	return utils.OK(c, courses)
}
