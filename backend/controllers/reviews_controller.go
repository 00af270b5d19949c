package controllers

import (
	"learnprogress/backend/middleware"
	"learnprogress/backend/models"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ReviewsController struct {
	Svc   *services.Services
	Users store.UserRepo
	Log   *zap.Logger
}

func NewReviewsController(svc *services.Services, users store.UserRepo, log *zap.Logger) *ReviewsController {
	return &ReviewsController{Svc: svc, Users: users, Log: log.Named("reviews")}
}

type ModerateReviewRequest struct {
	Status         models.ReviewStatus `json:"status" validate:"required,oneof=pending approved rejected"`
	ModeratorNotes *string             `json:"moderator_notes" validate:"omitempty,max=2000"`
}

// SubmitReview godoc
// @Summary Review a course
// @Description One review per user and course; submitting again overwrites it
// @Tags reviews
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param input body services.ReviewInput true "Review"
// @Success 200 {object} utils.SuccessResponse{data=models.Review}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /courses/{id}/reviews [post]
func (rc *ReviewsController) SubmitReview(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	var input services.ReviewInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	review, err := rc.Svc.Reviews.SubmitReview(c.UserContext(), middleware.UserID(c), courseID, input)
	if err != nil {
		return respondError(c, rc.Log, err)
	}
	return utils.OK(c, review)
}

// ListReviews godoc
// @Summary List course reviews
// @Description Learners see approved reviews; managers may filter by any status or pass status=all
// @Tags reviews
// @Produce json
// @Param id path int true "Course ID"
// @Param status query string false "pending, approved, rejected or all"
// @Success 200 {object} utils.SuccessResponse{data=[]models.Review}
// @Security ApiKeyAuth
// @Router /courses/{id}/reviews [get]
func (rc *ReviewsController) ListReviews(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	status := models.ReviewApproved
	if requested := c.Query("status"); requested != "" && requested != string(models.ReviewApproved) {
		manager, err := middleware.IsManager(c, rc.Users)
		if err != nil {
			return respondError(c, rc.Log, err)
		}
		if !manager {
			return utils.Forbidden(c, "Only moderators can list unapproved reviews")
		}
		status = models.ReviewStatus(requested)
		if requested == "all" {
			status = ""
		}
	}
	reviews, err := rc.Svc.Reviews.ListCourseReviews(c.UserContext(), courseID, status)
	if err != nil {
		return respondError(c, rc.Log, err)
	}
	return utils.OK(c, reviews)
}

// GetReviewStats godoc
// @Summary Rating statistics of a course
// @Description Approved reviews only; the distribution always has keys 1 to 5
// @Tags reviews
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} utils.SuccessResponse{data=services.ReviewStats}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /courses/{id}/reviews/stats [get]
func (rc *ReviewsController) GetReviewStats(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	stats, err := rc.Svc.Stats.GetReviewStats(c.UserContext(), courseID)
	if err != nil {
		return respondError(c, rc.Log, err)
	}
	return utils.OK(c, stats)
}

// MarkHelpful godoc
// @Summary Vote a review helpful
// @Tags reviews
// @Produce json
// @Param id path int true "Review ID"
// @Success 200 {object} utils.SuccessResponse{data=models.Review}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /reviews/{id}/helpful [post]
func (rc *ReviewsController) MarkHelpful(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid review ID")
	}
	review, err := rc.Svc.Reviews.MarkHelpful(c.UserContext(), id)
	if err != nil {
		return respondError(c, rc.Log, err)
	}
	return utils.OK(c, review)
}

// ModerateReview godoc
// @Summary Change a review's moderation status
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Review ID"
// @Param input body ModerateReviewRequest true "Status"
// @Success 200 {object} utils.SuccessResponse{data=models.Review}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/reviews/{id}/status [put]
func (rc *ReviewsController) ModerateReview(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid review ID")
	}
	var input ModerateReviewRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, rc.Log, err)
	}
	review, err := rc.Svc.Reviews.UpdateStatus(c.UserContext(), id, input.Status, input.ModeratorNotes)
	if err != nil {
		return respondError(c, rc.Log, err)
	}
	return utils.OK(c, review)
}
