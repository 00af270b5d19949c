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

type UserController struct {
	Svc   *services.Services
	Users store.UserRepo
	Log   *zap.Logger
}

func NewUserController(svc *services.Services, users store.UserRepo, log *zap.Logger) *UserController {
	return &UserController{Svc: svc, Users: users, Log: log.Named("user")}
}

type ProfileResponse struct {
	User     *models.User                  `json:"user"`
	Progress *services.UserProgressSummary `json:"progress"`
}

// GetProfile godoc
// @Summary Get user profile
// @Description Returns the authenticated user with a summary of their learning progress
// @Tags users
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=ProfileResponse}
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/profile [get]
func (uc *UserController) GetProfile(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	user, err := uc.Users.Get(c.UserContext(), userID)
	if err != nil {
		return respondError(c, uc.Log, err)
	}
	if user == nil {
		return utils.NotFound(c, "User not found")
	}

	summary, err := uc.Svc.Stats.GetUserProgressSummary(c.UserContext(), userID)
	if err != nil {
		return respondError(c, uc.Log, err)
	}
	return utils.OK(c, ProfileResponse{User: user, Progress: summary})
}
