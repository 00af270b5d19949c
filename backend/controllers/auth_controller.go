package controllers

import (
	"strings"

	"learnprogress/backend/config"
	"learnprogress/backend/models"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthController struct {
	Users store.UserRepo
	Cfg   *config.Config
	Log   *zap.Logger
}

func NewAuthController(users store.UserRepo, cfg *config.Config, log *zap.Logger) *AuthController {
	return &AuthController{Users: users, Cfg: cfg, Log: log.Named("auth")}
}

type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=32" example:"john_doe"`
	Email      string `json:"email" validate:"required,email" example:"user@example.com"`
	Password   string `json:"password" validate:"required,min=8,max=72" example:"password123"`
	Group      string `json:"group" validate:"max=64"`
	University string `json:"university" validate:"max=128"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// [+] Register godoc
// @Summary Register a new user
// @Description Creates a new user account with the base "user" role
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "User registration data"
// @Success 201 {object} utils.SuccessResponse{data=AuthResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Router /auth/register [post]
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var input RegisterRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, ac.Log, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.InternalServerError(c, "Could not hash password")
	}
	user := &models.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hashedPassword),
		Role:         models.RoleUser,
		Group:        input.Group,
		University:   input.University,
	}
	if err := ac.Users.Create(c.UserContext(), user); err != nil {
		if store.IsDuplicate(err) {
			return utils.Conflict(c, "Username or email already taken")
		}
		return respondError(c, ac.Log, err)
	}

	token, err := utils.GenerateJWTToken(user.ID, ac.Cfg)
	if err != nil {
		return utils.InternalServerError(c, "Could not generate token")
	}
	ac.Log.Info("user registered", zap.Uint("user_id", user.ID))
	return utils.Created(c, AuthResponse{Token: token, User: user})
}

// [+] Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} utils.SuccessResponse{data=AuthResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Router /auth/login [post]
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input LoginRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, ac.Log, err)
	}

	user, err := ac.Users.FindByUsername(c.UserContext(), strings.TrimSpace(input.Username))
	if err != nil {
		return respondError(c, ac.Log, err)
	}
	if user == nil {
		return utils.Unauthorized(c, "Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return utils.Unauthorized(c, "Invalid credentials")
	}

	token, err := utils.GenerateJWTToken(user.ID, ac.Cfg)
	if err != nil {
		return utils.InternalServerError(c, "Could not generate token")
	}
	return utils.OK(c, AuthResponse{Token: token, User: user})
}
