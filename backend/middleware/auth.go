package middleware

import (
	"learnprogress/backend/config"
	"learnprogress/backend/models"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	userIDKey = "userID"
	userKey   = "user"
)

// AuthMiddleware validates the bearer token and stores the caller's id in
// the request locals.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := utils.ExtractUserIDFromToken(c, cfg)
		if err != nil {
			return utils.Unauthorized(c, err.Error())
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// ManagerMiddleware lets through admins and instructors only. It must run
// after AuthMiddleware.
func ManagerMiddleware(users store.UserRepo, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c, users)
		if err != nil {
			log.Error("failed to load caller", zap.Uint("user_id", UserID(c)), zap.Error(err))
			return utils.InternalServerError(c, "Could not load user")
		}
		if user == nil {
			return utils.Unauthorized(c, "Unknown user")
		}
		if !user.CanManageCourses() {
			return utils.Forbidden(c, "Admin or instructor access required")
		}
		return c.Next()
	}
}

// UserID returns the id stored by AuthMiddleware, or 0 outside it.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(userIDKey).(uint)
	return id
}

// IsManager reports whether the caller may act on other users' records.
func IsManager(c *fiber.Ctx, users store.UserRepo) (bool, error) {
	user, err := loadUser(c, users)
	if err != nil || user == nil {
		return false, err
	}
	return user.CanManageCourses(), nil
}

// Caller returns the authenticated user, or nil when the account is gone.
func Caller(c *fiber.Ctx, users store.UserRepo) (*models.User, error) {
	return loadUser(c, users)
}

// loadUser fetches the caller once per request.
func loadUser(c *fiber.Ctx, users store.UserRepo) (*models.User, error) {
	if u, ok := c.Locals(userKey).(*models.User); ok {
		return u, nil
	}
	user, err := users.Get(c.UserContext(), UserID(c))
	if err != nil {
		return nil, err
	}
	if user != nil {
		c.Locals(userKey, user)
	}
	return user, nil
}
