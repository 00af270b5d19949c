package controllers

import (
	"errors"
	"fmt"

	"learnprogress/backend/middleware"
	"learnprogress/backend/models"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var errForbidden = errors.New("not allowed to access this resource")

// respondError maps domain errors onto the response envelope. Anything
// unrecognised is logged and reported as a bare 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return utils.ValidationError(c, verr.Fields)
	case errors.Is(err, services.ErrNotFound):
		return utils.NotFound(c, err.Error())
	case errors.Is(err, errForbidden),
		errors.Is(err, services.ErrAttemptLimitExceeded),
		errors.Is(err, services.ErrSubmissionClosed):
		return utils.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAlreadyEnrolled):
		return utils.Conflict(c, err.Error())
	}
	log.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return utils.InternalServerError(c, "Internal server error")
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}

// parseBody decodes the JSON body and runs its validate tags.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}
	return services.Validate(out)
}

// bodyError reports a parseBody failure.
func bodyError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.BadRequest(c, fe.Message)
	}
	return respondError(c, log, err)
}

// ownedEnrollment loads an enrollment the caller owns. Managers may load any.
func ownedEnrollment(c *fiber.Ctx, svc *services.Services, users store.UserRepo, id uint) (*models.CourseEnrollment, error) {
	e, err := svc.Enrollments.GetEnrollmentByID(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("enrollment %d: %w", id, services.ErrNotFound)
	}
	if e.UserID == middleware.UserID(c) {
		return e, nil
	}
	manager, err := middleware.IsManager(c, users)
	if err != nil {
		return nil, err
	}
	if !manager {
		return nil, errForbidden
	}
	return e, nil
}

// authoredCourse admits admins to every course and instructors to the courses
// they authored.
func authoredCourse(c *fiber.Ctx, courses store.CourseRepo, users store.UserRepo, courseID uint) error {
	user, err := middleware.Caller(c, users)
	if err != nil {
		return err
	}
	if user == nil {
		return errForbidden
	}
	if user.Role == models.RoleAdmin {
		return nil
	}
	course, err := courses.GetCourse(c.UserContext(), courseID)
	if err != nil {
		return err
	}
	if course == nil {
		return fmt.Errorf("course %d: %w", courseID, services.ErrNotFound)
	}
	if !user.CanManageCourses() || course.AuthorID != user.ID {
		return errForbidden
	}
	return nil
}
