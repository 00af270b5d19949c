package controllers

import (
	"fmt"

	"learnprogress/backend/middleware"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SubmissionsController struct {
	Svc     *services.Services
	Courses store.CourseRepo
	Users   store.UserRepo
	Log     *zap.Logger
}

func NewSubmissionsController(svc *services.Services, st *store.Store, log *zap.Logger) *SubmissionsController {
	return &SubmissionsController{Svc: svc, Courses: st.Courses, Users: st.Users, Log: log.Named("submissions")}
}

type QuizAnswerRequest struct {
	SelectedAnswer *int `json:"selected_answer" validate:"required" example:"2"`
}

type GradeRequest struct {
	Score    *float64 `json:"score" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

// SubmitQuiz godoc
// @Summary Submit a quiz attempt
// @Description Grades the attempt immediately and folds it into progress
// @Tags quizzes
// @Accept json
// @Produce json
// @Param id path int true "Quiz ID"
// @Param input body QuizAnswerRequest true "Selected option"
// @Success 201 {object} utils.SuccessResponse{data=models.QuizSubmission}
// @Failure 403 {object} utils.ErrorResponse "attempt limit reached"
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /quizzes/{id}/submissions [post]
func (sc *SubmissionsController) SubmitQuiz(c *fiber.Ctx) error {
	quizID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid quiz ID")
	}
	var input QuizAnswerRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, sc.Log, err)
	}
	sub, err := sc.Svc.Grading.SubmitQuiz(c.UserContext(), middleware.UserID(c), quizID, *input.SelectedAnswer)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.Created(c, sub)
}

// GetLatestQuizAttempt godoc
// @Summary Latest attempt of the caller on a quiz
// @Tags quizzes
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} utils.SuccessResponse{data=models.QuizSubmission}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /quizzes/{id}/latest [get]
func (sc *SubmissionsController) GetLatestQuizAttempt(c *fiber.Ctx) error {
	quizID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid quiz ID")
	}
	sub, err := sc.Svc.Grading.GetLatestQuizAttempt(c.UserContext(), middleware.UserID(c), quizID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	if sub == nil {
		return utils.NotFound(c, "No attempts yet")
	}
	return utils.OK(c, sub)
}

// ListQuizAttempts godoc
// @Summary Every attempt of the caller on a quiz, oldest first
// @Tags quizzes
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} utils.SuccessResponse{data=[]models.QuizSubmission}
// @Security ApiKeyAuth
// @Router /quizzes/{id}/submissions [get]
func (sc *SubmissionsController) ListQuizAttempts(c *fiber.Ctx) error {
	quizID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid quiz ID")
	}
	subs, err := sc.Svc.Grading.ListQuizAttempts(c.UserContext(), middleware.UserID(c), quizID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.OK(c, subs)
}

// GetQuizStatistics godoc
// @Summary Aggregate results of a quiz
// @Tags quizzes
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} utils.SuccessResponse{data=services.AssessmentStats}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /quizzes/{id}/statistics [get]
func (sc *SubmissionsController) GetQuizStatistics(c *fiber.Ctx) error {
	quizID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid quiz ID")
	}
	stats, err := sc.Svc.Grading.GetQuizStatistics(c.UserContext(), quizID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.OK(c, stats)
}

// SubmitAssignment godoc
// @Summary Submit an assignment attempt
// @Description Auto-graded assignments are scored at once; others wait for a grader
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path int true "Assignment ID"
// @Param input body services.AssignmentPayload true "Submission"
// @Success 201 {object} utils.SuccessResponse{data=models.AssignmentSubmission}
// @Failure 403 {object} utils.ErrorResponse "deadline passed or attempt limit reached"
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /assignments/{id}/submissions [post]
func (sc *SubmissionsController) SubmitAssignment(c *fiber.Ctx) error {
	assignmentID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid assignment ID")
	}
	var input services.AssignmentPayload
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	sub, err := sc.Svc.Grading.SubmitAssignment(c.UserContext(), middleware.UserID(c), assignmentID, input)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.Created(c, sub)
}

// GetLatestAssignmentAttempt godoc
// @Summary Latest submission of the caller on an assignment
// @Tags assignments
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} utils.SuccessResponse{data=models.AssignmentSubmission}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /assignments/{id}/latest [get]
func (sc *SubmissionsController) GetLatestAssignmentAttempt(c *fiber.Ctx) error {
	assignmentID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid assignment ID")
	}
	sub, err := sc.Svc.Grading.GetLatestAssignmentAttempt(c.UserContext(), middleware.UserID(c), assignmentID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	if sub == nil {
		return utils.NotFound(c, "No submissions yet")
	}
	return utils.OK(c, sub)
}

// GetAssignmentStatistics godoc
// @Summary Aggregate results of an assignment
// @Tags assignments
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} utils.SuccessResponse{data=services.AssessmentStats}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /assignments/{id}/statistics [get]
func (sc *SubmissionsController) GetAssignmentStatistics(c *fiber.Ctx) error {
	assignmentID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid assignment ID")
	}
	stats, err := sc.Svc.Grading.GetAssignmentStatistics(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.OK(c, stats)
}

// ListPendingSubmissions godoc
// @Summary Grading queue of an assignment
// @Description Instructors see the queues of courses they authored; admins see every queue
// @Tags admin
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} utils.SuccessResponse{data=[]models.AssignmentSubmission}
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/assignments/{id}/submissions [get]
func (sc *SubmissionsController) ListPendingSubmissions(c *fiber.Ctx) error {
	assignmentID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid assignment ID")
	}
	a, err := sc.Courses.GetAssignment(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	if a == nil {
		return utils.NotFound(c, "Assignment not found")
	}
	if err := authoredCourse(c, sc.Courses, sc.Users, a.CourseID); err != nil {
		return respondError(c, sc.Log, fmt.Errorf("grading queue of assignment %d: %w", assignmentID, err))
	}
	subs, err := sc.Svc.Grading.ListPendingSubmissions(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.OK(c, subs)
}

// GradeSubmission godoc
// @Summary Grade an assignment submission
// @Description The late penalty of the submission is applied to the given score. Instructors grade only courses they authored
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Submission ID"
// @Param input body GradeRequest true "Score and feedback"
// @Success 200 {object} utils.SuccessResponse{data=models.AssignmentSubmission}
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/submissions/{id}/grade [put]
func (sc *SubmissionsController) GradeSubmission(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid submission ID")
	}
	var input GradeRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, sc.Log, err)
	}
	target, err := sc.Svc.Grading.GetAssignmentSubmission(c.UserContext(), id)
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	if target == nil {
		return utils.NotFound(c, "Submission not found")
	}
	if err := authoredCourse(c, sc.Courses, sc.Users, target.CourseID); err != nil {
		return respondError(c, sc.Log, fmt.Errorf("grade submission %d: %w", id, err))
	}
	sub, err := sc.Svc.Grading.GradeSubmission(c.UserContext(), id, *input.Score, input.Feedback, middleware.UserID(c))
	if err != nil {
		return respondError(c, sc.Log, err)
	}
	return utils.OK(c, sub)
}
