package controllers

import (
	"context"
	"fmt"
	"time"

	"learnprogress/backend/middleware"
	"learnprogress/backend/models"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CoursesController authors the catalog. Courses, modules and assessments
// are plain records; progress semantics live in the services.
type CoursesController struct {
	Courses store.CourseRepo
	Log     *zap.Logger
}

func NewCoursesController(courses store.CourseRepo, log *zap.Logger) *CoursesController {
	return &CoursesController{Courses: courses, Log: log.Named("courses")}
}

type CreateCourseRequest struct {
	Title          string  `json:"title" validate:"required,max=255" example:"Intro to Go"`
	ShortDesc      string  `json:"short_desc" validate:"max=500"`
	Description    string  `json:"description"`
	Difficulty     string  `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	RecommendedFor string  `json:"recommended_for" validate:"max=128"`
	University     string  `json:"university" validate:"max=128"`
	Topic          string  `json:"topic" validate:"max=128"`
	LogoURL        string  `json:"logo_url" validate:"omitempty,url"`
	Price          float64 `json:"price" validate:"gte=0"`
	IsPublished    bool    `json:"is_published"`
}

type CreateModuleRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	Description   string `json:"description"`
	SequenceOrder int    `json:"sequence_order" validate:"gte=0"`
}

// unitFields are shared by every weighted catalog unit.
type unitFields struct {
	ModuleID      *uint    `json:"module_id"`
	SequenceOrder int      `json:"sequence_order" validate:"gte=0"`
	IsMandatory   *bool    `json:"is_mandatory"`
	Weight        *float64 `json:"weight" validate:"omitempty,gt=0,lte=1000"`
}

func (u unitFields) mandatory() bool {
	return u.IsMandatory == nil || *u.IsMandatory
}

func (u unitFields) weight() float64 {
	if u.Weight == nil {
		return 1
	}
	return *u.Weight
}

type CreateLessonRequest struct {
	unitFields
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type CreateQuizRequest struct {
	unitFields
	LessonID           *uint    `json:"lesson_id"`
	Title              string   `json:"title" validate:"required,max=255"`
	Question           string   `json:"question" validate:"required"`
	Options            []string `json:"options" validate:"required,min=2,max=10,dive,required"`
	CorrectAnswerIndex int      `json:"correct_answer_index" validate:"gte=0"`
	Points             float64  `json:"points" validate:"omitempty,gt=0"`
	PassRequired       bool     `json:"pass_required"`
	MaxAttempts        *int     `json:"max_attempts" validate:"omitempty,gte=1"`
}

type CreateAssignmentRequest struct {
	unitFields
	LessonID              *uint             `json:"lesson_id"`
	Title                 string            `json:"title" validate:"required,max=255"`
	Instructions          string            `json:"instructions"`
	MaxScore              float64           `json:"max_score" validate:"omitempty,gt=0"`
	PassingScore          *float64          `json:"passing_score" validate:"omitempty,gte=0"`
	DueDate               *time.Time        `json:"due_date"`
	LateSubmissionAllowed bool              `json:"late_submission_allowed"`
	LatePenaltyPercent    float64           `json:"late_penalty_percent" validate:"gte=0,lte=100"`
	MaxAttempts           *int              `json:"max_attempts" validate:"omitempty,gte=1"`
	AutoGrade             bool              `json:"auto_grade"`
	AnswerKey             map[string]string `json:"answer_key"`
}

// CreateCourse godoc
// @Summary Create course
// @Tags admin
// @Accept json
// @Produce json
// @Param input body CreateCourseRequest true "Course data"
// @Success 201 {object} utils.SuccessResponse{data=models.Course}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/courses [post]
func (cc *CoursesController) CreateCourse(c *fiber.Ctx) error {
	var input CreateCourseRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, cc.Log, err)
	}
	course := &models.Course{
		Title:          input.Title,
		ShortDesc:      input.ShortDesc,
		Description:    input.Description,
		Difficulty:     input.Difficulty,
		RecommendedFor: input.RecommendedFor,
		University:     input.University,
		Topic:          input.Topic,
		AuthorID:       middleware.UserID(c),
		LogoURL:        input.LogoURL,
		IsFree:         input.Price <= 0,
		Price:          input.Price,
		IsPublished:    input.IsPublished,
	}
	if err := cc.Courses.CreateCourse(c.UserContext(), course); err != nil {
		return respondError(c, cc.Log, err)
	}
	cc.Log.Info("course created", zap.Uint("course_id", course.ID), zap.Uint("author_id", course.AuthorID))
	return utils.Created(c, course)
}

// AddModule godoc
// @Summary Add module to course
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param input body CreateModuleRequest true "Module data"
// @Success 201 {object} utils.SuccessResponse{data=models.Module}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/courses/{id}/modules [post]
func (cc *CoursesController) AddModule(c *fiber.Ctx) error {
	courseID, err := cc.courseParam(c)
	if err != nil {
		return respondError(c, cc.Log, err)
	}
	var input CreateModuleRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, cc.Log, err)
	}
	module := &models.Module{
		CourseID:      courseID,
		Title:         input.Title,
		Description:   input.Description,
		SequenceOrder: input.SequenceOrder,
	}
	if err := cc.Courses.CreateModule(c.UserContext(), module); err != nil {
		return respondError(c, cc.Log, err)
	}
	return utils.Created(c, module)
}

// AddLesson godoc
// @Summary Add lesson to course
// @Description Lessons are mandatory with weight 1 unless stated otherwise
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param input body CreateLessonRequest true "Lesson data"
// @Success 201 {object} utils.SuccessResponse{data=models.Lesson}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/courses/{id}/lessons [post]
func (cc *CoursesController) AddLesson(c *fiber.Ctx) error {
	courseID, err := cc.courseParam(c)
	if err != nil {
		return respondError(c, cc.Log, err)
	}
	var input CreateLessonRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, cc.Log, err)
	}
	if err := cc.checkModule(c.UserContext(), courseID, input.ModuleID); err != nil {
		return respondError(c, cc.Log, err)
	}
	lesson := &models.Lesson{
		CourseID:      courseID,
		ModuleID:      input.ModuleID,
		Title:         input.Title,
		Description:   input.Description,
		Content:       input.Content,
		SequenceOrder: input.SequenceOrder,
		IsMandatory:   input.mandatory(),
		Weight:        input.weight(),
	}
	if err := cc.Courses.CreateLesson(c.UserContext(), lesson); err != nil {
		return respondError(c, cc.Log, err)
	}
	return utils.Created(c, lesson)
}

// AddQuiz godoc
// @Summary Add quiz to course
// @Description A single-question quiz; correct_answer_index is never returned to learners
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param input body CreateQuizRequest true "Quiz data"
// @Success 201 {object} utils.SuccessResponse{data=models.Quiz}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/courses/{id}/quizzes [post]
func (cc *CoursesController) AddQuiz(c *fiber.Ctx) error {
	courseID, err := cc.courseParam(c)
	if err != nil {
		return respondError(c, cc.Log, err)
	}
	var input CreateQuizRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, cc.Log, err)
	}
	if input.CorrectAnswerIndex >= len(input.Options) {
		return utils.ValidationError(c, map[string]string{
			"correctAnswerIndex": fmt.Sprintf("must be below %d", len(input.Options)),
		})
	}
	if err := cc.checkModule(c.UserContext(), courseID, input.ModuleID); err != nil {
		return respondError(c, cc.Log, err)
	}
	options, err := sonic.Marshal(input.Options)
	if err != nil {
		return respondError(c, cc.Log, err)
	}
	points := input.Points
	if points == 0 {
		points = 1
	}
	quiz := &models.Quiz{
		CourseID:           courseID,
		ModuleID:           input.ModuleID,
		LessonID:           input.LessonID,
		Title:              input.Title,
		Question:           input.Question,
		Options:            datatypes.JSON(options),
		CorrectAnswerIndex: input.CorrectAnswerIndex,
		Points:             points,
		PassRequired:       input.PassRequired,
		MaxAttempts:        input.MaxAttempts,
		SequenceOrder:      input.SequenceOrder,
		IsMandatory:        input.mandatory(),
		Weight:             input.weight(),
	}
	if err := cc.Courses.CreateQuiz(c.UserContext(), quiz); err != nil {
		return respondError(c, cc.Log, err)
	}
	return utils.Created(c, quiz)
}

// AddAssignment godoc
// @Summary Add assignment to course
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param input body CreateAssignmentRequest true "Assignment data"
// @Success 201 {object} utils.SuccessResponse{data=models.Assignment}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/courses/{id}/assignments [post]
func (cc *CoursesController) AddAssignment(c *fiber.Ctx) error {
	courseID, err := cc.courseParam(c)
	if err != nil {
		return respondError(c, cc.Log, err)
	}
	var input CreateAssignmentRequest
	if err := parseBody(c, &input); err != nil {
		return bodyError(c, cc.Log, err)
	}
	maxScore := input.MaxScore
	if maxScore == 0 {
		maxScore = 100
	}
	if input.PassingScore != nil && *input.PassingScore > maxScore {
		return utils.ValidationError(c, map[string]string{"passingScore": "must not exceed max_score"})
	}
	if input.AutoGrade && len(input.AnswerKey) == 0 {
		return utils.ValidationError(c, map[string]string{"answerKey": "is required for auto-graded assignments"})
	}
	if err := cc.checkModule(c.UserContext(), courseID, input.ModuleID); err != nil {
		return respondError(c, cc.Log, err)
	}
	assignment := &models.Assignment{
		CourseID:              courseID,
		ModuleID:              input.ModuleID,
		LessonID:              input.LessonID,
		Title:                 input.Title,
		Instructions:          input.Instructions,
		MaxScore:              maxScore,
		PassingScore:          input.PassingScore,
		DueDate:               input.DueDate,
		LateSubmissionAllowed: input.LateSubmissionAllowed,
		LatePenaltyPercent:    input.LatePenaltyPercent,
		MaxAttempts:           input.MaxAttempts,
		AutoGrade:             input.AutoGrade,
		SequenceOrder:         input.SequenceOrder,
		IsMandatory:           input.mandatory(),
		Weight:                input.weight(),
	}
	if len(input.AnswerKey) > 0 {
		key, err := sonic.Marshal(input.AnswerKey)
		if err != nil {
			return respondError(c, cc.Log, err)
		}
		assignment.AnswerKey = datatypes.JSON(key)
	}
	if err := cc.Courses.CreateAssignment(c.UserContext(), assignment); err != nil {
		return respondError(c, cc.Log, err)
	}
	return utils.Created(c, assignment)
}

// GetCourse godoc
// @Summary Get course with its content
// @Tags courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} utils.SuccessResponse{data=models.Course}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /courses/{id} [get]
func (cc *CoursesController) GetCourse(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid course ID")
	}
	course, err := cc.Courses.GetCourseWithContent(c.UserContext(), courseID)
	if err != nil {
		return respondError(c, cc.Log, err)
	}
	if course == nil {
		return utils.NotFound(c, "Course not found")
	}
	return utils.OK(c, course)
}

func (cc *CoursesController) courseParam(c *fiber.Ctx) (uint, error) {
	courseID, err := paramID(c, "id")
	if err != nil {
		return 0, &services.ValidationError{Fields: map[string]string{"id": err.Error()}}
	}
	course, err := cc.Courses.GetCourse(c.UserContext(), courseID)
	if err != nil {
		return 0, err
	}
	if course == nil {
		return 0, fmt.Errorf("course %d: %w", courseID, services.ErrNotFound)
	}
	return courseID, nil
}

func (cc *CoursesController) checkModule(ctx context.Context, courseID uint, moduleID *uint) error {
	if moduleID == nil {
		return nil
	}
	module, err := cc.Courses.GetModule(ctx, *moduleID)
	if err != nil {
		return err
	}
	if module == nil || module.CourseID != courseID {
		return fmt.Errorf("module %d: %w", *moduleID, services.ErrNotFound)
	}
	return nil
}
