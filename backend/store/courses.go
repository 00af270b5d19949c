package store

import (
	"context"
	"strings"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CourseFilter struct {
	Query         string
	PublishedOnly bool
}

// CourseRepo holds the catalog: courses and the units progress is tracked against.
type CourseRepo interface {
	CreateCourse(ctx context.Context, course *models.Course) error
	GetCourse(ctx context.Context, id uint) (*models.Course, error)
	GetCourseWithContent(ctx context.Context, id uint) (*models.Course, error)
	ListCourses(ctx context.Context, filter CourseFilter) ([]models.Course, error)

	CreateModule(ctx context.Context, module *models.Module) error
	GetModule(ctx context.Context, id uint) (*models.Module, error)
	ListModules(ctx context.Context, courseID uint) ([]models.Module, error)

	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	GetLesson(ctx context.Context, id uint) (*models.Lesson, error)
	ListLessons(ctx context.Context, courseID uint) ([]models.Lesson, error)

	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	GetQuiz(ctx context.Context, id uint) (*models.Quiz, error)
	ListQuizzes(ctx context.Context, courseID uint) ([]models.Quiz, error)

	CreateAssignment(ctx context.Context, assignment *models.Assignment) error
	GetAssignment(ctx context.Context, id uint) (*models.Assignment, error)
	ListAssignments(ctx context.Context, courseID uint) ([]models.Assignment, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *zap.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With(zap.String("repo", "CourseRepo"))}
}

func (r *courseRepo) CreateCourse(ctx context.Context, course *models.Course) error {
	return conn(ctx, r.db).Omit("Modules", "Lessons", "Quizzes", "Assignments").Create(course).Error
}

func (r *courseRepo) GetCourse(ctx context.Context, id uint) (*models.Course, error) {
	return findOne[models.Course](ctx, r.db, "id = ?", id)
}

func (r *courseRepo) GetCourseWithContent(ctx context.Context, id uint) (*models.Course, error) {
	ordered := func(db *gorm.DB) *gorm.DB { return db.Order("sequence_order ASC, id ASC") }
	var course models.Course
	res := conn(ctx, r.db).
		Preload("Modules", ordered).
		Preload("Lessons", ordered).
		Preload("Quizzes", ordered).
		Preload("Assignments", ordered).
		Where("id = ?", id).Limit(1).Find(&course)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &course, nil
}

func (r *courseRepo) ListCourses(ctx context.Context, filter CourseFilter) ([]models.Course, error) {
	q := conn(ctx, r.db).Model(&models.Course{})
	if filter.PublishedOnly {
		q = q.Where("is_published = ?", true)
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(short_desc) LIKE ? OR LOWER(topic) LIKE ?", like, like, like)
	}
	var courses []models.Course
	if err := q.Order("id ASC").Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) CreateModule(ctx context.Context, module *models.Module) error {
	return conn(ctx, r.db).Create(module).Error
}

func (r *courseRepo) GetModule(ctx context.Context, id uint) (*models.Module, error) {
	return findOne[models.Module](ctx, r.db, "id = ?", id)
}

func (r *courseRepo) ListModules(ctx context.Context, courseID uint) ([]models.Module, error) {
	var modules []models.Module
	err := conn(ctx, r.db).Where("course_id = ?", courseID).Order("sequence_order ASC, id ASC").Find(&modules).Error
	return modules, err
}

func (r *courseRepo) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	return conn(ctx, r.db).Create(lesson).Error
}

func (r *courseRepo) GetLesson(ctx context.Context, id uint) (*models.Lesson, error) {
	return findOne[models.Lesson](ctx, r.db, "id = ?", id)
}

func (r *courseRepo) ListLessons(ctx context.Context, courseID uint) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := conn(ctx, r.db).Where("course_id = ?", courseID).Order("sequence_order ASC, id ASC").Find(&lessons).Error
	return lessons, err
}

func (r *courseRepo) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	return conn(ctx, r.db).Create(quiz).Error
}

func (r *courseRepo) GetQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	return findOne[models.Quiz](ctx, r.db, "id = ?", id)
}

func (r *courseRepo) ListQuizzes(ctx context.Context, courseID uint) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	err := conn(ctx, r.db).Where("course_id = ?", courseID).Order("sequence_order ASC, id ASC").Find(&quizzes).Error
	return quizzes, err
}

func (r *courseRepo) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	return conn(ctx, r.db).Create(assignment).Error
}

func (r *courseRepo) GetAssignment(ctx context.Context, id uint) (*models.Assignment, error) {
	return findOne[models.Assignment](ctx, r.db, "id = ?", id)
}

func (r *courseRepo) ListAssignments(ctx context.Context, courseID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := conn(ctx, r.db).Where("course_id = ?", courseID).Order("sequence_order ASC, id ASC").Find(&assignments).Error
	return assignments, err
}
