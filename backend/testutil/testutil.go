package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func Logger(tb testing.TB) *zap.Logger {
	tb.Helper()
	return zaptest.NewLogger(tb, zaptest.Level(zap.WarnLevel))
}

// DB opens a private in-memory SQLite database for the calling test and
// migrates every model into it.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func SeedUser(tb testing.TB, db *gorm.DB, username string) *models.User {
	tb.Helper()
	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         models.RoleUser,
	}
	mustCreate(tb, db, user)
	return user
}

func SeedCourse(tb testing.TB, db *gorm.DB, title string, price float64) *models.Course {
	tb.Helper()
	course := &models.Course{
		Title:       title,
		Price:       price,
		IsFree:      price <= 0,
		IsPublished: true,
	}
	mustCreate(tb, db, course)
	return course
}

func SeedModule(tb testing.TB, db *gorm.DB, courseID uint, title string) *models.Module {
	tb.Helper()
	module := &models.Module{CourseID: courseID, Title: title}
	mustCreate(tb, db, module)
	return module
}

func SeedLesson(tb testing.TB, db *gorm.DB, courseID uint, moduleID *uint, mandatory bool, weight float64) *models.Lesson {
	tb.Helper()
	lesson := &models.Lesson{
		CourseID:    courseID,
		ModuleID:    moduleID,
		Title:       "lesson",
		IsMandatory: mandatory,
		Weight:      weight,
	}
	mustCreate(tb, db, lesson)
	return lesson
}

// QuizOpts overrides the defaults of SeedQuiz.
type QuizOpts struct {
	ModuleID     *uint
	Correct      int
	Points       float64
	PassRequired bool
	MaxAttempts  *int
	Mandatory    bool
}

func SeedQuiz(tb testing.TB, db *gorm.DB, courseID uint, opts QuizOpts) *models.Quiz {
	tb.Helper()
	points := opts.Points
	if points == 0 {
		points = 1
	}
	quiz := &models.Quiz{
		CourseID:           courseID,
		ModuleID:           opts.ModuleID,
		Title:              "quiz",
		Question:           "pick one",
		Options:            datatypes.JSON(`["a","b","c","d"]`),
		CorrectAnswerIndex: opts.Correct,
		Points:             points,
		PassRequired:       opts.PassRequired,
		MaxAttempts:        opts.MaxAttempts,
		IsMandatory:        opts.Mandatory,
		Weight:             1,
	}
	mustCreate(tb, db, quiz)
	return quiz
}

// AssignmentOpts overrides the defaults of SeedAssignment.
type AssignmentOpts struct {
	ModuleID     *uint
	MaxScore     float64
	PassingScore *float64
	DueDate      *time.Time
	AllowLate    bool
	LatePenalty  float64
	MaxAttempts  *int
	AutoGrade    bool
	AnswerKey    string
	Mandatory    bool
}

func SeedAssignment(tb testing.TB, db *gorm.DB, courseID uint, opts AssignmentOpts) *models.Assignment {
	tb.Helper()
	maxScore := opts.MaxScore
	if maxScore == 0 {
		maxScore = 100
	}
	assignment := &models.Assignment{
		CourseID:              courseID,
		ModuleID:              opts.ModuleID,
		Title:                 "assignment",
		MaxScore:              maxScore,
		PassingScore:          opts.PassingScore,
		DueDate:               opts.DueDate,
		LateSubmissionAllowed: opts.AllowLate,
		LatePenaltyPercent:    opts.LatePenalty,
		MaxAttempts:           opts.MaxAttempts,
		AutoGrade:             opts.AutoGrade,
		IsMandatory:           opts.Mandatory,
		Weight:                1,
	}
	if opts.AnswerKey != "" {
		assignment.AnswerKey = datatypes.JSON(opts.AnswerKey)
	}
	mustCreate(tb, db, assignment)
	return assignment
}

func SeedEnrollment(tb testing.TB, db *gorm.DB, userID, courseID uint, status models.EnrollmentStatus) *models.CourseEnrollment {
	tb.Helper()
	enrollment := &models.CourseEnrollment{
		UserID:         userID,
		CourseID:       courseID,
		EnrollmentDate: time.Now(),
		Status:         status,
		PaymentStatus:  models.PaymentFree,
	}
	if status == models.EnrollmentCompleted {
		now := time.Now()
		enrollment.CompletedAt = &now
		enrollment.Progress = 100
	}
	mustCreate(tb, db, enrollment)
	return enrollment
}

func Ptr[T any](v T) *T { return &v }

func mustCreate(tb testing.TB, db *gorm.DB, v interface{}) {
	tb.Helper()
	if err := db.WithContext(context.Background()).Create(v).Error; err != nil {
		tb.Fatalf("seed %T: %v", v, err)
	}
}
