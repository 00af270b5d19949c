package routes

import (
	"learnprogress/backend/config"
	"learnprogress/backend/controllers"
	"learnprogress/backend/middleware"
	"learnprogress/backend/services"
	"learnprogress/backend/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupRoutes(app *fiber.App, svc *services.Services, st *store.Store, cfg *config.Config, log *zap.Logger) {
	// Auth routes
	authController := controllers.NewAuthController(st.Users, cfg, log)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg)
	managerMiddleware := middleware.ManagerMiddleware(st.Users, log)

	// User routes
	userController := controllers.NewUserController(svc, st.Users, log)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)

	// Overview routes
	overviewController := controllers.NewOverviewController(svc, log)
	app.Get("/api/overview/courses", authMiddleware, overviewController.SearchCourses)

	coursesController := controllers.NewCoursesController(st.Courses, log)
	enrollmentController := controllers.NewEnrollmentController(svc, st.Users, log)
	reviewsController := controllers.NewReviewsController(svc, st.Users, log)

	// Courses routes
	courses := app.Group("/api/courses", authMiddleware)
	courses.Get("/:id", coursesController.GetCourse)
	courses.Post("/:id/enroll", enrollmentController.Enroll)
	courses.Get("/:id/enrollment", enrollmentController.GetMyEnrollment)
	courses.Post("/:id/reviews", reviewsController.SubmitReview)
	courses.Get("/:id/reviews", reviewsController.ListReviews)
	courses.Get("/:id/reviews/stats", reviewsController.GetReviewStats)

	app.Post("/api/reviews/:id/helpful", authMiddleware, reviewsController.MarkHelpful)

	// Enrollment routes
	enrollments := app.Group("/api/enrollments", authMiddleware)
	progressController := controllers.NewProgressController(svc, st.Users, log)
	enrollments.Get("/", enrollmentController.ListMyEnrollments)
	enrollments.Post("/:id/certificate", enrollmentController.IssueCertificate)
	enrollments.Get("/:id/progress", progressController.ListProgress)
	enrollments.Get("/:id/completion", progressController.GetCompletion)

	// Progress routes
	progress := app.Group("/api/progress", authMiddleware)
	progress.Post("/", progressController.UpdateProgress)
	progress.Post("/access", progressController.RecordAccess)
	progress.Post("/complete", progressController.MarkComplete)
	progress.Get("/summary", progressController.GetSummary)

	// Quiz and assignment routes
	submissionsController := controllers.NewSubmissionsController(svc, st, log)
	quizzes := app.Group("/api/quizzes", authMiddleware)
	quizzes.Post("/:id/submissions", submissionsController.SubmitQuiz)
	quizzes.Get("/:id/submissions", submissionsController.ListQuizAttempts)
	quizzes.Get("/:id/latest", submissionsController.GetLatestQuizAttempt)
	quizzes.Get("/:id/statistics", submissionsController.GetQuizStatistics)

	assignments := app.Group("/api/assignments", authMiddleware)
	assignments.Post("/:id/submissions", submissionsController.SubmitAssignment)
	assignments.Get("/:id/latest", submissionsController.GetLatestAssignmentAttempt)
	assignments.Get("/:id/statistics", submissionsController.GetAssignmentStatistics)

	// Admin routes
	analyticsController := controllers.NewAnalyticsController(svc, log)
	admin := app.Group("/api/admin", authMiddleware, managerMiddleware)
	admin.Post("/courses", coursesController.CreateCourse)
	admin.Post("/courses/:id/modules", coursesController.AddModule)
	admin.Post("/courses/:id/lessons", coursesController.AddLesson)
	admin.Post("/courses/:id/quizzes", coursesController.AddQuiz)
	admin.Post("/courses/:id/assignments", coursesController.AddAssignment)
	admin.Get("/courses/:id/enrollments", enrollmentController.ListCourseEnrollments)
	admin.Get("/courses/:id/progress-summary", analyticsController.GetCourseProgressSummary)

	admin.Put("/enrollments/:id/status", enrollmentController.UpdateStatus)
	admin.Post("/enrollments/:id/payments", enrollmentController.RecordPayment)
	admin.Post("/enrollments/:id/scholarship", enrollmentController.GrantScholarship)

	admin.Get("/assignments/:id/submissions", submissionsController.ListPendingSubmissions)
	admin.Put("/submissions/:id/grade", submissionsController.GradeSubmission)
	admin.Put("/reviews/:id/status", reviewsController.ModerateReview)
}
