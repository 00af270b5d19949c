package routes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"learnprogress/backend/config"
	"learnprogress/backend/models"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/testutil"
	"learnprogress/backend/utils"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testApp struct {
	app *fiber.App
	db  *gorm.DB
	st  *store.Store
	cfg *config.Config
}

func setup(t *testing.T) *testApp {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cfg := &config.Config{JWTSecret: "testsecret", JWTTTLHours: 1}
	st := store.New(db, log)
	svc := services.New(st, nil, services.Options{AutoCompleteEnrollment: true}, log)

	app := fiber.New(fiber.Config{JSONEncoder: sonic.Marshal, JSONDecoder: sonic.Unmarshal})
	SetupRoutes(app, svc, st, cfg, log)
	return &testApp{app: app, db: db, st: st, cfg: cfg}
}

func (a *testApp) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateJWTToken(user.ID, a.cfg)
	require.NoError(t, err)
	return token
}

func (a *testApp) manager(t *testing.T, username string) *models.User {
	t.Helper()
	user := testutil.SeedUser(t, a.db, username)
	require.NoError(t, a.db.Model(user).Update("role", models.RoleInstructor).Error)
	return user
}

// do sends a JSON request and decodes the envelope.
func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func TestRegisterAndLogin(t *testing.T) {
	a := setup(t)

	status, body := a.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "john_doe",
		"email":    "John@Example.com",
		"password": "password123",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	user := data(t, body)["user"].(map[string]interface{})
	assert.Equal(t, "john@example.com", user["email"])
	assert.Equal(t, models.RoleUser, user["role"])
	assert.NotContains(t, user, "password_hash")

	status, _ = a.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "john_doe",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = a.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": "john_doe",
		"password": "password123",
	})
	require.Equal(t, fiber.StatusOK, status)
	token, _ := data(t, body)["token"].(string)
	assert.NotEmpty(t, token)

	status, _ = a.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": "john_doe",
		"password": "wrong-password",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = a.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "john_doe", data(t, body)["user"].(map[string]interface{})["username"])
}

func TestRegisterValidation(t *testing.T) {
	a := setup(t)

	status, body := a.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "jo",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, details, "username")
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
}

func TestAuthRequired(t *testing.T) {
	a := setup(t)

	status, _ := a.do(t, http.MethodGet, "/api/enrollments", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodGet, "/api/enrollments", "garbage", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestEnrollTwiceReturnsNotice(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	token := a.token(t, user)
	path := fmt.Sprintf("/api/courses/%d/enroll", course.ID)

	status, body := a.do(t, http.MethodPost, path, token, nil)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, data(t, body)["role_updated"])

	promoted, err := a.st.Users.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, promoted.Role)

	status, body = a.do(t, http.MethodPost, path, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Already enrolled in this course", body["message"])
	assert.Equal(t, false, data(t, body)["role_updated"])

	status, body = a.do(t, http.MethodGet, "/api/enrollments", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestEnrollRetryPromotesLearner(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	testutil.SeedEnrollment(t, a.db, user.ID, course.ID, models.EnrollmentActive)

	status, body := a.do(t, http.MethodPost, fmt.Sprintf("/api/courses/%d/enroll", course.ID), a.token(t, user), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, data(t, body)["role_updated"])

	promoted, err := a.st.Users.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, promoted.Role)
}

func TestEnrollMissingCourse(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")

	status, _ := a.do(t, http.MethodPost, "/api/courses/999/enroll", a.token(t, user), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestQuizSubmissionFlow(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	quiz := testutil.SeedQuiz(t, a.db, course.ID, testutil.QuizOpts{
		Correct:      2,
		Points:       10,
		PassRequired: true,
		MaxAttempts:  testutil.Ptr(2),
		Mandatory:    true,
	})
	enrollment := testutil.SeedEnrollment(t, a.db, user.ID, course.ID, models.EnrollmentActive)
	token := a.token(t, user)
	path := fmt.Sprintf("/api/quizzes/%d/submissions", quiz.ID)

	status, body := a.do(t, http.MethodPost, path, token, fiber.Map{})
	require.Equal(t, fiber.StatusUnprocessableEntity, status, body)

	status, body = a.do(t, http.MethodPost, path, token, fiber.Map{"selected_answer": 0})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, false, data(t, body)["is_passed"])
	assert.EqualValues(t, 1, data(t, body)["attempt_number"])

	status, body = a.do(t, http.MethodPost, path, token, fiber.Map{"selected_answer": 2})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, data(t, body)["is_passed"])
	assert.EqualValues(t, 10, data(t, body)["score"])

	status, _ = a.do(t, http.MethodPost, path, token, fiber.Map{"selected_answer": 2})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = a.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 2)

	status, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/quizzes/%d/statistics", quiz.ID), token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, data(t, body)["total_submissions"])

	status, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d/completion", enrollment.ID), token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 100, data(t, body)["completion_percentage"])
}

func TestForeignEnrollmentIsForbidden(t *testing.T) {
	a := setup(t)
	owner := testutil.SeedUser(t, a.db, "alice")
	other := testutil.SeedUser(t, a.db, "mallory")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	lesson := testutil.SeedLesson(t, a.db, course.ID, nil, true, 1)
	enrollment := testutil.SeedEnrollment(t, a.db, owner.ID, course.ID, models.EnrollmentActive)

	body := fiber.Map{
		"enrollment_id": enrollment.ID,
		"unit":          fiber.Map{"type": "lesson", "id": lesson.ID},
	}
	status, _ := a.do(t, http.MethodPost, "/api/progress/complete", a.token(t, other), body)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d/progress", enrollment.ID), a.token(t, other), nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, resp := a.do(t, http.MethodPost, "/api/progress/complete", a.token(t, owner), body)
	require.Equal(t, fiber.StatusOK, status, resp)
	assert.Equal(t, string(models.ProgressCompleted), data(t, resp)["status"])

	// managers may read any enrollment
	instructor := a.manager(t, "prof")
	status, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d/progress", enrollment.ID), a.token(t, instructor), nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestGradedUnitsRejectSelfCompletion(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	quiz := testutil.SeedQuiz(t, a.db, course.ID, testutil.QuizOpts{Correct: 1, PassRequired: true, Mandatory: true})
	assignment := testutil.SeedAssignment(t, a.db, course.ID, testutil.AssignmentOpts{Mandatory: true})
	enrollment := testutil.SeedEnrollment(t, a.db, user.ID, course.ID, models.EnrollmentActive)
	token := a.token(t, user)

	units := []fiber.Map{
		{"type": "quiz", "id": quiz.ID},
		{"type": "assignment", "id": assignment.ID},
	}
	for _, unit := range units {
		status, body := a.do(t, http.MethodPost, "/api/progress/complete", token, fiber.Map{
			"enrollment_id": enrollment.ID,
			"unit":          unit,
		})
		assert.Equal(t, fiber.StatusUnprocessableEntity, status, body)

		status, body = a.do(t, http.MethodPost, "/api/progress", token, fiber.Map{
			"enrollment_id": enrollment.ID,
			"unit":          unit,
			"is_completed":  true,
		})
		assert.Equal(t, fiber.StatusUnprocessableEntity, status, body)
	}

	status, body := a.do(t, http.MethodPost, fmt.Sprintf("/api/enrollments/%d/certificate", enrollment.ID), token, nil)
	assert.Equal(t, fiber.StatusConflict, status, body)

	status, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d/completion", enrollment.ID), token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, data(t, body)["completion_percentage"])
}

func TestProgressRegressionConflict(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	testutil.SeedLesson(t, a.db, course.ID, nil, true, 1)
	lesson := testutil.SeedLesson(t, a.db, course.ID, nil, true, 1)
	enrollment := testutil.SeedEnrollment(t, a.db, user.ID, course.ID, models.EnrollmentActive)
	token := a.token(t, user)

	complete := func(pct float64) int {
		status, _ := a.do(t, http.MethodPost, "/api/progress/complete", token, fiber.Map{
			"enrollment_id":         enrollment.ID,
			"unit":                  fiber.Map{"type": "lesson", "id": lesson.ID},
			"completion_percentage": pct,
		})
		return status
	}
	assert.Equal(t, fiber.StatusOK, complete(60))
	assert.Equal(t, fiber.StatusConflict, complete(40))
	assert.Equal(t, fiber.StatusUnprocessableEntity, complete(150))
}

func TestAdminRoutesRequireManager(t *testing.T) {
	a := setup(t)
	learner := testutil.SeedUser(t, a.db, "alice")
	instructor := a.manager(t, "prof")

	course := fiber.Map{"title": "Distributed Systems", "price": 0, "is_published": true}
	status, _ := a.do(t, http.MethodPost, "/api/admin/courses", a.token(t, learner), course)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := a.do(t, http.MethodPost, "/api/admin/courses", a.token(t, instructor), course)
	require.Equal(t, fiber.StatusCreated, status, body)
	courseID := uint(data(t, body)["id"].(float64))

	status, body = a.do(t, http.MethodPost, fmt.Sprintf("/api/admin/courses/%d/quizzes", courseID), a.token(t, instructor), fiber.Map{
		"title":                "Warm-up",
		"question":             "2+2?",
		"options":              []string{"3", "4"},
		"correct_answer_index": 5,
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, body)

	status, body = a.do(t, http.MethodPost, fmt.Sprintf("/api/admin/courses/%d/quizzes", courseID), a.token(t, instructor), fiber.Map{
		"title":                "Warm-up",
		"question":             "2+2?",
		"options":              []string{"3", "4"},
		"correct_answer_index": 1,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.NotContains(t, data(t, body), "correct_answer_index")

	status, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/admin/courses/%d/progress-summary", courseID), a.token(t, learner), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/admin/courses/%d/progress-summary", courseID), a.token(t, instructor), nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAssignmentGradingFlow(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	instructor := a.manager(t, "prof")
	rival := a.manager(t, "rival")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	require.NoError(t, a.db.Model(course).Update("author_id", instructor.ID).Error)
	assignment := testutil.SeedAssignment(t, a.db, course.ID, testutil.AssignmentOpts{Mandatory: true})
	testutil.SeedEnrollment(t, a.db, user.ID, course.ID, models.EnrollmentActive)

	status, body := a.do(t, http.MethodPost, fmt.Sprintf("/api/assignments/%d/submissions", assignment.ID), a.token(t, user), fiber.Map{
		"content": "my essay",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, string(models.SubmissionSubmitted), data(t, body)["status"])
	submissionID := uint(data(t, body)["id"].(float64))

	queuePath := fmt.Sprintf("/api/admin/assignments/%d/submissions", assignment.ID)
	status, body = a.do(t, http.MethodGet, queuePath, a.token(t, instructor), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)
	status, _ = a.do(t, http.MethodGet, queuePath, a.token(t, rival), nil)
	assert.Equal(t, fiber.StatusForbidden, status, "instructors only see queues of their own courses")
	status, _ = a.do(t, http.MethodGet, "/api/admin/assignments/9999/submissions", a.token(t, instructor), nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	gradePath := fmt.Sprintf("/api/admin/submissions/%d/grade", submissionID)
	status, _ = a.do(t, http.MethodPut, gradePath, a.token(t, user), fiber.Map{"score": 90})
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = a.do(t, http.MethodPut, gradePath, a.token(t, rival), fiber.Map{"score": 10})
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = a.do(t, http.MethodPut, "/api/admin/submissions/9999/grade", a.token(t, instructor), fiber.Map{"score": 10})
	assert.Equal(t, fiber.StatusNotFound, status)

	pending, err := a.st.Submissions.GetAssignmentSubmission(context.Background(), submissionID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, pending.Status, "a refused grade leaves the submission alone")

	status, body = a.do(t, http.MethodPut, gradePath, a.token(t, instructor), fiber.Map{"score": 90, "feedback": "good"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, string(models.SubmissionGraded), data(t, body)["status"])
	assert.EqualValues(t, 90, data(t, body)["score"])

	admin := testutil.SeedUser(t, a.db, "root")
	require.NoError(t, a.db.Model(admin).Update("role", models.RoleAdmin).Error)
	status, body = a.do(t, http.MethodPut, gradePath, a.token(t, admin), fiber.Map{"score": 95})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 95, data(t, body)["score"])
}

func TestReviewRoutes(t *testing.T) {
	a := setup(t)
	user := testutil.SeedUser(t, a.db, "alice")
	instructor := a.manager(t, "prof")
	course := testutil.SeedCourse(t, a.db, "Go", 0)
	testutil.SeedEnrollment(t, a.db, user.ID, course.ID, models.EnrollmentActive)
	token := a.token(t, user)
	reviewsPath := fmt.Sprintf("/api/courses/%d/reviews", course.ID)

	status, _ := a.do(t, http.MethodPost, reviewsPath, token, fiber.Map{"rating": 6, "comment": "too good"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, body := a.do(t, http.MethodPost, reviewsPath, token, fiber.Map{"rating": 4, "comment": "solid"})
	require.Equal(t, fiber.StatusOK, status, body)
	reviewID := uint(data(t, body)["id"].(float64))

	status, body = a.do(t, http.MethodGet, reviewsPath+"/stats", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 4, data(t, body)["average_rating"])
	assert.Len(t, data(t, body)["rating_distribution"], 5)

	status, _ = a.do(t, http.MethodGet, reviewsPath+"?status=pending", token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = a.do(t, http.MethodPost, fmt.Sprintf("/api/reviews/%d/helpful", reviewID), token, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = a.do(t, http.MethodPut, fmt.Sprintf("/api/admin/reviews/%d/status", reviewID), a.token(t, instructor), fiber.Map{
		"status": "rejected",
	})
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = a.do(t, http.MethodGet, reviewsPath, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = a.do(t, http.MethodGet, reviewsPath+"?status=all", a.token(t, instructor), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)
}
