package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnprogress/backend/models"
	"learnprogress/backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	st := New(db, testutil.Logger(t))

	user := testutil.SeedUser(t, db, "alice")
	course := testutil.SeedCourse(t, db, "Go", 0)

	missing, err := st.Enrollments.FindByUserAndCourse(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	e := &models.CourseEnrollment{
		UserID: user.ID, CourseID: course.ID, EnrollmentDate: time.Now(),
		Status: models.EnrollmentActive, PaymentStatus: models.PaymentFree,
	}
	require.NoError(t, st.Enrollments.Create(ctx, e))

	dup := &models.CourseEnrollment{
		UserID: user.ID, CourseID: course.ID, EnrollmentDate: time.Now(),
		Status: models.EnrollmentActive, PaymentStatus: models.PaymentFree,
	}
	assert.True(t, IsDuplicate(st.Enrollments.Create(ctx, dup)))

	require.NoError(t, st.Enrollments.AdvanceProgress(ctx, e.ID, 40))
	require.NoError(t, st.Enrollments.AdvanceProgress(ctx, e.ID, 20))
	got, err := st.Enrollments.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)

	n, err := st.Enrollments.CountByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	counts, err := st.Enrollments.CountByCourses(ctx, []uint{course.ID, course.ID + 100})
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[course.ID])
	assert.Zero(t, counts[course.ID+100])

	assert.ErrorIs(t, st.Enrollments.Update(ctx, 9999, map[string]interface{}{"status": "dropped"}), ErrRowNotFound)
}

func TestProgressRepoUniqueUnit(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	st := New(db, testutil.Logger(t))

	user := testutil.SeedUser(t, db, "bob")
	course := testutil.SeedCourse(t, db, "Go", 0)
	lesson := testutil.SeedLesson(t, db, course.ID, nil, true, 1)
	e := testutil.SeedEnrollment(t, db, user.ID, course.ID, models.EnrollmentActive)

	key := models.UnitKey(models.ProgressLesson, lesson.ID)
	row := &models.CourseProgress{
		EnrollmentID: e.ID, UnitKey: key, CourseID: course.ID, UserID: user.ID,
		LessonID: &lesson.ID, ProgressType: models.ProgressLesson, Status: models.ProgressNotStarted,
	}
	require.NoError(t, st.Progress.Create(ctx, row))

	again := *row
	again.ID = 0
	assert.True(t, IsDuplicate(st.Progress.Create(ctx, &again)))

	found, err := st.Progress.FindByUnit(ctx, e.ID, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, row.ID, found.ID)

	again = *row
	again.ID = 0
	created, err := st.Progress.CreateIfAbsent(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created, "an existing unit row is left alone")

	moduleKey := models.UnitKey(models.ProgressModule, 7)
	fresh := &models.CourseProgress{
		EnrollmentID: e.ID, UnitKey: moduleKey, CourseID: course.ID, UserID: user.ID,
		ProgressType: models.ProgressModule, Status: models.ProgressNotStarted,
	}
	created, err = st.Progress.CreateIfAbsent(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, fresh.ID)

	rows, err := st.Progress.ListByEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTransaction(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	st := New(db, testutil.Logger(t))

	user := testutil.SeedUser(t, db, "dave")
	course := testutil.SeedCourse(t, db, "Go", 0)
	enrollment := func() *models.CourseEnrollment {
		return &models.CourseEnrollment{
			UserID: user.ID, CourseID: course.ID, EnrollmentDate: time.Now(),
			Status: models.EnrollmentActive, PaymentStatus: models.PaymentFree,
		}
	}

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(ctx context.Context) error {
		require.NoError(t, st.Enrollments.Create(ctx, enrollment()))
		require.NoError(t, st.Users.UpdateRole(ctx, user.ID, models.RoleStudent))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	missing, err := st.Enrollments.FindByUserAndCourse(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Nil(t, missing, "rolled back")
	reloaded, err := st.Users.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, reloaded.Role)

	err = st.Transaction(ctx, func(ctx context.Context) error {
		return st.Transaction(ctx, func(ctx context.Context) error {
			return st.Enrollments.Create(ctx, enrollment())
		})
	})
	require.NoError(t, err)
	n, err := st.Enrollments.CountByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSubmissionRepoStats(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	st := New(db, testutil.Logger(t))

	user := testutil.SeedUser(t, db, "carol")
	course := testutil.SeedCourse(t, db, "Go", 0)
	quiz := testutil.SeedQuiz(t, db, course.ID, testutil.QuizOpts{Points: 10})

	empty, err := st.Submissions.QuizStats(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.Average)

	for i, score := range []float64{10, 0, 10} {
		sub := &models.QuizSubmission{
			UserID: user.ID, QuizID: quiz.ID, CourseID: course.ID, AttemptNumber: i + 1,
			SubmittedAt: time.Now(), Score: score, MaxScore: 10, IsPassed: score > 0,
			Status: models.SubmissionGraded,
		}
		require.NoError(t, st.Submissions.CreateQuizSubmission(ctx, sub))
	}

	last, err := st.Submissions.MaxQuizAttempt(ctx, user.ID, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, last)

	latest, err := st.Submissions.LatestQuizSubmission(ctx, user.ID, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.AttemptNumber)

	stats, err := st.Submissions.QuizStats(ctx, quiz.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.Passed)
	assert.InDelta(t, 6.6667, stats.Average, 0.001)

	collide := &models.QuizSubmission{
		UserID: user.ID, QuizID: quiz.ID, CourseID: course.ID, AttemptNumber: 2,
		SubmittedAt: time.Now(), Status: models.SubmissionGraded,
	}
	assert.True(t, IsDuplicate(st.Submissions.CreateQuizSubmission(ctx, collide)))
}

func TestReviewRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	st := New(db, testutil.Logger(t))

	course := testutil.SeedCourse(t, db, "Go", 0)
	ratings := []int{5, 5, 4, 3, 5}
	var first *models.Review
	for i, rating := range ratings {
		u := testutil.SeedUser(t, db, "reviewer"+string(rune('a'+i)))
		r := &models.Review{UserID: u.ID, CourseID: course.ID, Rating: rating, Comment: "ok", Status: models.ReviewApproved}
		require.NoError(t, st.Reviews.Create(ctx, r))
		if first == nil {
			first = r
		}
	}
	pendingUser := testutil.SeedUser(t, db, "pending")
	require.NoError(t, st.Reviews.Create(ctx, &models.Review{
		UserID: pendingUser.ID, CourseID: course.ID, Rating: 1, Comment: "meh", Status: models.ReviewPending,
	}))

	counts, err := st.Reviews.RatingCounts(ctx, course.ID, models.ReviewApproved)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{3: 1, 4: 1, 5: 3}, counts)

	summaries, err := st.Reviews.RatingSummaries(ctx, []uint{course.ID}, models.ReviewApproved)
	require.NoError(t, err)
	assert.EqualValues(t, 5, summaries[course.ID].Total)
	assert.InDelta(t, 4.4, summaries[course.ID].Average, 0.0001)

	require.NoError(t, st.Reviews.IncrementHelpful(ctx, first.ID))
	require.NoError(t, st.Reviews.IncrementHelpful(ctx, first.ID))
	got, err := st.Reviews.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HelpfulVotes)

	assert.ErrorIs(t, st.Reviews.IncrementHelpful(ctx, 9999), ErrRowNotFound)

	all, err := st.Reviews.ListByCourse(ctx, course.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Equal(t, first.ID, all[0].ID)
}
