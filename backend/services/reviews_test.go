package services

import (
	"testing"

	"learnprogress/backend/models"
	"learnprogress/backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReviewOverwrites(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	user := testutil.SeedUser(t, h.db, "alice")

	first, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{
		Rating:         3,
		Title:          "  Decent  ",
		Comment:        "ok course",
		Pros:           "short",
		WouldRecommend: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Decent", first.Title)
	assert.Equal(t, models.ReviewApproved, first.Status)

	_, err = h.svc.Reviews.MarkHelpful(h.ctx, first.ID)
	require.NoError(t, err)
	_, err = h.svc.Reviews.UpdateStatus(h.ctx, first.ID, models.ReviewRejected, testutil.Ptr("spam?"))
	require.NoError(t, err)

	second, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{
		Rating:           5,
		Comment:          "much better after the update",
		InstructorRating: testutil.Ptr(4),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Rating)
	assert.Equal(t, "", second.Title)
	assert.Equal(t, "", second.Pros)
	assert.False(t, second.WouldRecommend)
	assert.Equal(t, 4, *second.InstructorRating)
	assert.Equal(t, models.ReviewPending, second.Status, "a rejected review returns to moderation")
	assert.Empty(t, second.ModeratorNotes)
	assert.Equal(t, 1, second.HelpfulVotes)

	all, err := h.svc.Reviews.ListCourseReviews(h.ctx, course.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResubmittedRejectedReviewStaysHidden(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	user := testutil.SeedUser(t, h.db, "alice")

	review, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 1, Comment: "buy my course instead"})
	require.NoError(t, err)
	_, err = h.svc.Reviews.UpdateStatus(h.ctx, review.ID, models.ReviewRejected, nil)
	require.NoError(t, err)

	_, err = h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 1, Comment: "seriously, buy mine"})
	require.NoError(t, err)

	approved, err := h.svc.Reviews.ListCourseReviews(h.ctx, course.ID, models.ReviewApproved)
	require.NoError(t, err)
	assert.Empty(t, approved)
	stats, err := h.svc.Stats.GetReviewStats(h.ctx, course.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalReviews)

	approvedAgain, err := h.svc.Reviews.UpdateStatus(h.ctx, review.ID, models.ReviewApproved, nil)
	require.NoError(t, err)
	require.Equal(t, models.ReviewApproved, approvedAgain.Status)
	edited, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 2, Comment: "fair enough"})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, edited.Status, "an approved review follows the default")
}

func TestSubmitReviewValidation(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	user := testutil.SeedUser(t, h.db, "alice")

	cases := map[string]ReviewInput{
		"rating too low":  {Rating: 0, Comment: "x"},
		"rating too high": {Rating: 6, Comment: "x"},
		"blank comment":   {Rating: 4, Comment: "   "},
		"bad sub-rating":  {Rating: 4, Comment: "x", ContentQuality: testutil.Ptr(9)},
		"bad completion":  {Rating: 4, Comment: "x", CompletionPercentage: testutil.Ptr(101)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, 9999, ReviewInput{Rating: 4, Comment: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitReviewCompletionDefaultsToEnrollmentProgress(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	lesson := testutil.SeedLesson(t, h.db, course.ID, nil, true, 1)
	testutil.SeedLesson(t, h.db, course.ID, nil, true, 1)
	user, e := h.enroll(t, "alice", course.ID)
	_, err := h.svc.Progress.MarkComplete(h.ctx, e.ID, lessonRef(lesson.ID), 100)
	require.NoError(t, err)

	review, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 4, Comment: "halfway"})
	require.NoError(t, err)
	assert.Equal(t, 50, review.CompletionPercentage)

	review, err = h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{
		Rating:               4,
		Comment:              "halfway",
		CompletionPercentage: testutil.Ptr(80),
	})
	require.NoError(t, err)
	assert.Equal(t, 80, review.CompletionPercentage)
}

func TestPendingReviewsByDefault(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ReviewDefaultStatus = "pending" })
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	user := testutil.SeedUser(t, h.db, "alice")

	review, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 5, Comment: "great"})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, review.Status)

	stats, err := h.svc.Stats.GetReviewStats(h.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalReviews)

	_, err = h.svc.Reviews.UpdateStatus(h.ctx, review.ID, models.ReviewApproved, nil)
	require.NoError(t, err)

	stats, err = h.svc.Stats.GetReviewStats(h.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalReviews, "moderation invalidates cached stats")
	assert.Equal(t, 5.0, stats.AverageRating)
}

func TestReviewModeration(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	user := testutil.SeedUser(t, h.db, "alice")
	review, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 2, Comment: "meh"})
	require.NoError(t, err)

	rejected, err := h.svc.Reviews.UpdateStatus(h.ctx, review.ID, models.ReviewRejected, testutil.Ptr(" off-topic "))
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, rejected.Status)
	assert.Equal(t, "off-topic", rejected.ModeratorNotes)

	back, err := h.svc.Reviews.UpdateStatus(h.ctx, review.ID, models.ReviewPending, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, back.Status)
	assert.Equal(t, "off-topic", back.ModeratorNotes)

	_, err = h.svc.Reviews.UpdateStatus(h.ctx, review.ID, "hidden", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.svc.Reviews.UpdateStatus(h.ctx, 9999, models.ReviewApproved, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err := h.svc.Reviews.ListCourseReviews(h.ctx, course.ID, models.ReviewPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	approved, err := h.svc.Reviews.ListCourseReviews(h.ctx, course.ID, models.ReviewApproved)
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func TestMarkHelpful(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	user := testutil.SeedUser(t, h.db, "alice")
	review, err := h.svc.Reviews.SubmitReview(h.ctx, user.ID, course.ID, ReviewInput{Rating: 4, Comment: "good"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		got, err := h.svc.Reviews.MarkHelpful(h.ctx, review.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.HelpfulVotes)
	}

	_, err = h.svc.Reviews.MarkHelpful(h.ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnonymousReviewsHideAuthor(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, "Go", 0)
	alice := testutil.SeedUser(t, h.db, "alice")
	bob := testutil.SeedUser(t, h.db, "bob")

	_, err := h.svc.Reviews.SubmitReview(h.ctx, alice.ID, course.ID, ReviewInput{Rating: 4, Comment: "signed"})
	require.NoError(t, err)
	_, err = h.svc.Reviews.SubmitReview(h.ctx, bob.ID, course.ID, ReviewInput{Rating: 1, Comment: "anon", IsAnonymous: true})
	require.NoError(t, err)

	reviews, err := h.svc.Reviews.ListCourseReviews(h.ctx, course.ID, models.ReviewApproved)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	for _, r := range reviews {
		if r.IsAnonymous {
			assert.Zero(t, r.UserID)
		} else {
			assert.Equal(t, alice.ID, r.UserID)
		}
	}
}
