package services

import (
	"context"
	"fmt"
	"time"

	"learnprogress/backend/models"
	"learnprogress/backend/store"

	"go.uber.org/zap"
)

type ReviewStats struct {
	TotalReviews       int64         `json:"total_reviews"`
	AverageRating      float64       `json:"average_rating"`
	RatingDistribution map[int]int64 `json:"rating_distribution"`
}

type CourseProgressSummary struct {
	CourseID           uint                            `json:"course_id"`
	TotalEnrollments   int                             `json:"total_enrollments"`
	ByStatus           map[models.EnrollmentStatus]int `json:"by_status"`
	ByPaymentStatus    map[models.PaymentStatus]int    `json:"by_payment_status"`
	AverageProgress    float64                         `json:"average_progress"`
	CompletionRate     float64                         `json:"completion_rate"`
	CertificatesIssued int                             `json:"certificates_issued"`
	Units              []UnitSummary                   `json:"units"`
}

// UnitSummary aggregates the progress rows of one unit across enrollments.
type UnitSummary struct {
	UnitKey           string              `json:"unit_key"`
	Type              models.ProgressType `json:"type"`
	Started           int                 `json:"started"`
	Completed         int                 `json:"completed"`
	Failed            int                 `json:"failed"`
	AverageCompletion float64             `json:"average_completion"`
	TotalTimeMinutes  int                 `json:"total_time_minutes"`
}

type UserProgressSummary struct {
	UserID             uint                            `json:"user_id"`
	TotalEnrollments   int                             `json:"total_enrollments"`
	ByStatus           map[models.EnrollmentStatus]int `json:"by_status"`
	AverageProgress    float64                         `json:"average_progress"`
	CertificatesIssued int                             `json:"certificates_issued"`
	QuizAttempts       int64                           `json:"quiz_attempts"`
	QuizzesPassed      int64                           `json:"quizzes_passed"`
	AverageQuizScore   float64                         `json:"average_quiz_score"`
}

type CourseOverview struct {
	models.Course
	AverageRating   float64 `json:"average_rating"`
	ReviewCount     int64   `json:"review_count"`
	EnrollmentCount int64   `json:"enrollment_count"`
}

// StatisticsAggregator derives read-only rollups. Nothing it computes is
// persisted except in the stats cache.
type StatisticsAggregator struct {
	store *store.Store
	cache StatsCache
	ttl   time.Duration
	log   *zap.Logger
}

// GetReviewStats covers approved reviews only. Every rating 1..5 is present
// in the distribution.
func (s *StatisticsAggregator) GetReviewStats(ctx context.Context, courseID uint) (*ReviewStats, error) {
	course, err := s.store.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", courseID)
	}
	stats, err := cachedValue(ctx, s, reviewStatsKey(courseID), func() (ReviewStats, error) {
		counts, err := s.store.Reviews.RatingCounts(ctx, courseID, models.ReviewApproved)
		if err != nil {
			return ReviewStats{}, err
		}
		return reviewStats(counts), nil
	})
	if err != nil {
		return nil, fmt.Errorf("review statistics: %w", err)
	}
	return &stats, nil
}

func reviewStats(counts map[int]int64) ReviewStats {
	out := ReviewStats{RatingDistribution: make(map[int]int64, 5)}
	var sum int64
	for rating := 1; rating <= 5; rating++ {
		n := counts[rating]
		out.RatingDistribution[rating] = n
		out.TotalReviews += n
		sum += int64(rating) * n
	}
	if out.TotalReviews > 0 {
		out.AverageRating = roundTo(float64(sum)/float64(out.TotalReviews), 1)
	}
	return out
}

// GetCourseProgressSummary composes enrollment and progress reads for one course.
func (s *StatisticsAggregator) GetCourseProgressSummary(ctx context.Context, courseID uint) (*CourseProgressSummary, error) {
	course, err := s.store.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", courseID)
	}
	enrollments, err := s.store.Enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	rows, err := s.store.Progress.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	out := &CourseProgressSummary{
		CourseID:         courseID,
		TotalEnrollments: len(enrollments),
		ByStatus:         zeroStatusCounts(),
		ByPaymentStatus:  map[models.PaymentStatus]int{},
		Units:            []UnitSummary{},
	}
	progressSum := 0
	for _, e := range enrollments {
		out.ByStatus[e.Status]++
		out.ByPaymentStatus[e.PaymentStatus]++
		progressSum += e.Progress
		if e.CertificateIssued {
			out.CertificatesIssued++
		}
	}
	if n := len(enrollments); n > 0 {
		out.AverageProgress = roundTo(float64(progressSum)/float64(n), 2)
		out.CompletionRate = roundTo(float64(out.ByStatus[models.EnrollmentCompleted])/float64(n)*100, 2)
	}

	index := map[string]int{}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, row := range rows {
		if row.ProgressType == models.ProgressCourse {
			continue
		}
		i, ok := index[row.UnitKey]
		if !ok {
			i = len(out.Units)
			index[row.UnitKey] = i
			out.Units = append(out.Units, UnitSummary{UnitKey: row.UnitKey, Type: row.ProgressType})
		}
		u := &out.Units[i]
		if row.Status != models.ProgressNotStarted {
			u.Started++
		}
		switch row.Status {
		case models.ProgressCompleted:
			u.Completed++
		case models.ProgressFailed:
			u.Failed++
		}
		u.TotalTimeMinutes += row.TimeSpentMinutes
		sums[row.UnitKey] += row.CompletionPercentage
		counts[row.UnitKey]++
	}
	for i := range out.Units {
		key := out.Units[i].UnitKey
		out.Units[i].AverageCompletion = roundTo(sums[key]/float64(counts[key]), 2)
	}
	return out, nil
}

func (s *StatisticsAggregator) GetUserProgressSummary(ctx context.Context, userID uint) (*UserProgressSummary, error) {
	enrollments, err := s.store.Enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	quiz, err := s.store.Submissions.QuizStatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("quiz statistics: %w", err)
	}
	out := &UserProgressSummary{
		UserID:           userID,
		TotalEnrollments: len(enrollments),
		ByStatus:         zeroStatusCounts(),
		QuizAttempts:     quiz.Total,
		QuizzesPassed:    quiz.Passed,
		AverageQuizScore: roundTo(quiz.Average, 2),
	}
	progressSum := 0
	for _, e := range enrollments {
		out.ByStatus[e.Status]++
		progressSum += e.Progress
		if e.CertificateIssued {
			out.CertificatesIssued++
		}
	}
	if n := len(enrollments); n > 0 {
		out.AverageProgress = roundTo(float64(progressSum)/float64(n), 2)
	}
	return out, nil
}

// CatalogOverview lists published courses matching query with their approved
// rating and enrollment counts.
func (s *StatisticsAggregator) CatalogOverview(ctx context.Context, query string) ([]CourseOverview, error) {
	courses, err := s.store.Courses.ListCourses(ctx, store.CourseFilter{Query: query, PublishedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	ids := make([]uint, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	ratings, err := s.store.Reviews.RatingSummaries(ctx, ids, models.ReviewApproved)
	if err != nil {
		return nil, fmt.Errorf("rating summaries: %w", err)
	}
	enrolled, err := s.store.Enrollments.CountByCourses(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("enrollment counts: %w", err)
	}
	out := make([]CourseOverview, 0, len(courses))
	for _, c := range courses {
		r := ratings[c.ID]
		out = append(out, CourseOverview{
			Course:          c,
			AverageRating:   roundTo(r.Average, 1),
			ReviewCount:     r.Total,
			EnrollmentCount: enrolled[c.ID],
		})
	}
	return out, nil
}

func zeroStatusCounts() map[models.EnrollmentStatus]int {
	return map[models.EnrollmentStatus]int{
		models.EnrollmentActive:    0,
		models.EnrollmentCompleted: 0,
		models.EnrollmentDropped:   0,
		models.EnrollmentSuspended: 0,
	}
}

// cachedValue returns the cached value under key or computes and stores it.
func cachedValue[T any](ctx context.Context, s *StatisticsAggregator, key string, compute func() (T, error)) (T, error) {
	var out T
	if s.cache.Get(ctx, key, &out) {
		return out, nil
	}
	out, err := compute()
	if err != nil {
		return out, err
	}
	s.cache.Set(ctx, key, out, s.ttl)
	return out, nil
}

func (s *StatisticsAggregator) invalidate(ctx context.Context, keys ...string) {
	s.cache.Delete(ctx, keys...)
}

func reviewStatsKey(courseID uint) string { return fmt.Sprintf("stats:reviews:%d", courseID) }
