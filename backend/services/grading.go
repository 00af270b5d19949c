package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"learnprogress/backend/models"
	"learnprogress/backend/store"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// attempt numbers are allocated as max+1; a unique key on
// (user, unit, attempt) rejects the loser of a race, which retries in a fresh
// transaction.
const attemptAllocRetries = 3

var errAttemptCollision = errors.New("could not allocate attempt number")

type AssessmentStats struct {
	TotalSubmissions int64   `json:"total_submissions"`
	AverageScore     float64 `json:"average_score"`
	PassRate         float64 `json:"pass_rate"`
}

type GradingEngine struct {
	store   *store.Store
	tracker *ProgressTracker
	stats   *StatisticsAggregator
	scorer  Scorer
	opts    Options
	now     func() time.Time
	log     *zap.Logger
}

// SetScorer replaces the auto-grading strategy for assignments.
func (g *GradingEngine) SetScorer(s Scorer) {
	g.scorer = s
}

func (g *GradingEngine) SubmitQuiz(ctx context.Context, userID, quizID uint, selected int) (*models.QuizSubmission, error) {
	quiz, err := g.store.Courses.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil {
		return nil, notFound("quiz", quizID)
	}
	e, err := g.requireEnrollment(ctx, userID, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	n, err := optionCount(quiz)
	if err != nil {
		return nil, err
	}
	if selected < 0 {
		return nil, invalid("selected_answer", "must not be negative")
	}
	if n > 0 && selected >= n {
		return nil, invalid("selected_answer", fmt.Sprintf("must be between 0 and %d", n-1))
	}

	score := 0.0
	if selected == quiz.CorrectAnswerIndex {
		score = quiz.Points
	}
	pct := roundTo(percentage(score, quiz.Points), 2)
	passed := true
	if quiz.PassRequired {
		passed = score > 0
	}

	var sub *models.QuizSubmission
	err = g.allocate(ctx, func(ctx context.Context) error {
		prior, err := g.store.Submissions.MaxQuizAttempt(ctx, userID, quizID)
		if err != nil {
			return fmt.Errorf("count quiz attempts: %w", err)
		}
		if quiz.MaxAttempts != nil && prior >= *quiz.MaxAttempts {
			return fmt.Errorf("quiz %d allows %d attempts: %w", quizID, *quiz.MaxAttempts, ErrAttemptLimitExceeded)
		}
		now := g.now()
		next := &models.QuizSubmission{
			UserID:         userID,
			QuizID:         quizID,
			AttemptNumber:  prior + 1,
			LessonID:       quiz.LessonID,
			CourseID:       quiz.CourseID,
			SelectedAnswer: selected,
			SubmittedAt:    now,
			Score:          score,
			MaxScore:       quiz.Points,
			Percentage:     pct,
			IsPassed:       passed,
			Status:         models.SubmissionGraded,
			GradedAt:       &now,
		}
		if err := g.store.Submissions.CreateQuizSubmission(ctx, next); err != nil {
			return fmt.Errorf("create quiz submission: %w", err)
		}
		err = g.tracker.recordResult(ctx, e, UnitRef{Type: models.ProgressQuiz, ID: quizID}, attemptResult{
			score:       score,
			maxScore:    quiz.Points,
			percentage:  pct,
			passed:      passed,
			attempts:    next.AttemptNumber,
			maxAttempts: quiz.MaxAttempts,
		})
		if err != nil {
			return fmt.Errorf("record quiz progress: %w", err)
		}
		sub = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("quiz graded",
		zap.Uint("user_id", userID),
		zap.Uint("quiz_id", quizID),
		zap.Int("attempt", sub.AttemptNumber),
		zap.Float64("score", score),
		zap.Bool("passed", passed),
	)
	g.stats.invalidate(ctx, quizStatsKey(quizID))
	return sub, nil
}

func (g *GradingEngine) SubmitAssignment(ctx context.Context, userID, assignmentID uint, payload AssignmentPayload) (*models.AssignmentSubmission, error) {
	if err := Validate(payload); err != nil {
		return nil, err
	}
	a, err := g.store.Courses.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if a == nil {
		return nil, notFound("assignment", assignmentID)
	}
	e, err := g.requireEnrollment(ctx, userID, a.CourseID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	late := a.DueDate != nil && now.After(*a.DueDate)
	if late && !a.LateSubmissionAllowed {
		return nil, fmt.Errorf("assignment %d was due %s: %w", assignmentID, a.DueDate.Format(time.RFC3339), ErrSubmissionClosed)
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode submission payload: %w", err)
	}
	penalty := 0.0
	if late {
		penalty = a.LatePenaltyPercent
	}

	// Scoring runs before anything is written so a scorer failure leaves no
	// attempt behind.
	var raw float64
	if a.AutoGrade {
		if raw, err = g.scorer.Score(a, payload); err != nil {
			return nil, fmt.Errorf("auto-grade assignment %d: %w", assignmentID, err)
		}
	}

	var sub *models.AssignmentSubmission
	err = g.allocate(ctx, func(ctx context.Context) error {
		prior, err := g.store.Submissions.MaxAssignmentAttempt(ctx, userID, assignmentID)
		if err != nil {
			return fmt.Errorf("count assignment attempts: %w", err)
		}
		if a.MaxAttempts != nil && prior >= *a.MaxAttempts {
			return fmt.Errorf("assignment %d allows %d attempts: %w", assignmentID, *a.MaxAttempts, ErrAttemptLimitExceeded)
		}
		next := &models.AssignmentSubmission{
			UserID:             userID,
			AssignmentID:       assignmentID,
			AttemptNumber:      prior + 1,
			LessonID:           a.LessonID,
			CourseID:           a.CourseID,
			Payload:            datatypes.JSON(body),
			SubmittedAt:        now,
			IsLate:             late,
			LatePenaltyPercent: penalty,
			MaxScore:           a.MaxScore,
			Status:             models.SubmissionSubmitted,
		}
		if err := g.store.Submissions.CreateAssignmentSubmission(ctx, next); err != nil {
			return fmt.Errorf("create assignment submission: %w", err)
		}
		if a.AutoGrade {
			graded, err := g.grade(ctx, next, a, raw, "", nil)
			if err != nil {
				return err
			}
			sub = graded
			return nil
		}
		if err := g.tracker.recordAttempt(ctx, e, UnitRef{Type: models.ProgressAssignment, ID: assignmentID}, next.AttemptNumber, a.MaxAttempts); err != nil {
			return fmt.Errorf("record assignment progress: %w", err)
		}
		sub = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.log.Info("assignment submitted",
		zap.Uint("user_id", userID),
		zap.Uint("assignment_id", assignmentID),
		zap.Int("attempt", sub.AttemptNumber),
		zap.Bool("late", late),
		zap.Bool("auto_graded", a.AutoGrade),
	)
	g.stats.invalidate(ctx, assignmentStatsKey(assignmentID))
	return sub, nil
}

// allocate runs fn, which numbers and stores one attempt, in its own
// transaction. A duplicate attempt number means a concurrent submission won
// the slot; the transaction is rolled back and fn runs again.
func (g *GradingEngine) allocate(ctx context.Context, fn func(ctx context.Context) error) error {
	for i := 0; i < attemptAllocRetries; i++ {
		err := g.store.Transaction(ctx, fn)
		if err == nil || !store.IsDuplicate(err) {
			return err
		}
		g.log.Debug("attempt number taken, retrying", zap.Int("try", i+1))
	}
	return errAttemptCollision
}

// GradeSubmission records an instructor's score for an assignment attempt.
// Regrading an already graded attempt overwrites the previous grade.
func (g *GradingEngine) GradeSubmission(ctx context.Context, submissionID uint, score float64, feedback string, graderID uint) (*models.AssignmentSubmission, error) {
	sub, err := g.store.Submissions.GetAssignmentSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return nil, notFound("submission", submissionID)
	}
	a, err := g.store.Courses.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if a == nil {
		return nil, notFound("assignment", sub.AssignmentID)
	}
	if score < 0 || score > sub.MaxScore {
		return nil, invalid("score", fmt.Sprintf("must be between 0 and %g", sub.MaxScore))
	}
	var graded *models.AssignmentSubmission
	err = g.store.Transaction(ctx, func(ctx context.Context) error {
		graded, err = g.grade(ctx, sub, a, score, feedback, &graderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.stats.invalidate(ctx, assignmentStatsKey(a.ID))
	return graded, nil
}

// grade applies the late penalty to raw, decides pass/fail and propagates the
// result. The raw score is stored alongside so the penalty stays auditable.
// Callers run it inside a transaction and drop the stats cache after commit.
func (g *GradingEngine) grade(ctx context.Context, sub *models.AssignmentSubmission, a *models.Assignment, raw float64, feedback string, graderID *uint) (*models.AssignmentSubmission, error) {
	score := raw
	if sub.IsLate && sub.LatePenaltyPercent > 0 {
		score = raw * (1 - clampPercent(sub.LatePenaltyPercent)/100)
	}
	score = roundTo(score, 2)
	pct := roundTo(percentage(score, sub.MaxScore), 2)
	passed := score >= g.passingScore(a)
	now := g.now()

	fields := map[string]interface{}{
		"raw_score":           raw,
		"score":               score,
		"percentage":          pct,
		"is_passed":           passed,
		"status":              models.SubmissionGraded,
		"graded_at":           now,
		"graded_by":           graderID,
		"instructor_feedback": feedback,
	}
	if err := g.store.Submissions.UpdateAssignmentSubmission(ctx, sub.ID, fields); err != nil {
		return nil, fmt.Errorf("grade submission: %w", err)
	}
	g.log.Info("assignment graded",
		zap.Uint("submission_id", sub.ID),
		zap.Uint("assignment_id", a.ID),
		zap.Float64("raw_score", raw),
		zap.Float64("score", score),
		zap.Bool("passed", passed),
	)

	e, err := g.store.Enrollments.FindByUserAndCourse(ctx, sub.UserID, sub.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if e != nil && (e.Status == models.EnrollmentActive || e.Status == models.EnrollmentCompleted) {
		attempts, err := g.store.Submissions.MaxAssignmentAttempt(ctx, sub.UserID, a.ID)
		if err != nil {
			return nil, fmt.Errorf("count assignment attempts: %w", err)
		}
		err = g.tracker.recordResult(ctx, e, UnitRef{Type: models.ProgressAssignment, ID: a.ID}, attemptResult{
			score:       score,
			maxScore:    sub.MaxScore,
			percentage:  pct,
			passed:      passed,
			attempts:    attempts,
			maxAttempts: a.MaxAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("record assignment progress: %w", err)
		}
	} else {
		g.log.Debug("graded submission has no open enrollment", zap.Uint("submission_id", sub.ID))
	}

	return g.store.Submissions.GetAssignmentSubmission(ctx, sub.ID)
}

func (g *GradingEngine) passingScore(a *models.Assignment) float64 {
	if a.PassingScore != nil {
		return *a.PassingScore
	}
	return a.MaxScore * g.opts.DefaultPassingRatio
}

// GetLatestQuizAttempt returns nil when the user has not attempted the quiz.
func (g *GradingEngine) GetLatestQuizAttempt(ctx context.Context, userID, quizID uint) (*models.QuizSubmission, error) {
	return g.store.Submissions.LatestQuizSubmission(ctx, userID, quizID)
}

func (g *GradingEngine) ListQuizAttempts(ctx context.Context, userID, quizID uint) ([]models.QuizSubmission, error) {
	return g.store.Submissions.ListQuizSubmissions(ctx, userID, quizID)
}

// GetLatestAssignmentAttempt returns nil when the user has not submitted.
func (g *GradingEngine) GetLatestAssignmentAttempt(ctx context.Context, userID, assignmentID uint) (*models.AssignmentSubmission, error) {
	return g.store.Submissions.LatestAssignmentSubmission(ctx, userID, assignmentID)
}

// GetAssignmentSubmission returns nil when no submission has the id.
func (g *GradingEngine) GetAssignmentSubmission(ctx context.Context, id uint) (*models.AssignmentSubmission, error) {
	return g.store.Submissions.GetAssignmentSubmission(ctx, id)
}

// ListPendingSubmissions is the grading queue of one assignment.
func (g *GradingEngine) ListPendingSubmissions(ctx context.Context, assignmentID uint) ([]models.AssignmentSubmission, error) {
	return g.store.Submissions.ListAssignmentSubmissions(ctx, assignmentID, models.SubmissionSubmitted)
}

// GetQuizStatistics averages every attempt, not only each user's latest.
func (g *GradingEngine) GetQuizStatistics(ctx context.Context, quizID uint) (*AssessmentStats, error) {
	quiz, err := g.store.Courses.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil {
		return nil, notFound("quiz", quizID)
	}
	out, err := cachedValue(ctx, g.stats, quizStatsKey(quizID), func() (AssessmentStats, error) {
		raw, err := g.store.Submissions.QuizStats(ctx, quizID)
		if err != nil {
			return AssessmentStats{}, err
		}
		return assessmentStats(raw), nil
	})
	if err != nil {
		return nil, fmt.Errorf("quiz statistics: %w", err)
	}
	return &out, nil
}

// GetAssignmentStatistics averages graded attempts; ungraded attempts count
// toward the total as not passed.
func (g *GradingEngine) GetAssignmentStatistics(ctx context.Context, assignmentID uint) (*AssessmentStats, error) {
	a, err := g.store.Courses.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if a == nil {
		return nil, notFound("assignment", assignmentID)
	}
	out, err := cachedValue(ctx, g.stats, assignmentStatsKey(assignmentID), func() (AssessmentStats, error) {
		raw, err := g.store.Submissions.AssignmentStats(ctx, assignmentID)
		if err != nil {
			return AssessmentStats{}, err
		}
		return assessmentStats(raw), nil
	})
	if err != nil {
		return nil, fmt.Errorf("assignment statistics: %w", err)
	}
	return &out, nil
}

func assessmentStats(raw store.AttemptStats) AssessmentStats {
	if raw.Total == 0 {
		return AssessmentStats{}
	}
	return AssessmentStats{
		TotalSubmissions: raw.Total,
		AverageScore:     roundTo(raw.Average, 2),
		PassRate:         roundTo(float64(raw.Passed)/float64(raw.Total)*100, 2),
	}
}

// requireEnrollment loads the enrollment a submission is filed under.
func (g *GradingEngine) requireEnrollment(ctx context.Context, userID, courseID uint) (*models.CourseEnrollment, error) {
	e, err := g.store.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("user %d in course %d: enrollment: %w", userID, courseID, ErrNotFound)
	}
	if e.Status != models.EnrollmentActive && e.Status != models.EnrollmentCompleted {
		return nil, transition("enrollment %d is %s", e.ID, e.Status)
	}
	return e, nil
}

func quizStatsKey(id uint) string { return fmt.Sprintf("stats:quiz:%d", id) }

func assignmentStatsKey(id uint) string { return fmt.Sprintf("stats:assignment:%d", id) }
