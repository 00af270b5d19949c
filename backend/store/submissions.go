package store

import (
	"context"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptStats is the raw aggregate over a set of submissions.
type AttemptStats struct {
	Total   int64
	Average float64
	Passed  int64
}

const attemptStatsSelect = "COUNT(*) AS total, COALESCE(AVG(score), 0) AS average, " +
	"COALESCE(SUM(CASE WHEN is_passed THEN 1 ELSE 0 END), 0) AS passed"

type SubmissionRepo interface {
	CreateQuizSubmission(ctx context.Context, sub *models.QuizSubmission) error
	MaxQuizAttempt(ctx context.Context, userID, quizID uint) (int, error)
	LatestQuizSubmission(ctx context.Context, userID, quizID uint) (*models.QuizSubmission, error)
	ListQuizSubmissions(ctx context.Context, userID, quizID uint) ([]models.QuizSubmission, error)
	QuizStats(ctx context.Context, quizID uint) (AttemptStats, error)
	QuizStatsByUser(ctx context.Context, userID uint) (AttemptStats, error)

	CreateAssignmentSubmission(ctx context.Context, sub *models.AssignmentSubmission) error
	GetAssignmentSubmission(ctx context.Context, id uint) (*models.AssignmentSubmission, error)
	UpdateAssignmentSubmission(ctx context.Context, id uint, fields map[string]interface{}) error
	MaxAssignmentAttempt(ctx context.Context, userID, assignmentID uint) (int, error)
	LatestAssignmentSubmission(ctx context.Context, userID, assignmentID uint) (*models.AssignmentSubmission, error)
	ListAssignmentSubmissions(ctx context.Context, assignmentID uint, status models.SubmissionStatus) ([]models.AssignmentSubmission, error)
	AssignmentStats(ctx context.Context, assignmentID uint) (AttemptStats, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *zap.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With(zap.String("repo", "SubmissionRepo"))}
}

func (r *submissionRepo) CreateQuizSubmission(ctx context.Context, sub *models.QuizSubmission) error {
	return conn(ctx, r.db).Create(sub).Error
}

func (r *submissionRepo) MaxQuizAttempt(ctx context.Context, userID, quizID uint) (int, error) {
	var n int
	err := conn(ctx, r.db).Model(&models.QuizSubmission{}).
		Select("COALESCE(MAX(attempt_number), 0)").
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Scan(&n).Error
	return n, err
}

func (r *submissionRepo) LatestQuizSubmission(ctx context.Context, userID, quizID uint) (*models.QuizSubmission, error) {
	var sub models.QuizSubmission
	res := conn(ctx, r.db).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("attempt_number DESC").Limit(1).Find(&sub)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *submissionRepo) ListQuizSubmissions(ctx context.Context, userID, quizID uint) ([]models.QuizSubmission, error) {
	var subs []models.QuizSubmission
	err := conn(ctx, r.db).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("attempt_number ASC").Find(&subs).Error
	return subs, err
}

func (r *submissionRepo) QuizStats(ctx context.Context, quizID uint) (AttemptStats, error) {
	var stats AttemptStats
	err := conn(ctx, r.db).Model(&models.QuizSubmission{}).
		Select(attemptStatsSelect).
		Where("quiz_id = ?", quizID).
		Scan(&stats).Error
	return stats, err
}

func (r *submissionRepo) QuizStatsByUser(ctx context.Context, userID uint) (AttemptStats, error) {
	var stats AttemptStats
	err := conn(ctx, r.db).Model(&models.QuizSubmission{}).
		Select(attemptStatsSelect).
		Where("user_id = ?", userID).
		Scan(&stats).Error
	return stats, err
}

func (r *submissionRepo) CreateAssignmentSubmission(ctx context.Context, sub *models.AssignmentSubmission) error {
	return conn(ctx, r.db).Create(sub).Error
}

func (r *submissionRepo) GetAssignmentSubmission(ctx context.Context, id uint) (*models.AssignmentSubmission, error) {
	return findOne[models.AssignmentSubmission](ctx, r.db, "id = ?", id)
}

func (r *submissionRepo) UpdateAssignmentSubmission(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.AssignmentSubmission{}).Where("id = ?", id).Updates(fields)
	return updated(res)
}

func (r *submissionRepo) MaxAssignmentAttempt(ctx context.Context, userID, assignmentID uint) (int, error) {
	var n int
	err := conn(ctx, r.db).Model(&models.AssignmentSubmission{}).
		Select("COALESCE(MAX(attempt_number), 0)").
		Where("user_id = ? AND assignment_id = ?", userID, assignmentID).
		Scan(&n).Error
	return n, err
}

func (r *submissionRepo) LatestAssignmentSubmission(ctx context.Context, userID, assignmentID uint) (*models.AssignmentSubmission, error) {
	var sub models.AssignmentSubmission
	res := conn(ctx, r.db).
		Where("user_id = ? AND assignment_id = ?", userID, assignmentID).
		Order("attempt_number DESC").Limit(1).Find(&sub)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &sub, nil
}

// ListAssignmentSubmissions filters by status unless it is empty.
func (r *submissionRepo) ListAssignmentSubmissions(ctx context.Context, assignmentID uint, status models.SubmissionStatus) ([]models.AssignmentSubmission, error) {
	q := conn(ctx, r.db).Where("assignment_id = ?", assignmentID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var subs []models.AssignmentSubmission
	err := q.Order("submitted_at ASC, id ASC").Find(&subs).Error
	return subs, err
}

// AssignmentStats averages graded scores only; ungraded attempts still count
// toward the total.
func (r *submissionRepo) AssignmentStats(ctx context.Context, assignmentID uint) (AttemptStats, error) {
	var stats AttemptStats
	err := conn(ctx, r.db).Model(&models.AssignmentSubmission{}).
		Select(attemptStatsSelect).
		Where("assignment_id = ?", assignmentID).
		Scan(&stats).Error
	return stats, err
}
