package store

import (
	"context"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RatingSummary is the approved-review count and mean rating of one course.
type RatingSummary struct {
	CourseID uint
	Total    int64
	Average  float64
}

type ReviewRepo interface {
	Create(ctx context.Context, review *models.Review) error
	Get(ctx context.Context, id uint) (*models.Review, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.Review, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	IncrementHelpful(ctx context.Context, id uint) error
	// ListByCourse filters by status unless it is empty.
	ListByCourse(ctx context.Context, courseID uint, status models.ReviewStatus) ([]models.Review, error)
	RatingCounts(ctx context.Context, courseID uint, status models.ReviewStatus) (map[int]int64, error)
	RatingSummaries(ctx context.Context, courseIDs []uint, status models.ReviewStatus) (map[uint]RatingSummary, error)
}

type reviewRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewReviewRepo(db *gorm.DB, baseLog *zap.Logger) ReviewRepo {
	return &reviewRepo{db: db, log: baseLog.With(zap.String("repo", "ReviewRepo"))}
}

func (r *reviewRepo) Create(ctx context.Context, review *models.Review) error {
	return conn(ctx, r.db).Create(review).Error
}

func (r *reviewRepo) Get(ctx context.Context, id uint) (*models.Review, error) {
	return findOne[models.Review](ctx, r.db, "id = ?", id)
}

func (r *reviewRepo) FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.Review, error) {
	return findOne[models.Review](ctx, r.db, "user_id = ? AND course_id = ?", userID, courseID)
}

func (r *reviewRepo) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.Review{}).Where("id = ?", id).Updates(fields)
	return updated(res)
}

func (r *reviewRepo) IncrementHelpful(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Model(&models.Review{}).
		Where("id = ?", id).
		UpdateColumn("helpful_votes", gorm.Expr("helpful_votes + ?", 1))
	return updated(res)
}

func (r *reviewRepo) ListByCourse(ctx context.Context, courseID uint, status models.ReviewStatus) ([]models.Review, error) {
	q := conn(ctx, r.db).Where("course_id = ?", courseID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reviews []models.Review
	err := q.Order("helpful_votes DESC, created_at DESC, id DESC").Find(&reviews).Error
	return reviews, err
}

func (r *reviewRepo) RatingCounts(ctx context.Context, courseID uint, status models.ReviewStatus) (map[int]int64, error) {
	var rows []struct {
		Rating int
		Total  int64
	}
	q := conn(ctx, r.db).Model(&models.Review{}).
		Select("rating, COUNT(*) AS total").
		Where("course_id = ?", courseID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Group("rating").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(rows))
	for _, row := range rows {
		out[row.Rating] = row.Total
	}
	return out, nil
}

func (r *reviewRepo) RatingSummaries(ctx context.Context, courseIDs []uint, status models.ReviewStatus) (map[uint]RatingSummary, error) {
	out := make(map[uint]RatingSummary, len(courseIDs))
	if len(courseIDs) == 0 {
		return out, nil
	}
	var rows []RatingSummary
	q := conn(ctx, r.db).Model(&models.Review{}).
		Select("course_id, COUNT(*) AS total, AVG(rating) AS average").
		Where("course_id IN ?", courseIDs)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Group("course_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CourseID] = row
	}
	return out, nil
}
