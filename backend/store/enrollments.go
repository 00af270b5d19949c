package store

import (
	"context"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EnrollmentRepo interface {
	Create(ctx context.Context, enrollment *models.CourseEnrollment) error
	Get(ctx context.Context, id uint) (*models.CourseEnrollment, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.CourseEnrollment, error)
	ListByUser(ctx context.Context, userID uint) ([]models.CourseEnrollment, error)
	ListByCourse(ctx context.Context, courseID uint) ([]models.CourseEnrollment, error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
	CountByCourses(ctx context.Context, courseIDs []uint) (map[uint]int64, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// AdvanceProgress raises the cached progress to p and never lowers it.
	AdvanceProgress(ctx context.Context, id uint, p int) error
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *zap.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With(zap.String("repo", "EnrollmentRepo"))}
}

func (r *enrollmentRepo) Create(ctx context.Context, enrollment *models.CourseEnrollment) error {
	return conn(ctx, r.db).Create(enrollment).Error
}

func (r *enrollmentRepo) Get(ctx context.Context, id uint) (*models.CourseEnrollment, error) {
	return findOne[models.CourseEnrollment](ctx, r.db, "id = ?", id)
}

func (r *enrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.CourseEnrollment, error) {
	return findOne[models.CourseEnrollment](ctx, r.db, "user_id = ? AND course_id = ?", userID, courseID)
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, userID uint) ([]models.CourseEnrollment, error) {
	var rows []models.CourseEnrollment
	err := conn(ctx, r.db).Where("user_id = ?", userID).Order("enrollment_date DESC, id DESC").Find(&rows).Error
	return rows, err
}

func (r *enrollmentRepo) ListByCourse(ctx context.Context, courseID uint) ([]models.CourseEnrollment, error) {
	var rows []models.CourseEnrollment
	err := conn(ctx, r.db).Where("course_id = ?", courseID).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *enrollmentRepo) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.CourseEnrollment{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *enrollmentRepo) CountByCourses(ctx context.Context, courseIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(courseIDs))
	if len(courseIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		CourseID uint
		Total    int64
	}
	err := conn(ctx, r.db).Model(&models.CourseEnrollment{}).
		Select("course_id, COUNT(*) AS total").
		Where("course_id IN ?", courseIDs).
		Group("course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CourseID] = row.Total
	}
	return out, nil
}

func (r *enrollmentRepo) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.CourseEnrollment{}).Where("id = ?", id).Updates(fields)
	return updated(res)
}

func (r *enrollmentRepo) AdvanceProgress(ctx context.Context, id uint, p int) error {
	res := conn(ctx, r.db).Model(&models.CourseEnrollment{}).
		Where("id = ? AND progress < ?", id, p).
		Update("progress", p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Debug("enrollment progress advanced", zap.Uint("enrollment_id", id), zap.Int("progress", p))
	}
	return nil
}
