package store

import (
	"context"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepo interface {
	Create(ctx context.Context, row *models.CourseProgress) error
	// CreateIfAbsent inserts row unless its (enrollment, unit) pair exists and
	// reports whether it did. Safe inside a transaction.
	CreateIfAbsent(ctx context.Context, row *models.CourseProgress) (bool, error)
	Get(ctx context.Context, id uint) (*models.CourseProgress, error)
	FindByUnit(ctx context.Context, enrollmentID uint, unitKey string) (*models.CourseProgress, error)
	ListByEnrollment(ctx context.Context, enrollmentID uint) ([]models.CourseProgress, error)
	ListByCourse(ctx context.Context, courseID uint) ([]models.CourseProgress, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// Advance applies fields only while the stored completion does not exceed
	// pct. It reports false when a concurrent writer already went further.
	Advance(ctx context.Context, id uint, pct float64, fields map[string]interface{}) (bool, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *zap.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With(zap.String("repo", "ProgressRepo"))}
}

func (r *progressRepo) Create(ctx context.Context, row *models.CourseProgress) error {
	return conn(ctx, r.db).Create(row).Error
}

func (r *progressRepo) CreateIfAbsent(ctx context.Context, row *models.CourseProgress) (bool, error) {
	res := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "unit_key"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *progressRepo) Get(ctx context.Context, id uint) (*models.CourseProgress, error) {
	return findOne[models.CourseProgress](ctx, r.db, "id = ?", id)
}

func (r *progressRepo) FindByUnit(ctx context.Context, enrollmentID uint, unitKey string) (*models.CourseProgress, error) {
	return findOne[models.CourseProgress](ctx, r.db, "enrollment_id = ? AND unit_key = ?", enrollmentID, unitKey)
}

func (r *progressRepo) ListByEnrollment(ctx context.Context, enrollmentID uint) ([]models.CourseProgress, error) {
	var rows []models.CourseProgress
	err := conn(ctx, r.db).Where("enrollment_id = ?", enrollmentID).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *progressRepo) ListByCourse(ctx context.Context, courseID uint) ([]models.CourseProgress, error) {
	var rows []models.CourseProgress
	err := conn(ctx, r.db).Where("course_id = ?", courseID).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *progressRepo) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.CourseProgress{}).Where("id = ?", id).Updates(fields)
	return updated(res)
}

func (r *progressRepo) Advance(ctx context.Context, id uint, pct float64, fields map[string]interface{}) (bool, error) {
	res := conn(ctx, r.db).Model(&models.CourseProgress{}).
		Where("id = ? AND completion_percentage <= ?", id, pct).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
