package store

import (
	"context"

	"learnprogress/backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateRole(ctx context.Context, id uint, role string) error
}

type userRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *zap.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With(zap.String("repo", "UserRepo"))}
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	return conn(ctx, r.db).Create(user).Error
}

func (r *userRepo) Get(ctx context.Context, id uint) (*models.User, error) {
	return findOne[models.User](ctx, r.db, "id = ?", id)
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return findOne[models.User](ctx, r.db, "username = ?", username)
}

func (r *userRepo) UpdateRole(ctx context.Context, id uint, role string) error {
	res := conn(ctx, r.db).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if err := updated(res); err != nil {
		return err
	}
	r.log.Debug("role updated", zap.Uint("user_id", id), zap.String("role", role))
	return nil
}
