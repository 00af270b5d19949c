package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrRowNotFound is returned by updates that matched no row.
var ErrRowNotFound = errors.New("row not found")

// Store bundles the repositories backing the learning domain.
type Store struct {
	db *gorm.DB

	Users       UserRepo
	Courses     CourseRepo
	Enrollments EnrollmentRepo
	Progress    ProgressRepo
	Submissions SubmissionRepo
	Reviews     ReviewRepo
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{
		db:          db,
		Users:       NewUserRepo(db, log),
		Courses:     NewCourseRepo(db, log),
		Enrollments: NewEnrollmentRepo(db, log),
		Progress:    NewProgressRepo(db, log),
		Submissions: NewSubmissionRepo(db, log),
		Reviews:     NewReviewRepo(db, log),
	}
}

type txKey struct{}

// Transaction runs fn inside one database transaction. Repository calls made
// with the context handed to fn join it; a nested call reuses the outer one.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn picks the transaction carried by ctx, if any.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// findOne returns nil, nil when no row matches.
func findOne[T any](ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var row T
	res := conn(ctx, db).Where(query, args...).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

func updated(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}
