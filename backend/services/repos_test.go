package services

import (
	"context"
	"errors"
	"sync"

	"learnprogress/backend/models"
	"learnprogress/backend/store"
)

var errStorage = errors.New("storage unavailable")

// staleAttempts reports an outdated attempt count for the first stale calls,
// as a concurrent submission that committed in between would.
type staleAttempts struct {
	store.SubmissionRepo
	mu    sync.Mutex
	stale int
	calls int
}

func (s *staleAttempts) MaxQuizAttempt(ctx context.Context, userID, quizID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.stale > 0 {
		s.stale--
		return 0, nil
	}
	return s.SubmissionRepo.MaxQuizAttempt(ctx, userID, quizID)
}

// staleLookup misses existing enrollments for the first misses calls.
type staleLookup struct {
	store.EnrollmentRepo
	misses int
}

func (s *staleLookup) FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.CourseEnrollment, error) {
	if s.misses > 0 {
		s.misses--
		return nil, nil
	}
	return s.EnrollmentRepo.FindByUserAndCourse(ctx, userID, courseID)
}

// hiddenRow misses one unit row on its first lookup.
type hiddenRow struct {
	store.ProgressRepo
	key    string
	hidden bool
}

func (h *hiddenRow) FindByUnit(ctx context.Context, enrollmentID uint, unitKey string) (*models.CourseProgress, error) {
	if unitKey == h.key && !h.hidden {
		h.hidden = true
		return nil, nil
	}
	return h.ProgressRepo.FindByUnit(ctx, enrollmentID, unitKey)
}

// failingAdvance refuses every conditional progress write.
type failingAdvance struct {
	store.ProgressRepo
}

func (failingAdvance) Advance(context.Context, uint, float64, map[string]interface{}) (bool, error) {
	return false, errStorage
}

type failingRoles struct {
	store.UserRepo
}

func (failingRoles) UpdateRole(context.Context, uint, string) error {
	return errStorage
}

type failingScorer struct{}

func (failingScorer) Score(*models.Assignment, AssignmentPayload) (float64, error) {
	return 0, errStorage
}
