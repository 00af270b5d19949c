package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learnprogress/backend/models"
	"learnprogress/backend/store"

	"go.uber.org/zap"
)

type ReviewInput struct {
	Rating               int    `json:"rating" validate:"required,min=1,max=5"`
	Title                string `json:"title" validate:"max=200"`
	Comment              string `json:"comment" validate:"required,max=5000"`
	Pros                 string `json:"pros" validate:"max=2000"`
	Cons                 string `json:"cons" validate:"max=2000"`
	WouldRecommend       bool   `json:"would_recommend"`
	Difficulty           string `json:"difficulty" validate:"omitempty,max=32"`
	InstructorRating     *int   `json:"instructor_rating" validate:"omitempty,min=1,max=5"`
	ContentQuality       *int   `json:"content_quality" validate:"omitempty,min=1,max=5"`
	ValueForMoney        *int   `json:"value_for_money" validate:"omitempty,min=1,max=5"`
	CompletionPercentage *int   `json:"completion_percentage" validate:"omitempty,min=0,max=100"`
	IsAnonymous          bool   `json:"is_anonymous"`
	Language             string `json:"language" validate:"omitempty,max=16"`
}

type ReviewEngine struct {
	store *store.Store
	stats *StatisticsAggregator
	opts  Options
	log   *zap.Logger
}

// SubmitReview keeps one review per (user, course): a resubmission
// overwrites every field of the existing review and resets its moderation
// status. Helpful votes survive the overwrite.
func (r *ReviewEngine) SubmitReview(ctx context.Context, userID, courseID uint, in ReviewInput) (*models.Review, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Comment = strings.TrimSpace(in.Comment)
	if err := Validate(in); err != nil {
		return nil, err
	}
	course, err := r.store.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", courseID)
	}

	completion := 0
	if in.CompletionPercentage != nil {
		completion = *in.CompletionPercentage
	} else {
		e, err := r.store.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}
		if e != nil {
			completion = e.Progress
		}
	}
	status := models.ReviewStatus(r.opts.ReviewDefaultStatus)

	existing, err := r.store.Reviews.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}
	if existing == nil {
		review := &models.Review{
			UserID:               userID,
			CourseID:             courseID,
			Rating:               in.Rating,
			Title:                in.Title,
			Comment:              in.Comment,
			Pros:                 in.Pros,
			Cons:                 in.Cons,
			WouldRecommend:       in.WouldRecommend,
			Difficulty:           in.Difficulty,
			InstructorRating:     in.InstructorRating,
			ContentQuality:       in.ContentQuality,
			ValueForMoney:        in.ValueForMoney,
			CompletionPercentage: completion,
			IsAnonymous:          in.IsAnonymous,
			Language:             in.Language,
			Status:               status,
		}
		err = r.store.Reviews.Create(ctx, review)
		if err == nil {
			r.log.Info("review created",
				zap.Uint("review_id", review.ID),
				zap.Uint("course_id", courseID),
				zap.Int("rating", in.Rating),
				zap.String("status", string(status)),
			)
			r.stats.invalidate(ctx, reviewStatsKey(courseID))
			return review, nil
		}
		if !store.IsDuplicate(err) {
			return nil, fmt.Errorf("create review: %w", err)
		}
		// A concurrent submission won the insert; overwrite it instead.
		existing, err = r.store.Reviews.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil || existing == nil {
			return nil, fmt.Errorf("reload review after conflict: %w", err)
		}
	}

	if existing.Status == models.ReviewRejected {
		// A rejected review goes back to moderation, whatever the default.
		status = models.ReviewPending
	}
	err = r.store.Reviews.Update(ctx, existing.ID, map[string]interface{}{
		"rating":                in.Rating,
		"title":                 in.Title,
		"comment":               in.Comment,
		"pros":                  in.Pros,
		"cons":                  in.Cons,
		"would_recommend":       in.WouldRecommend,
		"difficulty":            in.Difficulty,
		"instructor_rating":     in.InstructorRating,
		"content_quality":       in.ContentQuality,
		"value_for_money":       in.ValueForMoney,
		"completion_percentage": completion,
		"is_anonymous":          in.IsAnonymous,
		"language":              in.Language,
		"status":                status,
		"moderator_notes":       "",
	})
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	r.log.Info("review updated",
		zap.Uint("review_id", existing.ID),
		zap.Uint("course_id", courseID),
		zap.Int("rating", in.Rating),
		zap.String("status", string(status)),
	)
	r.stats.invalidate(ctx, reviewStatsKey(courseID))
	return r.store.Reviews.Get(ctx, existing.ID)
}

// MarkHelpful adds one helpful vote. Votes are not tied to a voter.
func (r *ReviewEngine) MarkHelpful(ctx context.Context, reviewID uint) (*models.Review, error) {
	if err := r.store.Reviews.IncrementHelpful(ctx, reviewID); err != nil {
		if errors.Is(err, store.ErrRowNotFound) {
			return nil, notFound("review", reviewID)
		}
		return nil, fmt.Errorf("mark helpful: %w", err)
	}
	return r.store.Reviews.Get(ctx, reviewID)
}

// UpdateStatus moderates a review. Any status may move to any other.
func (r *ReviewEngine) UpdateStatus(ctx context.Context, reviewID uint, status models.ReviewStatus, notes *string) (*models.Review, error) {
	if !status.Valid() {
		return nil, invalid("status", "must be one of: pending approved rejected")
	}
	review, err := r.store.Reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}
	if review == nil {
		return nil, notFound("review", reviewID)
	}
	fields := map[string]interface{}{"status": status}
	if notes != nil {
		fields["moderator_notes"] = strings.TrimSpace(*notes)
	}
	if err := r.store.Reviews.Update(ctx, reviewID, fields); err != nil {
		if errors.Is(err, store.ErrRowNotFound) {
			return nil, notFound("review", reviewID)
		}
		return nil, fmt.Errorf("moderate review: %w", err)
	}
	r.log.Info("review moderated",
		zap.Uint("review_id", reviewID),
		zap.String("from", string(review.Status)),
		zap.String("to", string(status)),
	)
	r.stats.invalidate(ctx, reviewStatsKey(review.CourseID))
	return r.store.Reviews.Get(ctx, reviewID)
}

// ListCourseReviews lists reviews, filtered by status unless it is empty.
// Anonymous reviews come back without their author.
func (r *ReviewEngine) ListCourseReviews(ctx context.Context, courseID uint, status models.ReviewStatus) ([]models.Review, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("status", "must be one of: pending approved rejected")
	}
	reviews, err := r.store.Reviews.ListByCourse(ctx, courseID, status)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	for i := range reviews {
		if reviews[i].IsAnonymous {
			reviews[i].UserID = 0
		}
	}
	return reviews, nil
}
