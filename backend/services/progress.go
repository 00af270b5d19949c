package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"learnprogress/backend/models"
	"learnprogress/backend/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnitRef identifies one learning unit: a tagged (type, id) pair.
type UnitRef struct {
	Type models.ProgressType `json:"type" validate:"required,oneof=lesson quiz assignment module course"`
	ID   uint                `json:"id" validate:"required"`
}

func (u UnitRef) key() string { return models.UnitKey(u.Type, u.ID) }

func (u UnitRef) leaf() bool {
	return u.Type == models.ProgressLesson || u.Type == models.ProgressQuiz || u.Type == models.ProgressAssignment
}

// selfReported rejects completion writes for units whose completion comes
// from grading. Quiz and assignment rows only move through recordResult.
func selfReported(ref UnitRef) error {
	switch ref.Type {
	case models.ProgressLesson:
		return nil
	case models.ProgressQuiz, models.ProgressAssignment:
		return invalid("unit.type", "quiz and assignment completion comes from graded submissions")
	default:
		return invalid("unit.type", "module and course progress is derived from their units")
	}
}

// unit is a catalog entry resolved for progress bookkeeping.
type unit struct {
	ref         UnitRef
	moduleID    *uint
	mandatory   bool
	weight      float64
	maxAttempts *int
}

// ProgressUpdate is a partial update of one unit's progress.
type ProgressUpdate struct {
	EnrollmentID         uint     `json:"enrollment_id" validate:"required"`
	Unit                 UnitRef  `json:"unit"`
	IsCompleted          *bool    `json:"is_completed,omitempty"`
	CompletionPercentage *float64 `json:"completion_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	TimeSpentMinutes     *int     `json:"time_spent_minutes,omitempty" validate:"omitempty,gte=0"`
	Notes                *string  `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// attemptResult is what the grading engine reports for one graded attempt.
type attemptResult struct {
	score       float64
	maxScore    float64
	percentage  float64
	passed      bool
	attempts    int
	maxAttempts *int
}

type ProgressTracker struct {
	store       *store.Store
	enrollments *EnrollmentManager
	opts        Options
	now         func() time.Time
	log         *zap.Logger
}

// RecordAccess opens a unit: the row is created on first access and moved
// from not_started to in_progress. Repeated calls only refresh lastAccessedAt.
func (t *ProgressTracker) RecordAccess(ctx context.Context, enrollmentID uint, ref UnitRef) (*models.CourseProgress, error) {
	if err := Validate(ref); err != nil {
		return nil, err
	}
	e, err := t.openEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	u, err := t.resolve(ctx, e, ref)
	if err != nil {
		return nil, err
	}
	row, err := t.access(ctx, e, u)
	if err != nil {
		return nil, err
	}
	if u.moduleID != nil {
		parent, err := t.resolve(ctx, e, UnitRef{Type: models.ProgressModule, ID: *u.moduleID})
		if err != nil {
			return nil, err
		}
		if _, err := t.access(ctx, e, parent); err != nil {
			return nil, err
		}
	}
	if err := t.enrollments.touch(ctx, e.ID, t.now()); err != nil {
		return nil, fmt.Errorf("touch enrollment: %w", err)
	}
	return row, nil
}

func (t *ProgressTracker) access(ctx context.Context, e *models.CourseEnrollment, u unit) (*models.CourseProgress, error) {
	row, err := t.ensureRow(ctx, e, u)
	if err != nil {
		return nil, err
	}
	now := t.now()
	fields := map[string]interface{}{"last_accessed_at": now}
	if row.Status == models.ProgressNotStarted {
		fields["status"] = models.ProgressInProgress
		fields["started_at"] = now
	}
	if err := t.store.Progress.Update(ctx, row.ID, fields); err != nil {
		return nil, fmt.Errorf("record access: %w", err)
	}
	return t.store.Progress.Get(ctx, row.ID)
}

// MarkComplete sets a unit's completion. Lowering a stored completion is an
// InvalidTransition; repeating the stored value is a no-op.
func (t *ProgressTracker) MarkComplete(ctx context.Context, enrollmentID uint, ref UnitRef, pct float64) (*models.CourseProgress, error) {
	if err := Validate(ref); err != nil {
		return nil, err
	}
	if err := selfReported(ref); err != nil {
		return nil, err
	}
	e, err := t.openEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	u, err := t.resolve(ctx, e, ref)
	if err != nil {
		return nil, err
	}
	row, err := t.ensureRow(ctx, e, u)
	if err != nil {
		return nil, err
	}
	if err := t.applyCompletion(ctx, row, clampPercent(pct)); err != nil {
		return nil, err
	}
	if err := t.propagate(ctx, e, u); err != nil {
		return nil, err
	}
	return t.store.Progress.Get(ctx, row.ID)
}

func (t *ProgressTracker) applyCompletion(ctx context.Context, row *models.CourseProgress, pct float64) error {
	if pct < row.CompletionPercentage {
		return transition("%s is at %.2f%%, cannot move back to %.2f%%", row.UnitKey, row.CompletionPercentage, pct)
	}
	if pct == row.CompletionPercentage && row.Status == models.ProgressCompleted {
		return nil
	}
	now := t.now()
	fields := map[string]interface{}{
		"completion_percentage": pct,
		"last_accessed_at":      now,
	}
	if row.StartedAt == nil {
		fields["started_at"] = now
	}
	if pct >= 100 {
		fields["status"] = models.ProgressCompleted
		if row.CompletedAt == nil {
			fields["completed_at"] = now
		}
	} else {
		fields["status"] = models.ProgressInProgress
	}
	ok, err := t.store.Progress.Advance(ctx, row.ID, pct, fields)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	if !ok {
		return transition("%s was advanced past %.2f%% concurrently", row.UnitKey, pct)
	}
	t.log.Debug("unit progress advanced",
		zap.Uint("enrollment_id", row.EnrollmentID),
		zap.String("unit", row.UnitKey),
		zap.Float64("completion", pct),
	)
	return nil
}

// UpdateProgress accumulates time spent, stores notes and advances completion.
func (t *ProgressTracker) UpdateProgress(ctx context.Context, req ProgressUpdate) (*models.CourseProgress, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if !req.Unit.leaf() {
		return nil, invalid("unit.type", "module and course progress is derived from their units")
	}
	if req.IsCompleted != nil || req.CompletionPercentage != nil {
		if err := selfReported(req.Unit); err != nil {
			return nil, err
		}
	}
	e, err := t.openEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	u, err := t.resolve(ctx, e, req.Unit)
	if err != nil {
		return nil, err
	}
	row, err := t.ensureRow(ctx, e, u)
	if err != nil {
		return nil, err
	}

	var target *float64
	switch {
	case req.IsCompleted != nil && *req.IsCompleted:
		full := 100.0
		target = &full
	case req.CompletionPercentage != nil:
		target = req.CompletionPercentage
	}
	if target != nil && clampPercent(*target) < row.CompletionPercentage {
		return nil, transition("%s is at %.2f%%, cannot move back to %.2f%%", row.UnitKey, row.CompletionPercentage, *target)
	}

	now := t.now()
	fields := map[string]interface{}{"last_accessed_at": now}
	if row.Status == models.ProgressNotStarted {
		fields["status"] = models.ProgressInProgress
		fields["started_at"] = now
	}
	if req.TimeSpentMinutes != nil && *req.TimeSpentMinutes > 0 {
		fields["time_spent_minutes"] = gorm.Expr("time_spent_minutes + ?", *req.TimeSpentMinutes)
	}
	if req.Notes != nil {
		fields["notes"] = *req.Notes
	}
	if err := t.store.Progress.Update(ctx, row.ID, fields); err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}

	if target != nil {
		row, err = t.store.Progress.Get(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if err := t.applyCompletion(ctx, row, clampPercent(*target)); err != nil {
			return nil, err
		}
		if err := t.propagate(ctx, e, u); err != nil {
			return nil, err
		}
	}
	if err := t.enrollments.touch(ctx, e.ID, now); err != nil {
		return nil, fmt.Errorf("touch enrollment: %w", err)
	}
	return t.store.Progress.Get(ctx, row.ID)
}

// recordResult folds a graded attempt into the unit row. The row keeps its
// best completion and score; a failing attempt never undoes a completion.
func (t *ProgressTracker) recordResult(ctx context.Context, e *models.CourseEnrollment, ref UnitRef, res attemptResult) error {
	u, err := t.resolve(ctx, e, ref)
	if err != nil {
		return err
	}
	row, err := t.ensureRow(ctx, e, u)
	if err != nil {
		return err
	}

	now := t.now()
	candidate := clampPercent(res.percentage)
	if res.passed {
		candidate = 100
	}
	fields := map[string]interface{}{
		"attempts":         res.attempts,
		"last_accessed_at": now,
	}
	if res.maxAttempts != nil {
		fields["max_attempts"] = *res.maxAttempts
	}
	if row.StartedAt == nil {
		fields["started_at"] = now
	}
	if row.Score == nil || res.score > *row.Score {
		fields["score"] = res.score
		fields["max_score"] = res.maxScore
	}

	best := math.Max(row.CompletionPercentage, candidate)
	fields["completion_percentage"] = best
	switch {
	case best >= 100:
		fields["status"] = models.ProgressCompleted
		if row.CompletedAt == nil {
			fields["completed_at"] = now
		}
	case !res.passed:
		fields["status"] = models.ProgressFailed
	default:
		fields["status"] = models.ProgressInProgress
	}

	ok, err := t.store.Progress.Advance(ctx, row.ID, best, fields)
	if err != nil {
		return fmt.Errorf("record attempt result: %w", err)
	}
	if !ok {
		t.log.Debug("attempt result superseded by a concurrent update",
			zap.Uint("enrollment_id", e.ID), zap.String("unit", row.UnitKey))
		if err := t.store.Progress.Update(ctx, row.ID, map[string]interface{}{"attempts": res.attempts}); err != nil {
			return fmt.Errorf("record attempts: %w", err)
		}
	}
	return t.propagate(ctx, e, u)
}

// recordAttempt notes an ungraded submission: the unit is opened and its
// attempt counter follows the submission count.
func (t *ProgressTracker) recordAttempt(ctx context.Context, e *models.CourseEnrollment, ref UnitRef, attempts int, maxAttempts *int) error {
	u, err := t.resolve(ctx, e, ref)
	if err != nil {
		return err
	}
	row, err := t.access(ctx, e, u)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{"attempts": attempts}
	if maxAttempts != nil {
		fields["max_attempts"] = *maxAttempts
	}
	if err := t.store.Progress.Update(ctx, row.ID, fields); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// propagate recomputes the rollups above a changed unit.
func (t *ProgressTracker) propagate(ctx context.Context, e *models.CourseEnrollment, u unit) error {
	if u.moduleID != nil {
		if err := t.recomputeModule(ctx, e, *u.moduleID); err != nil {
			return err
		}
	}
	return t.recomputeCourse(ctx, e)
}

func (t *ProgressTracker) recomputeModule(ctx context.Context, e *models.CourseEnrollment, moduleID uint) error {
	units, err := t.courseUnits(ctx, e.CourseID)
	if err != nil {
		return err
	}
	var children []unit
	for _, u := range units {
		if u.moduleID != nil && *u.moduleID == moduleID {
			children = append(children, u)
		}
	}
	rows, err := t.rowsByKey(ctx, e.ID)
	if err != nil {
		return err
	}
	module, err := t.resolve(ctx, e, UnitRef{Type: models.ProgressModule, ID: moduleID})
	if err != nil {
		return err
	}
	return t.writeRollup(ctx, e, module, weightedCompletion(children, rows))
}

func (t *ProgressTracker) recomputeCourse(ctx context.Context, e *models.CourseEnrollment) error {
	value, err := t.ComputeCourseCompletion(ctx, e.ID)
	if err != nil {
		return err
	}
	course := unit{ref: UnitRef{Type: models.ProgressCourse, ID: e.CourseID}, mandatory: true, weight: 1}
	if err := t.writeRollup(ctx, e, course, value); err != nil {
		return err
	}
	if err := t.store.Enrollments.AdvanceProgress(ctx, e.ID, int(math.Floor(value))); err != nil {
		return fmt.Errorf("cache enrollment progress: %w", err)
	}
	if value >= 100 && e.Status == models.EnrollmentActive && t.opts.AutoCompleteEnrollment {
		if _, err := t.enrollments.complete(ctx, e); err != nil {
			return err
		}
		e.Status = models.EnrollmentCompleted
	}
	return nil
}

// writeRollup stores a derived completion. Rollups never move backwards, so
// a stale recompute that lost a race is dropped.
func (t *ProgressTracker) writeRollup(ctx context.Context, e *models.CourseEnrollment, u unit, value float64) error {
	row, err := t.ensureRow(ctx, e, u)
	if err != nil {
		return err
	}
	if value < row.CompletionPercentage {
		return nil
	}
	now := t.now()
	fields := map[string]interface{}{
		"completion_percentage": value,
		"last_accessed_at":      now,
	}
	if row.StartedAt == nil {
		fields["started_at"] = now
	}
	switch {
	case value >= 100:
		fields["status"] = models.ProgressCompleted
		if row.CompletedAt == nil {
			fields["completed_at"] = now
		}
	case value > 0:
		fields["status"] = models.ProgressInProgress
	}
	if _, err := t.store.Progress.Advance(ctx, row.ID, value, fields); err != nil {
		return fmt.Errorf("write %s rollup: %w", u.ref.Type, err)
	}
	return nil
}

// ComputeCourseCompletion derives the weighted completion of an enrollment
// from the persisted unit rows. Mandatory units without a row count as 0.
func (t *ProgressTracker) ComputeCourseCompletion(ctx context.Context, enrollmentID uint) (float64, error) {
	e, err := t.enrollments.mustGet(ctx, enrollmentID)
	if err != nil {
		return 0, err
	}
	units, err := t.courseUnits(ctx, e.CourseID)
	if err != nil {
		return 0, err
	}
	rows, err := t.rowsByKey(ctx, e.ID)
	if err != nil {
		return 0, err
	}
	return weightedCompletion(units, rows), nil
}

// CourseRowCompletion reads the persisted course-level row; a missing row is 0.
func (t *ProgressTracker) CourseRowCompletion(ctx context.Context, enrollmentID uint) (float64, error) {
	e, err := t.enrollments.mustGet(ctx, enrollmentID)
	if err != nil {
		return 0, err
	}
	row, err := t.store.Progress.FindByUnit(ctx, e.ID, models.UnitKey(models.ProgressCourse, e.CourseID))
	if err != nil {
		return 0, fmt.Errorf("load course progress: %w", err)
	}
	if row == nil {
		return 0, nil
	}
	return row.CompletionPercentage, nil
}

func (t *ProgressTracker) ListProgress(ctx context.Context, enrollmentID uint) ([]models.CourseProgress, error) {
	if _, err := t.enrollments.mustGet(ctx, enrollmentID); err != nil {
		return nil, err
	}
	return t.store.Progress.ListByEnrollment(ctx, enrollmentID)
}

// weightedCompletion is Σ(completion × weight) / Σ(weight) over mandatory
// units, rounded to two places. It is 100 only when every mandatory unit is.
func weightedCompletion(units []unit, rows map[string]models.CourseProgress) float64 {
	var num, den float64
	complete := true
	for _, u := range units {
		mandatory, weight, pct := u.mandatory, u.weight, 0.0
		if row, ok := rows[u.ref.key()]; ok {
			mandatory, weight, pct = row.IsMandatory, row.Weight, row.CompletionPercentage
		}
		if !mandatory || weight <= 0 {
			continue
		}
		num += clampPercent(pct) * weight
		den += weight
		if pct < 100 {
			complete = false
		}
	}
	if den == 0 {
		return 0
	}
	if complete {
		return 100
	}
	v := roundTo(clampPercent(num/den), 2)
	if v >= 100 {
		v = 99.99
	}
	return v
}

func (t *ProgressTracker) rowsByKey(ctx context.Context, enrollmentID uint) (map[string]models.CourseProgress, error) {
	rows, err := t.store.Progress.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("load progress rows: %w", err)
	}
	out := make(map[string]models.CourseProgress, len(rows))
	for _, row := range rows {
		out[row.UnitKey] = row
	}
	return out, nil
}

// courseUnits lists every leaf unit of a course from the catalog.
func (t *ProgressTracker) courseUnits(ctx context.Context, courseID uint) ([]unit, error) {
	lessons, err := t.store.Courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	quizzes, err := t.store.Courses.ListQuizzes(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	assignments, err := t.store.Courses.ListAssignments(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	units := make([]unit, 0, len(lessons)+len(quizzes)+len(assignments))
	for _, l := range lessons {
		units = append(units, lessonUnit(&l))
	}
	for _, q := range quizzes {
		units = append(units, quizUnit(&q))
	}
	for _, a := range assignments {
		units = append(units, assignmentUnit(&a))
	}
	return units, nil
}

func lessonUnit(l *models.Lesson) unit {
	return unit{ref: UnitRef{Type: models.ProgressLesson, ID: l.ID}, moduleID: l.ModuleID, mandatory: l.IsMandatory, weight: l.Weight}
}

func quizUnit(q *models.Quiz) unit {
	return unit{
		ref:         UnitRef{Type: models.ProgressQuiz, ID: q.ID},
		moduleID:    q.ModuleID,
		mandatory:   q.IsMandatory,
		weight:      q.Weight,
		maxAttempts: q.MaxAttempts,
	}
}

func assignmentUnit(a *models.Assignment) unit {
	return unit{
		ref:         UnitRef{Type: models.ProgressAssignment, ID: a.ID},
		moduleID:    a.ModuleID,
		mandatory:   a.IsMandatory,
		weight:      a.Weight,
		maxAttempts: a.MaxAttempts,
	}
}

// resolve looks the unit up in the catalog and checks it belongs to the
// enrollment's course.
func (t *ProgressTracker) resolve(ctx context.Context, e *models.CourseEnrollment, ref UnitRef) (unit, error) {
	switch ref.Type {
	case models.ProgressLesson:
		l, err := t.store.Courses.GetLesson(ctx, ref.ID)
		if err != nil {
			return unit{}, err
		}
		if l == nil || l.CourseID != e.CourseID {
			return unit{}, notFound("lesson", ref.ID)
		}
		return lessonUnit(l), nil
	case models.ProgressQuiz:
		q, err := t.store.Courses.GetQuiz(ctx, ref.ID)
		if err != nil {
			return unit{}, err
		}
		if q == nil || q.CourseID != e.CourseID {
			return unit{}, notFound("quiz", ref.ID)
		}
		return quizUnit(q), nil
	case models.ProgressAssignment:
		a, err := t.store.Courses.GetAssignment(ctx, ref.ID)
		if err != nil {
			return unit{}, err
		}
		if a == nil || a.CourseID != e.CourseID {
			return unit{}, notFound("assignment", ref.ID)
		}
		return assignmentUnit(a), nil
	case models.ProgressModule:
		m, err := t.store.Courses.GetModule(ctx, ref.ID)
		if err != nil {
			return unit{}, err
		}
		if m == nil || m.CourseID != e.CourseID {
			return unit{}, notFound("module", ref.ID)
		}
		return unit{ref: ref, mandatory: true, weight: 1}, nil
	case models.ProgressCourse:
		if ref.ID != e.CourseID {
			return unit{}, notFound("course", ref.ID)
		}
		return unit{ref: ref, mandatory: true, weight: 1}, nil
	}
	return unit{}, invalid("unit.type", "must be one of: lesson quiz assignment module course")
}

// ensureRow returns the progress row of a unit, creating it on first use.
// The (enrollment, unit) unique key settles concurrent creation.
func (t *ProgressTracker) ensureRow(ctx context.Context, e *models.CourseEnrollment, u unit) (*models.CourseProgress, error) {
	key := u.ref.key()
	row, err := t.store.Progress.FindByUnit(ctx, e.ID, key)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if row != nil {
		return row, nil
	}

	row = &models.CourseProgress{
		EnrollmentID: e.ID,
		UnitKey:      key,
		CourseID:     e.CourseID,
		UserID:       e.UserID,
		ProgressType: u.ref.Type,
		Status:       models.ProgressNotStarted,
		MaxAttempts:  u.maxAttempts,
		IsMandatory:  u.mandatory,
		Weight:       u.weight,
	}
	id := u.ref.ID
	switch u.ref.Type {
	case models.ProgressLesson:
		row.LessonID = &id
	case models.ProgressQuiz:
		row.QuizID = &id
	case models.ProgressAssignment:
		row.AssignmentID = &id
	case models.ProgressModule:
		row.ModuleID = &id
	}

	created, err := t.store.Progress.CreateIfAbsent(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("create progress: %w", err)
	}
	if created {
		return row, nil
	}
	row, err = t.store.Progress.FindByUnit(ctx, e.ID, key)
	if err != nil {
		return nil, fmt.Errorf("reload progress after conflict: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("progress row %s vanished after conflict", key)
	}
	return row, nil
}

// openEnrollment loads an enrollment that still accepts progress writes.
func (t *ProgressTracker) openEnrollment(ctx context.Context, enrollmentID uint) (*models.CourseEnrollment, error) {
	e, err := t.enrollments.mustGet(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EnrollmentActive && e.Status != models.EnrollmentCompleted {
		return nil, transition("enrollment %d is %s", e.ID, e.Status)
	}
	return e, nil
}
