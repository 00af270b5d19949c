package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"learnprogress/backend/models"
	"learnprogress/backend/store"
	"learnprogress/backend/testutil"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memCache is a StatsCache that round-trips values through JSON like Redis does.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string, dst interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return false
	}
	c.hits++
	return true
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
}

func (c *memCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

type harness struct {
	db    *gorm.DB
	st    *store.Store
	svc   *Services
	cache *memCache
	now   time.Time
	ctx   context.Context
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	st := store.New(db, log)
	o := Options{
		ReviewDefaultStatus:    "approved",
		DefaultPassingRatio:    0.7,
		AutoCompleteEnrollment: true,
		CertificateBaseURL:     "https://certs.test",
		StatsCacheTTL:          time.Minute,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c := newMemCache()
	h := &harness{
		db:    db,
		st:    st,
		svc:   New(st, c, o, log),
		cache: c,
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ctx:   context.Background(),
	}
	h.svc.SetClock(func() time.Time { return h.now })
	return h
}

func withoutAutoComplete(o *Options) { o.AutoCompleteEnrollment = false }

// enroll seeds a user and enrolls them through the manager.
func (h *harness) enroll(t *testing.T, username string, courseID uint) (*models.User, *models.CourseEnrollment) {
	t.Helper()
	user := testutil.SeedUser(t, h.db, username)
	res, err := h.svc.Enrollments.Enroll(h.ctx, user.ID, courseID, EnrollmentDetails{})
	require.NoError(t, err)
	return user, res.Enrollment
}

func (h *harness) enrollment(t *testing.T, id uint) *models.CourseEnrollment {
	t.Helper()
	e, err := h.st.Enrollments.Get(h.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, e)
	return e
}

func (h *harness) row(t *testing.T, enrollmentID uint, ref UnitRef) *models.CourseProgress {
	t.Helper()
	row, err := h.st.Progress.FindByUnit(h.ctx, enrollmentID, ref.key())
	require.NoError(t, err)
	return row
}

func lessonRef(id uint) UnitRef     { return UnitRef{Type: models.ProgressLesson, ID: id} }
func quizRef(id uint) UnitRef       { return UnitRef{Type: models.ProgressQuiz, ID: id} }
func assignmentRef(id uint) UnitRef { return UnitRef{Type: models.ProgressAssignment, ID: id} }
