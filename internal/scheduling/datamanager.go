package scheduling

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

// Store supplies the persisted constraint sources for one provider+school
// scope. The data manager fetches through it exactly once per initialize or
// refresh; every query afterwards is served from the in-memory cache.
type Store interface {
	ProviderAvailability(ctx context.Context, providerID string, school SchoolIdentifier) ([]models.ProviderAvailability, error)
	BellSchedules(ctx context.Context, school SchoolIdentifier) ([]models.BellSchedule, error)
	SpecialActivities(ctx context.Context, school SchoolIdentifier) ([]models.SpecialActivity, error)
	TemplateSessions(ctx context.Context, providerID string, school SchoolIdentifier) ([]models.ScheduleSession, error)
	SchoolHours(ctx context.Context, school SchoolIdentifier) ([]models.SchoolHours, error)
	SessionFingerprint(ctx context.Context, providerID string, school SchoolIdentifier) (models.SessionFingerprint, error)
}

// DataManagerConfig tunes fetch retry behaviour. RetryAttempts counts retries
// after the first attempt: zero means the default of 2, any negative value
// disables retries entirely.
type DataManagerConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	Clock         func() time.Time
}

// Default school day used when no school_hours row matches.
const (
	defaultDayStartMin = 8 * 60
	defaultDayEndMin   = 15 * 60
)

type timeWindow struct {
	start int
	end   int
}

type cachedSession struct {
	row   models.ScheduleSession
	start int
	end   int
}

type slotKey struct {
	day   int
	start int
}

type hoursRule struct {
	grade *string
	day   *int
	start int
	end   int
}

// Snapshot is an immutable point-in-time copy of the cached sessions,
// used for undo and optimistic-concurrency conflict detection.
type Snapshot struct {
	ID       string
	Version  uint64
	TakenAt  time.Time
	Sessions []models.ScheduleSession
}

// DataVersion describes the freshness of the in-memory view.
type DataVersion struct {
	Version  uint64    `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
	Stale    bool      `json:"stale"`
}

// Conflict reports a divergence between the in-memory view and the store.
type Conflict struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DataManager caches and indexes provider availability, bell schedules,
// special activities, and existing template sessions for one provider+school
// scheduling session. It is caller-owned with an explicit lifecycle
// (Initialize -> queries -> Refresh -> ClearCache) and is not safe for
// unsynchronized mutation from multiple logical callers; concurrent editors
// are reconciled through the snapshot/version mechanism instead.
type DataManager struct {
	store  Store
	cfg    DataManagerConfig
	logger *zap.Logger

	mu          sync.RWMutex
	initialized bool
	stale       bool
	providerID  string
	school      SchoolIdentifier
	version     uint64
	loadedAt    time.Time
	fingerprint models.SessionFingerprint

	workDays   map[int]bool
	bells      []models.BellSchedule
	bellIndex  map[string][]timeWindow
	activities []models.SpecialActivity
	actIndex   map[string][]timeWindow
	hours      []hoursRule
	sessions   []cachedSession
	slotCount  map[slotKey]int
}

// NewDataManager constructs an uninitialized manager.
func NewDataManager(store Store, logger *zap.Logger, cfg DataManagerConfig) *DataManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case cfg.RetryAttempts < 0:
		cfg.RetryAttempts = 0
	case cfg.RetryAttempts == 0:
		cfg.RetryAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &DataManager{store: store, cfg: cfg, logger: logger}
}

// Initialize loads and indexes all constraint sources for the given scope.
// It must complete before any query method is called.
func (m *DataManager) Initialize(ctx context.Context, providerID string, school SchoolIdentifier) error {
	if providerID == "" || school.IsZero() {
		return appErrors.Clone(appErrors.ErrInitialization, "provider id and school scope are required")
	}
	m.mu.Lock()
	m.providerID = providerID
	m.school = school
	m.mu.Unlock()
	return m.load(ctx)
}

// Refresh invalidates and reloads the cache. Required after any out-of-band
// mutation such as a CSV import or admin edit.
func (m *DataManager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	providerID := m.providerID
	m.mu.RUnlock()
	if providerID == "" {
		return appErrors.Clone(appErrors.ErrInitialization, "data manager was never initialized")
	}
	return m.load(ctx)
}

// ClearCache drops all cached state. The manager must be re-initialized
// before further queries.
func (m *DataManager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.workDays = nil
	m.bells = nil
	m.bellIndex = nil
	m.activities = nil
	m.actIndex = nil
	m.hours = nil
	m.sessions = nil
	m.slotCount = nil
	m.version++
}

func (m *DataManager) load(ctx context.Context) error {
	m.mu.RLock()
	providerID, school := m.providerID, m.school
	m.mu.RUnlock()

	var (
		availability []models.ProviderAvailability
		bells        []models.BellSchedule
		activities   []models.SpecialActivity
		sessions     []models.ScheduleSession
		hours        []models.SchoolHours
		fingerprint  models.SessionFingerprint
	)

	err := m.fetchWithRetry(ctx, func(ctx context.Context) error {
		var err error
		if availability, err = m.store.ProviderAvailability(ctx, providerID, school); err != nil {
			return err
		}
		if bells, err = m.store.BellSchedules(ctx, school); err != nil {
			return err
		}
		if activities, err = m.store.SpecialActivities(ctx, school); err != nil {
			return err
		}
		if sessions, err = m.store.TemplateSessions(ctx, providerID, school); err != nil {
			return err
		}
		if hours, err = m.store.SchoolHours(ctx, school); err != nil {
			return err
		}
		fingerprint, err = m.store.SessionFingerprint(ctx, providerID, school)
		return err
	})
	if err != nil {
		m.mu.Lock()
		m.stale = true
		m.mu.Unlock()
		return appErrors.Wrap(err, appErrors.ErrDataFetch.Code, appErrors.ErrDataFetch.Status, "failed to load scheduling data")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.workDays = make(map[int]bool, len(availability))
	for _, a := range availability {
		m.workDays[a.DayOfWeek] = true
	}

	m.bells = bells
	m.bellIndex = make(map[string][]timeWindow)
	for _, b := range bells {
		window, ok := parseWindow(b.StartTime, b.EndTime)
		if !ok {
			m.logger.Warn("skipping bell schedule with invalid times", zap.String("id", b.ID))
			continue
		}
		key := bellKey(b.GradeLevel, b.DayOfWeek)
		m.bellIndex[key] = append(m.bellIndex[key], window)
	}

	m.activities = activities
	m.actIndex = make(map[string][]timeWindow)
	for _, a := range activities {
		if a.DeletedAt != nil {
			continue
		}
		window, ok := parseWindow(a.StartTime, a.EndTime)
		if !ok {
			m.logger.Warn("skipping special activity with invalid times", zap.String("id", a.ID))
			continue
		}
		key := activityKey(a.TeacherName, a.DayOfWeek)
		m.actIndex[key] = append(m.actIndex[key], window)
	}

	m.hours = m.hours[:0]
	for _, h := range hours {
		window, ok := parseWindow(h.StartTime, h.EndTime)
		if !ok {
			continue
		}
		m.hours = append(m.hours, hoursRule{grade: h.GradeLevel, day: h.DayOfWeek, start: window.start, end: window.end})
	}

	m.sessions = m.sessions[:0]
	m.slotCount = make(map[slotKey]int)
	for _, s := range sessions {
		if !s.IsTemplate() {
			continue
		}
		window, ok := parseWindow(s.StartTime, s.EndTime)
		if !ok {
			m.logger.Warn("skipping template session with invalid times", zap.String("id", s.ID))
			continue
		}
		m.sessions = append(m.sessions, cachedSession{row: s, start: window.start, end: window.end})
		m.slotCount[slotKey{day: s.DayOfWeek, start: window.start}]++
	}

	m.fingerprint = fingerprint
	m.initialized = true
	m.stale = false
	m.loadedAt = m.cfg.Clock()
	m.version++
	return nil
}

// fetchWithRetry runs fn with exponential backoff between attempts.
func (m *DataManager) fetchWithRetry(ctx context.Context, fn func(context.Context) error) error {
	delay := m.cfg.RetryDelay
	var err error
	for attempt := 0; attempt <= m.cfg.RetryAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == m.cfg.RetryAttempts {
			break
		}
		m.logger.Warn("scheduling data fetch failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// Initialized reports whether the cache has been loaded.
func (m *DataManager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// ProviderID returns the scoped provider.
func (m *DataManager) ProviderID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providerID
}

// School returns the scoped school identifier.
func (m *DataManager) School() SchoolIdentifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.school
}

// IsProviderAvailable reports whether the provider works this site on `day`.
func (m *DataManager) IsProviderAvailable(day int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workDays[day]
}

// ProviderWorkDays returns the provider's work days at this site, sorted.
func (m *DataManager) ProviderWorkDays() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	days := make([]int, 0, len(m.workDays))
	for day := range m.workDays {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

// BellScheduleConflicts returns every bell-schedule row for the grade/day
// whose time range overlaps [start, end).
func (m *DataManager) BellScheduleConflicts(grade string, day, start, end int) []models.BellSchedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BellSchedule
	for _, b := range m.bells {
		if b.GradeLevel != grade || b.DayOfWeek != day {
			continue
		}
		window, ok := parseWindow(b.StartTime, b.EndTime)
		if ok && rangesOverlap(window.start, window.end, start, end) {
			out = append(out, b)
		}
	}
	return out
}

// HasBellConflict is the index-backed boolean variant used on hot paths.
func (m *DataManager) HasBellConflict(grade string, day, start, end int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.bellIndex[bellKey(grade, day)] {
		if rangesOverlap(w.start, w.end, start, end) {
			return true
		}
	}
	return false
}

// SpecialActivityConflicts returns non-deleted activities for the teacher on
// `day` overlapping [start, end).
func (m *DataManager) SpecialActivityConflicts(teacherName string, day, start, end int) []models.SpecialActivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SpecialActivity
	for _, a := range m.activities {
		if a.DeletedAt != nil || a.DayOfWeek != day {
			continue
		}
		if normalizeSchoolText(a.TeacherName) != normalizeSchoolText(teacherName) {
			continue
		}
		window, ok := parseWindow(a.StartTime, a.EndTime)
		if ok && rangesOverlap(window.start, window.end, start, end) {
			out = append(out, a)
		}
	}
	return out
}

// HasActivityConflict is the index-backed boolean variant used on hot paths.
func (m *DataManager) HasActivityConflict(teacherName string, day, start, end int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.actIndex[activityKey(teacherName, day)] {
		if rangesOverlap(w.start, w.end, start, end) {
			return true
		}
	}
	return false
}

// ExistingSessions returns all cached template sessions.
func (m *DataManager) ExistingSessions() []models.ScheduleSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ScheduleSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.row)
	}
	return out
}

// SessionsOn returns cached template sessions for one weekday.
func (m *DataManager) SessionsOn(day int) []models.ScheduleSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ScheduleSession
	for _, s := range m.sessions {
		if s.row.DayOfWeek == day {
			out = append(out, s.row)
		}
	}
	return out
}

// StudentSessionsOverlapping returns the student's sessions overlapping the
// proposed range on `day`.
func (m *DataManager) StudentSessionsOverlapping(studentID string, day, start, end int) []models.ScheduleSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ScheduleSession
	for _, s := range m.sessions {
		if s.row.StudentID != studentID || s.row.DayOfWeek != day {
			continue
		}
		if rangesOverlap(s.start, s.end, start, end) {
			out = append(out, s.row)
		}
	}
	return out
}

// SlotCapacity returns the count of sessions already occupying the exact
// (day, start) slot.
func (m *DataManager) SlotCapacity(day, start int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slotCount[slotKey{day: day, start: start}]
}

// DaySessionCount returns the provider's session count for a weekday.
func (m *DataManager) DaySessionCount(day int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.row.DayOfWeek == day {
			count++
		}
	}
	return count
}

// HoursFor resolves operating hours for a grade/day; the most specific
// school_hours row wins, falling back to the default school day.
func (m *DataManager) HoursFor(grade string, day int) (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bestStart, bestEnd := defaultDayStartMin, defaultDayEndMin
	bestScore := -1
	for _, h := range m.hours {
		score := 0
		if h.grade != nil {
			if *h.grade != grade {
				continue
			}
			score += 2
		}
		if h.day != nil {
			if *h.day != day {
				continue
			}
			score++
		}
		if score > bestScore {
			bestScore = score
			bestStart, bestEnd = h.start, h.end
		}
	}
	return bestStart, bestEnd
}

// IsSlotAvailable composes provider availability, capacity, and school-hours
// checks as a cheap pre-filter before full validation.
func (m *DataManager) IsSlotAvailable(grade string, day, start, end, maxPerSlot int) bool {
	if !m.IsProviderAvailable(day) {
		return false
	}
	hoursStart, hoursEnd := m.HoursFor(grade, day)
	if start < hoursStart || end > hoursEnd {
		return false
	}
	if maxPerSlot > 0 && m.SlotCapacity(day, start) >= maxPerSlot {
		return false
	}
	return true
}

// AddSession inserts a template session into the cache and bumps the version.
// The caller is responsible for persisting the row.
func (m *DataManager) AddSession(session models.ScheduleSession) error {
	if !session.IsTemplate() {
		return appErrors.Clone(appErrors.ErrValidation, "only template sessions belong in the scheduling cache")
	}
	window, ok := parseWindow(session.StartTime, session.EndTime)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "session has invalid start or end time")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, cachedSession{row: session, start: window.start, end: window.end})
	m.slotCount[slotKey{day: session.DayOfWeek, start: window.start}]++
	m.version++
	return nil
}

// RemoveSession drops a cached session by id and bumps the version.
func (m *DataManager) RemoveSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.row.ID != id {
			continue
		}
		m.slotCount[slotKey{day: s.row.DayOfWeek, start: s.start}]--
		m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
		m.version++
		return true
	}
	return false
}

// PrepareSnapshot captures an immutable copy of the cached sessions.
func (m *DataManager) PrepareSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]models.ScheduleSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s.row)
	}
	return Snapshot{
		ID:       uuid.NewString(),
		Version:  m.version,
		TakenAt:  m.cfg.Clock(),
		Sessions: sessions,
	}
}

// RestoreSnapshot replaces the live session index with the snapshot copy.
// The version counter keeps moving forward; restores never rewind it.
func (m *DataManager) RestoreSnapshot(snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return appErrors.Clone(appErrors.ErrInitialization, "cannot restore into an uninitialized manager")
	}
	sessions := make([]cachedSession, 0, len(snapshot.Sessions))
	slotCount := make(map[slotKey]int)
	for _, row := range snapshot.Sessions {
		window, ok := parseWindow(row.StartTime, row.EndTime)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, "snapshot contains a session with invalid times")
		}
		sessions = append(sessions, cachedSession{row: row, start: window.start, end: window.end})
		slotCount[slotKey{day: row.DayOfWeek, start: window.start}]++
	}
	m.sessions = sessions
	m.slotCount = slotCount
	m.version++
	return nil
}

// Version returns the freshness descriptor of the in-memory view.
func (m *DataManager) Version() DataVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return DataVersion{Version: m.version, LoadedAt: m.loadedAt, Stale: m.stale}
}

// CheckForConflicts compares the fingerprint captured at load time against
// the store's current fingerprint to detect concurrent edits before a commit.
func (m *DataManager) CheckForConflicts(ctx context.Context) ([]Conflict, error) {
	m.mu.RLock()
	providerID, school, loaded := m.providerID, m.school, m.fingerprint
	initialized := m.initialized
	m.mu.RUnlock()
	if !initialized {
		return nil, appErrors.Clone(appErrors.ErrInitialization, "data manager was never initialized")
	}
	current, err := m.store.SessionFingerprint(ctx, providerID, school)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDataFetch.Code, appErrors.ErrDataFetch.Status, "failed to check for concurrent edits")
	}
	var conflicts []Conflict
	if current.Count != loaded.Count {
		conflicts = append(conflicts, Conflict{
			Type:    "session_count_changed",
			Message: "the session set changed since this view was loaded",
		})
	}
	if current.UpdatedAt != nil && (loaded.UpdatedAt == nil || current.UpdatedAt.After(*loaded.UpdatedAt)) {
		conflicts = append(conflicts, Conflict{
			Type:    "sessions_modified",
			Message: "one or more sessions were modified since this view was loaded",
		})
	}
	if len(conflicts) > 0 {
		m.mu.Lock()
		m.stale = true
		m.mu.Unlock()
	}
	return conflicts, nil
}

func parseWindow(start, end string) (timeWindow, bool) {
	s, err := ParseClock(start)
	if err != nil {
		return timeWindow{}, false
	}
	e, err := ParseClock(end)
	if err != nil || e <= s {
		return timeWindow{}, false
	}
	return timeWindow{start: s, end: e}, true
}

func bellKey(grade string, day int) string {
	return grade + "|" + strconv.Itoa(day)
}

func activityKey(teacher string, day int) string {
	return normalizeSchoolText(teacher) + "|" + strconv.Itoa(day)
}
