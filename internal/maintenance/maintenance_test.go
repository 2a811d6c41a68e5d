package maintenance

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/notebox/internal/database"
)

type fakeStore struct {
	settings    map[string]string
	purgeCalls  []time.Time
	optimized   int
	vacuumed    int
	purgeErr    error
	optimizeErr error
}

func (f *fakeStore) GetSetting(key string) (string, error) {
	return f.settings[key], nil
}

func (f *fakeStore) DeleteExpiredSessions(now time.Time) (int64, error) {
	f.purgeCalls = append(f.purgeCalls, now)
	return 3, f.purgeErr
}

func (f *fakeStore) Vacuum() error {
	f.vacuumed++
	return nil
}

func (f *fakeStore) Optimize() error {
	f.optimized++
	return f.optimizeErr
}

func TestRunOnce(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	res, err := m.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.SessionsPurged)
	assert.Equal(t, []time.Time{fixed}, store.purgeCalls)
	assert.Equal(t, 1, store.optimized)
	assert.False(t, res.Vacuumed)
	assert.Zero(t, store.vacuumed)
}

func TestRunOnceVacuums(t *testing.T) {
	store := &fakeStore{settings: map[string]string{VacuumSetting: "true"}}

	res, err := NewManager(store).RunOnce()
	require.NoError(t, err)
	assert.True(t, res.Vacuumed)
	assert.Equal(t, 1, store.vacuumed)
}

func TestRunOnceErrors(t *testing.T) {
	store := &fakeStore{purgeErr: errors.New("locked")}
	_, err := NewManager(store).RunOnce()
	require.Error(t, err)
	assert.Zero(t, store.optimized)

	store = &fakeStore{optimizeErr: errors.New("busy")}
	res, err := NewManager(store).RunOnce()
	require.Error(t, err)
	assert.Equal(t, int64(3), res.SessionsPurged)
}

func TestStartUsesScheduleSetting(t *testing.T) {
	m := NewManager(&fakeStore{})
	require.NoError(t, m.Start())
	assert.Equal(t, DefaultSchedule, m.Schedule())
	require.NoError(t, m.Start(), "second start is a no-op")
	m.Stop()
	assert.True(t, m.NextRun().IsZero())

	m = NewManager(&fakeStore{settings: map[string]string{ScheduleSetting: "*/5 * * * *"}})
	require.NoError(t, m.Start())
	assert.Equal(t, "*/5 * * * *", m.Schedule())
	m.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := NewManager(&fakeStore{settings: map[string]string{ScheduleSetting: "whenever"}})
	assert.Error(t, m.Start())
}

func TestRunOnceAgainstDatabase(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "maint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	user, err := db.CreateUser("m@notebox.local", "maint", "hash")
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = db.CreateSession("old", user.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = db.CreateSession("live", user.ID, now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, db.SetSetting(VacuumSetting, "true"))

	res, err := NewManager(db).RunOnce()
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.SessionsPurged)
	assert.True(t, res.Vacuumed)

	live, err := db.GetSession("live")
	require.NoError(t, err)
	assert.NotNil(t, live)
}
