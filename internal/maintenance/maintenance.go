package maintenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/notebox/internal/config"
)

const (
	// ScheduleSetting is the settings key holding the cron spec
	ScheduleSetting = "maintenance.schedule"
	// DefaultSchedule runs maintenance once an hour
	DefaultSchedule = "@hourly"
	// VacuumSetting enables a VACUUM after each run
	VacuumSetting = "maintenance.vacuum"
)

// Store is the database surface maintenance needs
type Store interface {
	config.SettingsGetter
	DeleteExpiredSessions(now time.Time) (int64, error)
	Optimize() error
	Vacuum() error
}

// Result summarizes one maintenance run
type Result struct {
	SessionsPurged int64
	Vacuumed       bool
	Duration       time.Duration
}

// Manager runs periodic database housekeeping
type Manager struct {
	store    Store
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	now      func() time.Time
	mu       sync.Mutex
	running  bool
}

// NewManager creates a maintenance manager for store
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		cron:  cron.New(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Start reads the schedule setting and starts the scheduler
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	schedule := config.NewLoader(m.store).String(ScheduleSetting, DefaultSchedule)
	id, err := m.cron.AddFunc(schedule, m.scheduledRun)
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	m.entryID = id
	m.schedule = schedule
	m.cron.Start()
	m.running = true

	log.Info().Str("schedule", schedule).Msg("Maintenance scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	ctx := m.cron.Stop()
	<-ctx.Done()
	m.cron.Remove(m.entryID)
	m.entryID = 0
	m.running = false

	log.Info().Msg("Maintenance scheduler stopped")
}

// Schedule returns the active cron spec, empty when stopped
func (m *Manager) Schedule() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule
}

// NextRun returns when the job fires next, zero when stopped
func (m *Manager) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entryID == 0 {
		return time.Time{}
	}
	return m.cron.Entry(m.entryID).Next
}

// RunOnce purges expired sessions and optimizes the database, vacuuming
// it too when the vacuum setting is on
func (m *Manager) RunOnce() (Result, error) {
	start := time.Now()

	purged, err := m.store.DeleteExpiredSessions(m.now())
	if err != nil {
		return Result{}, fmt.Errorf("failed to purge sessions: %w", err)
	}

	if err := m.store.Optimize(); err != nil {
		return Result{SessionsPurged: purged}, fmt.Errorf("failed to optimize database: %w", err)
	}

	res := Result{SessionsPurged: purged}
	if config.NewLoader(m.store).Bool(VacuumSetting, false) {
		if err := m.store.Vacuum(); err != nil {
			return res, fmt.Errorf("failed to vacuum database: %w", err)
		}
		res.Vacuumed = true
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (m *Manager) scheduledRun() {
	res, err := m.RunOnce()
	if err != nil {
		log.Error().Err(err).Msg("Scheduled maintenance failed")
		return
	}
	log.Info().
		Int64("sessions_purged", res.SessionsPurged).
		Bool("vacuumed", res.Vacuumed).
		Dur("duration", res.Duration).
		Msg("Scheduled maintenance completed")
}
