package maintenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/tasklight/tasklight/internal/config"
	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/notification"
	"github.com/tasklight/tasklight/internal/web/sse"
)

// Manager runs scheduled database maintenance. Currently that means
// purging completed todos older than the configured retention window.
type Manager struct {
	db          *database.DB
	loader      *config.Loader
	cron        *cron.Cron
	cronEntryID cron.EntryID
	sseBroker   *sse.Broker
	notifier    *notification.Manager
	mu          sync.RWMutex
	running     bool
	lastRun     *time.Time
}

// Status describes the scheduler state
type Status struct {
	Running  bool       `json:"running"`
	Schedule string     `json:"schedule"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// NewManager creates a new maintenance manager
func NewManager(db *database.DB) *Manager {
	return &Manager{
		db:     db,
		loader: config.NewLoader(db),
		cron:   cron.New(),
	}
}

// SetSSEBroker sets the event broker for broadcasting maintenance events
func (m *Manager) SetSSEBroker(broker *sse.Broker) {
	m.sseBroker = broker
}

// SetNotifier sets the notification manager
func (m *Manager) SetNotifier(notifier *notification.Manager) {
	m.notifier = notifier
}

// Start starts the cron scheduler
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if !m.loader.Bool("maintenance.enabled", true) {
		log.Info().Msg("Maintenance disabled in settings")
		return nil
	}

	schedule := m.loader.String("maintenance.schedule", "0 3 * * *")

	m.cron.Start()
	m.running = true

	if err := m.updateSchedule(schedule); err != nil {
		log.Warn().Err(err).Str("schedule", schedule).Msg("Failed to set maintenance schedule")
	}

	log.Info().Str("schedule", schedule).Msg("Maintenance manager started")
	return nil
}

// Stop stops the cron scheduler and waits for a running job to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	ctx := m.cron.Stop()
	<-ctx.Done()

	log.Info().Msg("Maintenance manager stopped")
}

// IsRunning returns whether the scheduler is running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetStatus returns the current scheduler status
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Running:  m.running,
		Schedule: m.loader.String("maintenance.schedule", "0 3 * * *"),
		LastRun:  m.lastRun,
	}

	if m.cronEntryID != 0 {
		entry := m.cron.Entry(m.cronEntryID)
		if !entry.Next.IsZero() {
			status.NextRun = &entry.Next
		}
	}

	return status
}

// RunNow runs a maintenance pass immediately, outside the schedule
func (m *Manager) RunNow() (int64, error) {
	return m.purge()
}

// updateSchedule replaces the cron entry. Caller must hold m.mu.
func (m *Manager) updateSchedule(schedule string) error {
	if m.cronEntryID != 0 {
		m.cron.Remove(m.cronEntryID)
		m.cronEntryID = 0
	}

	id, err := m.cron.AddFunc(schedule, m.scheduledRun)
	if err != nil {
		return err
	}

	m.cronEntryID = id
	return nil
}

// scheduledRun is called by cron
func (m *Manager) scheduledRun() {
	if _, err := m.purge(); err != nil {
		log.Error().Err(err).Msg("Scheduled maintenance failed")
		if m.notifier != nil {
			m.notifier.NotifySimple(notification.EventSystemError, "Maintenance failed", err.Error())
		}
	}
}

// purge deletes completed todos older than the retention window
func (m *Manager) purge() (int64, error) {
	keep := m.loader.DurationDays("maintenance.keep_days", 30)
	cutoff := time.Now().Add(-keep)

	start := time.Now()
	purged, err := m.db.PurgeCompletedBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed todos: %w", err)
	}

	now := time.Now()
	m.mu.Lock()
	m.lastRun = &now
	m.mu.Unlock()

	log.Info().
		Int64("purged", purged).
		Time("cutoff", cutoff).
		Dur("duration", time.Since(start)).
		Msg("Maintenance completed")

	if m.sseBroker != nil {
		m.sseBroker.Broadcast(sse.Event{
			Type: sse.EventMaintenanceCompleted,
			Data: map[string]any{
				"purged": purged,
				"cutoff": cutoff,
			},
		})
	}

	if purged > 0 && m.notifier != nil {
		m.notifier.Notify(notification.Event{
			Type:    notification.EventMaintenanceCompleted,
			Title:   "Maintenance completed",
			Message: fmt.Sprintf("Purged %d completed todos", purged),
			Fields: map[string]string{
				"purged": fmt.Sprintf("%d", purged),
				"cutoff": cutoff.Format(time.RFC3339),
			},
		})
	}

	return purged, nil
}
