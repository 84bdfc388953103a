package reminder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tasklight/tasklight/internal/config"
	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/notification"
	"github.com/tasklight/tasklight/internal/web/sse"
)

const minInterval = 10 * time.Second

// Service periodically checks for todos whose due date has passed and
// announces each one exactly once.
type Service struct {
	db       *database.DB
	loader   *config.Loader
	broker   *sse.Broker
	notifier *notification.Manager
	mu       sync.Mutex
	checking atomic.Bool

	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new reminder service
func New(db *database.DB, broker *sse.Broker, notifier *notification.Manager) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		db:       db,
		loader:   config.NewLoader(db),
		broker:   broker,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the reminder loop.
// Returns false without starting when reminders are disabled in settings.
func (s *Service) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return true
	}

	if !s.loader.Bool("reminder.enabled", true) {
		log.Info().Msg("Reminder service disabled in settings")
		return false
	}

	s.running = true
	s.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Reminder loop panicked")
			}
		}()
		s.run()
	})
	log.Info().Msg("Reminder service started")
	return true
}

// Stop stops the reminder loop
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	log.Info().Msg("Reminder service stopped")
}

// IsRunning returns whether the service is currently running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) run() {
	interval := s.loader.Duration("reminder.interval", time.Minute)
	if interval < minInterval {
		interval = minInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately on startup so overdue todos are not delayed a full tick
	s.checkDue()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			// Skip this cycle if the previous check is still running
			if !s.checking.CompareAndSwap(false, true) {
				log.Debug().Msg("Skipping reminder cycle - previous check still running")
				continue
			}
			s.checkDue()
			s.checking.Store(false)
		}
	}
}

// checkDue finds due todos not yet announced and broadcasts each one
func (s *Service) checkDue() {
	todos, err := s.db.ListDueTodos(time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due todos")
		return
	}

	for _, todo := range todos {
		if err := s.db.MarkDueNotified(todo.ID); err != nil {
			log.Error().Err(err).Int64("todo_id", todo.ID).Msg("Failed to mark todo as notified")
			continue
		}

		log.Info().Int64("todo_id", todo.ID).Str("text", todo.Text).Msg("Todo is due")

		if s.broker != nil {
			s.broker.Broadcast(sse.Event{Type: sse.EventTodoDue, Data: todo})
		}
		if s.notifier != nil {
			s.notifier.Notify(notification.Event{
				Type:    notification.EventTodoDue,
				Title:   "Todo due",
				Message: todo.Text,
				Fields: map[string]string{
					"todo_id": fmt.Sprintf("%d", todo.ID),
				},
			})
		}
	}
}
