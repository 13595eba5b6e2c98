package services

import (
	"log"
	"sync"
	"time"

	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
)

// StaleSessionCleanupService bulk-closes activity sessions that stayed open
// past a threshold. The game server normally sends the end signal; crashes
// and kicks leave ghost sessions behind, which would otherwise hold the
// one-active-session slot forever. Bulk-closed sessions get an end time and
// count normally in aggregation.
type StaleSessionCleanupService struct {
	staleThreshold time.Duration
	checkInterval  time.Duration
	stopChan       chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	isRunning      bool
}

// NewStaleSessionCleanupService creates a new cleanup service
func NewStaleSessionCleanupService(staleMinutes int) *StaleSessionCleanupService {
	if staleMinutes <= 0 {
		staleMinutes = 180
	}
	return &StaleSessionCleanupService{
		staleThreshold: time.Duration(staleMinutes) * time.Minute,
		checkInterval:  5 * time.Minute,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the cleanup service
func (s *StaleSessionCleanupService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	log.Printf("StaleSessionCleanupService started (threshold: %v, interval: %v)",
		s.staleThreshold, s.checkInterval)
}

// Stop stops the cleanup service
func (s *StaleSessionCleanupService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Println("StaleSessionCleanupService stopped")
}

func (s *StaleSessionCleanupService) run() {
	defer s.wg.Done()

	// First cleanup after a short delay (let the system stabilize)
	select {
	case <-time.After(2 * time.Minute):
		s.cleanup()
	case <-s.stopChan:
		return
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *StaleSessionCleanupService) cleanup() {
	if database.DB == nil {
		return
	}

	cutoff := time.Now().UTC().Add(-s.staleThreshold)

	result := database.DB.Model(&models.ActivitySession{}).
		Where("active = ? AND archived = ? AND start_time < ?", true, false, cutoff).
		Updates(map[string]interface{}{
			"active":   false,
			"end_time": time.Now().UTC(),
		})

	if result.Error != nil {
		log.Printf("StaleSessionCleanup: error closing stale sessions: %v", result.Error)
		return
	}

	if result.RowsAffected > 0 {
		log.Printf("StaleSessionCleanup: closed %d stale sessions (started before %v)", result.RowsAffected, cutoff)
	}
}
