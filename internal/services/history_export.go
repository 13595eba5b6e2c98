package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/crewtrack/backend/internal/config"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"github.com/jlaffaye/ftp"
)

// HistoryExportService uploads newly written period snapshots to an offsite
// FTP drop as CSV, once per day. History rows are write-once, so the export
// tracks a per-row exported flag instead of diffing.
type HistoryExportService struct {
	cfg           *config.Config
	checkInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	isRunning     bool
}

func NewHistoryExportService(cfg *config.Config) *HistoryExportService {
	return &HistoryExportService{
		cfg:           cfg,
		checkInterval: 24 * time.Hour,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the export service. A missing FTP host disables it.
func (s *HistoryExportService) Start() {
	if s.cfg.ExportFTPHost == "" {
		log.Println("HistoryExportService disabled (EXPORT_FTP_HOST not set)")
		return
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	log.Printf("HistoryExportService started (host: %s, interval: %v)", s.cfg.ExportFTPHost, s.checkInterval)
}

// Stop stops the export service
func (s *HistoryExportService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Println("HistoryExportService stopped")
}

func (s *HistoryExportService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.exportPending()
		}
	}
}

// exportPending uploads all unexported history rows and flags them
func (s *HistoryExportService) exportPending() {
	if database.DB == nil {
		return
	}

	var rows []models.ActivityHistory
	if err := database.DB.Where("exported = ?", false).
		Order("id ASC").Limit(5000).Find(&rows).Error; err != nil {
		log.Printf("HistoryExport: query failed: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	payload, err := encodeHistoryCSV(rows)
	if err != nil {
		log.Printf("HistoryExport: encode failed: %v", err)
		return
	}

	filename := fmt.Sprintf("history-%s.csv", time.Now().UTC().Format("20060102-150405"))
	if err := s.upload(filename, payload); err != nil {
		log.Printf("HistoryExport: upload failed: %v", err)
		return
	}

	ids := make([]uint, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	if err := database.DB.Model(&models.ActivityHistory{}).
		Where("id IN ?", ids).
		Update("exported", true).Error; err != nil {
		log.Printf("HistoryExport: failed to flag %d rows exported: %v", len(ids), err)
		return
	}

	log.Printf("HistoryExport: uploaded %d rows as %s", len(rows), filename)
}

func encodeHistoryCSV(rows []models.ActivityHistory) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"workspace_id", "user_id", "period_start", "period_end",
		"minutes", "messages", "sessions_hosted", "sessions_attended",
		"idle_time", "wall_posts",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatUint(uint64(row.WorkspaceID), 10),
			strconv.FormatInt(row.UserID, 10),
			row.PeriodStart.UTC().Format(time.RFC3339),
			row.PeriodEnd.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.Minutes, 10),
			strconv.FormatInt(row.Messages, 10),
			strconv.FormatInt(row.SessionsHosted, 10),
			strconv.FormatInt(row.SessionsAttended, 10),
			strconv.FormatInt(row.IdleTime, 10),
			strconv.FormatInt(row.WallPosts, 10),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func (s *HistoryExportService) upload(filename string, payload []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ExportFTPHost, s.cfg.ExportFTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Quit()

	if err := conn.Login(s.cfg.ExportFTPUser, s.cfg.ExportFTPPassword); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	remotePath := s.cfg.ExportFTPDir + "/" + filename
	if err := conn.Stor(remotePath, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("store %s: %w", remotePath, err)
	}
	return nil
}
