package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"urbanvision/internal/config"
	"urbanvision/internal/dto"
	"urbanvision/internal/logger"
	"urbanvision/internal/model"
	"urbanvision/internal/repository"
)

const timestampLayout = "2006-01-02_15-04-05.000"

// ArchiveService buffers annotated runs in memory and periodically flushes them
// to the image directory and the history database.
type ArchiveService struct {
	imagesDir     string
	limit         int
	flushInterval time.Duration
	runs          []dto.BufferedRun
	mu            sync.Mutex
	logger        *logger.Logger
	runRepo       repository.RunRepository
	detectionRepo repository.DetectionRepository
}

// NewArchiveService creates an ArchiveService. Repositories may be nil, in which
// case only the image files are written.
func NewArchiveService(cfg *config.Config, logger *logger.Logger, runRepo repository.RunRepository, detectionRepo repository.DetectionRepository) *ArchiveService {
	interval := time.Duration(cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &ArchiveService{
		imagesDir:     cfg.ImageDirectory,
		limit:         cfg.ArchiveLimit,
		flushInterval: interval,
		runs:          make([]dto.BufferedRun, 0),
		logger:        logger,
		runRepo:       runRepo,
		detectionRepo: detectionRepo,
	}
}

// Run flushes the buffer on every tick until ctx is canceled, then flushes once more.
func (s *ArchiveService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushRuns()
			return
		case <-ticker.C:
			s.FlushRuns()
		}
	}
}

// AddRun queues a run for archiving. It reports false when the buffer is full.
func (s *ArchiveService) AddRun(run dto.BufferedRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && len(s.runs) >= s.limit {
		s.logger.Warning("Archive buffer full (%d), dropping run for %s", s.limit, run.Source)
		return false
	}

	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}
	s.runs = append(s.runs, run)
	s.logger.Info("Archive buffer size: %d/%d", len(s.runs), s.limit)
	return true
}

// Pending returns the number of buffered runs.
func (s *ArchiveService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// FlushRuns writes buffered runs to disk and the database and clears the buffer.
// It returns the number of runs saved.
func (s *ArchiveService) FlushRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.runs) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, run := range s.runs {
		filename := s.uniqueFilename(run)
		fullpath := filepath.Join(s.imagesDir, filename)

		if err := os.WriteFile(fullpath, run.Data, 0644); err != nil {
			s.logger.Error("Error saving image %s: %v", filename, err)
			continue
		}

		if err := s.saveRecord(run, filename, fullpath); err != nil {
			s.logger.Error("Error saving run to database %s: %v", filename, err)
			continue
		}

		savedCount++
	}

	s.logger.Info("Flushed %d runs to disk", savedCount)
	s.runs = s.runs[:0]
	return savedCount
}

func (s *ArchiveService) saveRecord(run dto.BufferedRun, filename, fullpath string) error {
	if s.runRepo == nil {
		return nil
	}

	runID, err := s.runRepo.Insert(&model.Run{
		Filename:  filename,
		Source:    run.Source,
		Timestamp: run.Timestamp,
		Threshold: run.Threshold,
		Summary:   run.Summary,
		FilePath:  fullpath,
		FileSize:  int64(len(run.Data)),
	})
	if err != nil {
		return err
	}

	if s.detectionRepo == nil || len(run.Detections) == 0 {
		return nil
	}

	records := make([]model.Detection, 0, len(run.Detections))
	for _, det := range run.Detections {
		records = append(records, model.Detection{
			RunID:      runID,
			ObjectName: det.Name,
			Confidence: det.Confidence,
			X1:         det.X1,
			Y1:         det.Y1,
			X2:         det.X2,
			Y2:         det.Y2,
		})
	}
	if err := s.detectionRepo.InsertBatch(records); err != nil {
		return fmt.Errorf("detections: %w", err)
	}
	return nil
}

// uniqueFilename builds "<timestamp>_<objects>.jpg", adding a counter if the
// name is already taken on disk.
func (s *ArchiveService) uniqueFilename(run dto.BufferedRun) string {
	base := run.Timestamp.Format(timestampLayout) + "_" + objectsLabel(run.Detections)

	filename := base + ".jpg"
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.imagesDir, filename)); errors.Is(err, os.ErrNotExist) {
			return filename
		}
		filename = fmt.Sprintf("%s_%d.jpg", base, i)
	}
}

// objectsLabel joins the distinct object names of a run for use in a file name.
func objectsLabel(detections []dto.DetectionRecord) string {
	if len(detections) == 0 {
		return "none"
	}

	seen := make(map[string]bool)
	names := make([]string, 0, len(detections))
	for _, det := range detections {
		name := strings.ReplaceAll(det.Name, " ", "-")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return strings.Join(names, "_")
}

// Delete removes one archived run from disk and the database.
func (s *ArchiveService) Delete(filename string) error {
	name := filepath.Base(filename)
	if name != filename || name == "." || name == ".." {
		return fmt.Errorf("invalid filename %q", filename)
	}

	if err := os.Remove(filepath.Join(s.imagesDir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if s.runRepo != nil {
		if err := s.runRepo.DeleteByFilename(name); err != nil {
			return err
		}
	}

	s.logger.Info("Deleted archived run: %s", name)
	return nil
}

// Clear removes every archived image and database record and drops the buffer.
func (s *ArchiveService) Clear() error {
	s.mu.Lock()
	s.runs = s.runs[:0]
	s.mu.Unlock()

	files, err := os.ReadDir(s.imagesDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read image directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.imagesDir, file.Name())); err != nil {
			s.logger.Error("Error deleting file %s: %v", file.Name(), err)
		}
	}

	if s.runRepo != nil {
		if err := s.runRepo.DeleteAll(); err != nil {
			return err
		}
	}

	s.logger.Info("All archived runs cleared from directory: %s", s.imagesDir)
	return nil
}

// ImagesDir returns the directory archived images are written to.
func (s *ArchiveService) ImagesDir() string {
	return s.imagesDir
}
