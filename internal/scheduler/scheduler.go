// Package scheduler drives the nightly ingestion and room cleanup jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/config"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	jobTimeout = 30 * time.Minute

	// roomCleanupSpec reaps abandoned rooms twice an hour.
	roomCleanupSpec = "*/30 * * * *"
)

// Ingester is the slice of the ingest service the scheduler invokes.
type Ingester interface {
	PopulateContinue(ctx context.Context, contentType string, batchPages int) (*models.IngestReport, error)
	PrewarmPopular(ctx context.Context, contentType string) error
}

// RoomCleaner reaps expired rooms.
type RoomCleaner interface {
	CleanupExpired(ctx context.Context, age time.Duration) (int64, error)
}

// Scheduler owns the cron loop. Start and Stop are called by the app.
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	ingest Ingester
	rooms  RoomCleaner
	logger *logrus.Logger
}

func New(cfg *config.Config, ingest Ingester, rooms RoomCleaner, logger *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		cfg:    cfg,
		ingest: ingest,
		rooms:  rooms,
		logger: logger,
	}

	dailySpec := fmt.Sprintf("%d %d * * *", cfg.Schedule.Minute, cfg.Schedule.Hour)
	if _, err := s.cron.AddFunc(dailySpec, s.runNightly); err != nil {
		return nil, fmt.Errorf("invalid ingestion schedule: %w", err)
	}
	if _, err := s.cron.AddFunc(roomCleanupSpec, s.runRoomCleanup); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
	}

	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"hour":   s.cfg.Schedule.Hour,
		"minute": s.cfg.Schedule.Minute,
	}).Info("Scheduler started")
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// runNightly ingests the next popular batch for both catalogues, then
// prewarms the public cache. Failures are logged per step and never abort
// the remaining steps.
func (s *Scheduler) runNightly() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	batches := []struct {
		contentType string
		pages       int
	}{
		{models.ContentTypeMovie, s.cfg.Schedule.MovieBatchPages},
		{models.ContentTypeTV, s.cfg.Schedule.TVBatchPages},
	}

	for _, batch := range batches {
		report, err := s.ingest.PopulateContinue(ctx, batch.contentType, batch.pages)
		if err != nil {
			s.logger.WithError(err).WithField("content_type", batch.contentType).Error("Nightly ingestion failed")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"content_type": batch.contentType,
			"added":        report.Added,
			"skipped":      report.Skipped,
			"failed_pages": report.FailedPages,
			"pages":        fmt.Sprintf("%d-%d", report.StartPage, report.EndPage),
		}).Info("Nightly ingestion batch done")
	}

	for _, contentType := range []string{models.ContentTypeMovie, models.ContentTypeTV} {
		if err := s.ingest.PrewarmPopular(ctx, contentType); err != nil {
			s.logger.WithError(err).WithField("content_type", contentType).Warn("Prewarm failed")
		}
	}
}

func (s *Scheduler) runRoomCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	touched, err := s.rooms.CleanupExpired(ctx, services.RoomExpiry)
	if err != nil {
		s.logger.WithError(err).Error("Room cleanup failed")
		return
	}
	if touched > 0 {
		s.logger.WithField("rooms", touched).Info("Expired rooms cleaned up")
	}
}
