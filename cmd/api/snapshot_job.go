package main

import (
	"context"
	"time"

	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/report"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// snapshotJob logs the day's dashboard figures on a cron schedule.
type snapshotJob struct {
	cron    *cron.Cron
	reports *report.Aggregator
	loc     *time.Location
	logger  *zap.Logger
}

func newSnapshotJob(reports *report.Aggregator, loc *time.Location, logger *zap.Logger) *snapshotJob {
	return &snapshotJob{
		cron:    cron.New(cron.WithLocation(loc)),
		reports: reports,
		loc:     loc,
		logger:  logger,
	}
}

// Start registers the snapshot on a standard five-field cron schedule.
func (j *snapshotJob) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return err
	}
	j.logger.Info("snapshot job scheduled", zap.String("schedule", schedule), zap.String("timezone", j.loc.String()))
	j.cron.Start()
	return nil
}

// Stop waits for a running snapshot to finish.
func (j *snapshotJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *snapshotJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	today := models.Today(j.loc)
	snap, err := j.reports.Snapshot(ctx, today)
	if err != nil {
		j.logger.Error("daily snapshot failed", zap.String("date", today.String()), zap.Error(err))
		return
	}
	j.logger.Info("daily snapshot",
		zap.String("date", today.String()),
		zap.Int("customers", snap.Customers),
		zap.Int("active_loans", snap.ActiveLoans),
		zap.String("expected", snap.Expected.String()),
		zap.String("collected", snap.Collected.String()),
		zap.String("pending", snap.Pending.String()),
	)
}
