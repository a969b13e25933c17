// File: internal/jobs/cache_sync.go
package jobs

import (
	"context"
	"fmt"
	"time"

	"lingualearn_backend/internal/config"
	"lingualearn_backend/internal/profile"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CacheSyncJob periodically replays profile writes that were queued while the
// remote store was unreachable.
type CacheSyncJob struct {
	store         profile.Store
	logger        *zap.Logger
	cfg           *config.Config
	cronScheduler *cron.Cron
}

// NewCacheSyncJob creates a new CacheSyncJob.
func NewCacheSyncJob(
	store profile.Store,
	logger *zap.Logger,
	cfg *config.Config,
) *CacheSyncJob {
	scheduler := cron.New(cron.WithLogger(NewCronLogger(logger.Named("cron"))))

	return &CacheSyncJob{
		store:         store,
		logger:        logger.Named("CacheSyncJob"),
		cfg:           cfg,
		cronScheduler: scheduler,
	}
}

// SetupAndStart schedules and starts the cron job.
func (j *CacheSyncJob) SetupAndStart() error {
	jobSpec := j.cfg.CacheSyncJobSchedule // e.g., "@every 5m"
	if jobSpec == "" {
		j.logger.Warn("Cache sync job schedule not defined (CACHE_SYNC_JOB_SCHEDULE). Job will not run.")
		return nil // Not a fatal error, just won't run
	}

	jobID, err := j.cronScheduler.AddFunc(jobSpec, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule cache sync job", zap.String("spec", jobSpec), zap.Error(err))
		return err
	}

	j.logger.Info("Cache sync job scheduled", zap.String("spec", jobSpec), zap.Any("jobID", jobID))
	j.cronScheduler.Start()
	return nil
}

// runJob is the actual work performed by the cron job.
func (j *CacheSyncJob) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	flushed, err := j.store.SyncPending(ctx)
	if err != nil {
		j.logger.Warn("Cache sync run ended early", zap.Int("profiles_flushed", flushed), zap.Error(err))
		return
	}
	if flushed > 0 {
		j.logger.Info("Cache sync run completed", zap.Int("profiles_flushed", flushed))
	}
}

// Stop gracefully stops the cron scheduler.
func (j *CacheSyncJob) Stop() {
	if j.cronScheduler != nil {
		j.logger.Info("Stopping cache sync job scheduler...")
		stopCtx := j.cronScheduler.Stop()
		select {
		case <-stopCtx.Done():
			j.logger.Info("Cache sync job scheduler stopped gracefully.")
		case <-time.After(10 * time.Second):
			j.logger.Warn("Cache sync job scheduler stop timed out.")
		}
	}
}

// --- Cron Logger Adapter ---

// cronLogger adapts zap.Logger to the cron.Logger interface.
type cronLogger struct {
	zl *zap.Logger
}

// NewCronLogger creates a new cronLogger.
func NewCronLogger(zl *zap.Logger) cron.Logger {
	return &cronLogger{zl: zl}
}

func (cl *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	cl.zl.Info(msg, cl.parseKeysAndValues(keysAndValues...)...)
}

func (cl *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := cl.parseKeysAndValues(keysAndValues...)
	fields = append(fields, zap.Error(err))
	cl.zl.Error(msg, fields...)
}

func (cl *cronLogger) parseKeysAndValues(keysAndValues ...interface{}) []zap.Field {
	var fields []zap.Field
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), "MISSING_VALUE"))
		}
	}
	return fields
}
