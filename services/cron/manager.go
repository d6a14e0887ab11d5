package cron

import (
	"context"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Dependencies are the services the jobs drive. A nil dependency disables
// the jobs that need it.
type Dependencies struct {
	Outbox        *outbox.Worker
	Credentials   *services.CredentialService
	Newsletters   *services.NewsletterService
	Notifications *services.NotificationService
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
	deps Dependencies
	now  func() time.Time
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, deps Dependencies) *CronManager {
	// Create cron with seconds precision; a run still in progress is skipped
	// rather than stacked
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if deps.Notifications == nil {
		deps.Notifications = services.NewNotificationService(db)
	}

	return &CronManager{
		cron: c,
		db:   db,
		deps: deps,
		now:  time.Now,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	// Register all jobs
	if err := m.registerJobs(); err != nil {
		return err
	}

	// Start the cron scheduler
	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

type job struct {
	name     string
	schedule string
	timeout  time.Duration
	enabled  bool
	run      func(ctx context.Context) (int, string, error)
}

func (m *CronManager) jobs() []job {
	syncEnabled := m.deps.Outbox != nil && m.deps.Outbox.Enabled()
	return []job{
		// 1. Every 10 seconds: project outbox events to the mirror and search index
		{JobSyncOutbox, "*/10 * * * * *", time.Minute, syncEnabled, m.SyncOutbox},
		// 2. Every minute: retry dead letters
		{JobRetryDeadLetters, "0 * * * * *", time.Minute, syncEnabled, m.RetryDeadLetters},
		// 3. Every 2 minutes: settle pending credential transactions
		{JobConfirmCredentials, "0 */2 * * * *", 2 * time.Minute,
			m.deps.Credentials != nil && m.deps.Credentials.ChainEnabled(), m.ConfirmPendingCredentials},
		// 4. Every 5 minutes: send newsletters whose scheduled time has passed
		{JobDispatchNewsletters, "0 */5 * * * *", 5 * time.Minute, m.deps.Newsletters != nil, m.DispatchNewsletters},
		// 5. Every hour: remind registrants of events starting within a day
		{JobEventReminders, "0 0 * * * *", 10 * time.Minute, true, m.SendEventReminders},
		// 6. Daily at 3 AM: purge expired tokens and old logs, complete past events
		{JobDailyCleanup, "0 0 3 * * *", 10 * time.Minute, true, m.DailyCleanup},
	}
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	for _, j := range m.jobs() {
		if !j.enabled {
			log.Printf("[CRON] Job %s disabled: dependency not configured", j.name)
			continue
		}
		j := j
		if _, err := m.cron.AddFunc(j.schedule, func() { m.runJob(j.name, j.timeout, j.run) }); err != nil {
			return err
		}
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// runJob executes one job and records the run
func (m *CronManager) runJob(jobName string, timeout time.Duration, run func(ctx context.Context) (int, string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entry := m.logJobStart(jobName)
	items, message, err := run(ctx)
	if err != nil {
		m.logJobError(entry, items, err)
		return
	}
	m.logJobComplete(entry, items, message)
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	entry := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronStatusStarted,
		StartedAt: m.now(),
	}
	if err := m.db.Create(entry).Error; err != nil {
		log.Printf("[CRON] Failed to record start of %s: %v", jobName, err)
	}
	return entry
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, items int, message string) {
	if items > 0 {
		log.Printf("[CRON] Completed job: %s - %s", entry.JobName, message)
	}
	m.finish(entry, model.CronStatusCompleted, items, message, "")
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, items int, err error) {
	log.Printf("[CRON] Error in job: %s - %v", entry.JobName, err)
	m.finish(entry, model.CronStatusFailed, items, "", err.Error())
}

func (m *CronManager) finish(entry *model.CronJobLog, status string, items int, message, errMsg string) {
	if entry.ID == 0 {
		return
	}
	now := m.now()
	if err := m.db.Model(entry).Updates(map[string]interface{}{
		"status":          status,
		"completed_at":    now,
		"duration":        int(now.Sub(entry.StartedAt).Milliseconds()),
		"items_processed": items,
		"message":         message,
		"error_msg":       errMsg,
	}).Error; err != nil {
		log.Printf("[CRON] Failed to record end of %s: %v", entry.JobName, err)
	}
}
