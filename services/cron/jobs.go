package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/auth"
)

// Job names recorded in cron_job_logs
const (
	JobSyncOutbox          = "sync_outbox"
	JobRetryDeadLetters    = "retry_dead_letters"
	JobConfirmCredentials  = "confirm_credentials"
	JobDispatchNewsletters = "dispatch_newsletters"
	JobEventReminders      = "event_reminders"
	JobDailyCleanup        = "daily_cleanup"
)

const (
	// ReminderWindow is how far ahead of an event registrants are reminded
	ReminderWindow = 24 * time.Hour

	deadLetterBatch = 50
	credentialBatch = 100
)

// SyncOutbox drains outbox batches until the table is empty or the context
// deadline is near.
func (m *CronManager) SyncOutbox(ctx context.Context) (int, string, error) {
	total := 0
	for ctx.Err() == nil {
		n, err := m.deps.Outbox.ProcessOnce(ctx)
		total += n
		if err != nil {
			return total, "", err
		}
		if n == 0 {
			break
		}
	}
	return total, fmt.Sprintf("Projected %d outbox events", total), nil
}

// RetryDeadLetters reapplies unresolved dead letters
func (m *CronManager) RetryDeadLetters(ctx context.Context) (int, string, error) {
	resolved, err := m.deps.Outbox.RetryDeadLetters(ctx, deadLetterBatch)
	if err != nil {
		return resolved, "", err
	}
	return resolved, fmt.Sprintf("Resolved %d dead letters", resolved), nil
}

// ConfirmPendingCredentials settles submitted issuance transactions
func (m *CronManager) ConfirmPendingCredentials(ctx context.Context) (int, string, error) {
	settled, err := m.deps.Credentials.ConfirmPending(ctx, credentialBatch)
	if err != nil {
		return settled, "", err
	}
	return settled, fmt.Sprintf("Settled %d credential transactions", settled), nil
}

// DispatchNewsletters sends scheduled newsletters that are due
func (m *CronManager) DispatchNewsletters(ctx context.Context) (int, string, error) {
	sent, err := m.deps.Newsletters.DispatchScheduled(ctx, m.now())
	if err != nil {
		return sent, "", err
	}
	return sent, fmt.Sprintf("Sent %d newsletters", sent), nil
}

// SendEventReminders notifies registrants of scheduled events starting within
// ReminderWindow. Each event is reminded once.
func (m *CronManager) SendEventReminders(ctx context.Context) (int, string, error) {
	now := m.now()

	var events []model.Event
	if err := m.db.WithContext(ctx).
		Where("status = ? AND reminder_sent_at IS NULL AND starts_at > ? AND starts_at <= ?",
			model.EventStatusScheduled, now, now.Add(ReminderWindow)).
		Find(&events).Error; err != nil {
		return 0, "", fmt.Errorf("failed to query upcoming events: %w", err)
	}

	sent := 0
	for _, event := range events {
		// claim the event so overlapping runs do not remind twice
		claim := m.db.WithContext(ctx).Model(&model.Event{}).
			Where("id = ? AND reminder_sent_at IS NULL", event.ID).
			Update("reminder_sent_at", now)
		if claim.Error != nil {
			log.Printf("[CRON] Failed to claim reminder for event %d: %v", event.ID, claim.Error)
			continue
		}
		if claim.RowsAffected == 0 {
			continue
		}

		var userIDs []uint
		if err := m.db.WithContext(ctx).Model(&model.EventRegistration{}).
			Where("event_id = ? AND status = ?", event.ID, model.RegistrationStatusRegistered).
			Pluck("user_id", &userIDs).Error; err != nil {
			log.Printf("[CRON] Failed to load registrations for event %d: %v", event.ID, err)
			continue
		}

		for _, userID := range userIDs {
			m.deps.Notifications.Notify(ctx, services.CreateNotificationRequest{
				UserID:   userID,
				Type:     model.NotificationTypeInfo,
				Category: model.NotificationCategoryEvent,
				Title:    "Event reminder",
				Message:  fmt.Sprintf("%q starts %s.", event.Title, event.StartsAt.UTC().Format("Mon Jan 2 15:04 MST")),
				Link:     fmt.Sprintf("/events/%d", event.ID),
			})
			sent++
		}
	}
	return sent, fmt.Sprintf("Sent %d reminders for %d events", sent, len(events)), nil
}

// CompletePastEvents marks scheduled events that have ended as completed
func (m *CronManager) CompletePastEvents(ctx context.Context) (int, error) {
	result := m.db.WithContext(ctx).Model(&model.Event{}).
		Where("status = ? AND ends_at < ?", model.EventStatusScheduled, m.now()).
		Update("status", model.EventStatusCompleted)
	return int(result.RowsAffected), result.Error
}

// DailyCleanup removes expired security tokens and aged operational rows and
// completes events that have ended.
func (m *CronManager) DailyCleanup(ctx context.Context) (int, string, error) {
	now := m.now()
	totalCleaned := 0

	steps := []struct {
		what  string
		model interface{}
		where string
		args  []interface{}
	}{
		// 1. Password reset tokens, used or expired for a day
		{"password resets", &model.PasswordResetToken{}, "expires_at < ? OR used_at IS NOT NULL", []interface{}{now.Add(-24 * time.Hour)}},
		// 2. Cron job logs (keep 30 days)
		{"cron logs", &model.CronJobLog{}, "created_at < ?", []interface{}{now.AddDate(0, 0, -30)}},
		// 3. User activity (keep 180 days)
		{"user activities", &model.UserActivity{}, "created_at < ?", []interface{}{now.AddDate(0, 0, -180)}},
		// 4. Processed outbox events (keep 7 days)
		{"outbox events", &model.OutboxEvent{}, "processed = ? AND created_at < ?", []interface{}{true, now.AddDate(0, 0, -7)}},
		// 5. Resolved dead letters (keep 30 days)
		{"dead letters", &model.OutboxDeadLetter{}, "resolved = ? AND created_at < ?", []interface{}{true, now.AddDate(0, 0, -30)}},
	}

	// Blacklisted tokens can no longer validate once expired
	if n, err := auth.NewBlacklistService(m.db).CleanupExpiredTokens(ctx, now); err != nil {
		log.Printf("[CRON] Failed to clean expired tokens: %v", err)
	} else {
		if n > 0 {
			log.Printf("[CRON] Cleaned %d expired tokens", n)
		}
		totalCleaned += int(n)
	}

	for _, step := range steps {
		result := m.db.WithContext(ctx).Where(step.where, step.args...).Delete(step.model)
		if result.Error != nil {
			log.Printf("[CRON] Failed to clean %s: %v", step.what, result.Error)
			continue
		}
		if result.RowsAffected > 0 {
			log.Printf("[CRON] Cleaned %d %s", result.RowsAffected, step.what)
		}
		totalCleaned += int(result.RowsAffected)
	}

	// 6. Read notifications (keep 90 days)
	if n, err := m.deps.Notifications.CleanupOldNotifications(ctx, 90*24*time.Hour); err != nil {
		log.Printf("[CRON] Failed to clean notifications: %v", err)
	} else {
		totalCleaned += int(n)
	}

	completed, err := m.CompletePastEvents(ctx)
	if err != nil {
		log.Printf("[CRON] Failed to complete past events: %v", err)
	}

	return totalCleaned + completed,
		fmt.Sprintf("Cleaned up %d records, completed %d events", totalCleaned, completed), nil
}
