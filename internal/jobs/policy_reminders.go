package jobs

import (
	"context"
	"log"
	"time"

	"autoguardian/server/internal/config"
	"autoguardian/server/internal/repository"
)

// StartPolicyReminderJob periodically creates pending reminders for policies
// whose end date falls inside the configured lead window. The insert is
// idempotent, so overlapping runs never duplicate a reminder.
func StartPolicyReminderJob(ctx context.Context, cfg config.Config, store *repository.Store) {
	if !cfg.ReminderJobEnabled {
		return
	}
	interval := cfg.ReminderJobInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.ReminderJobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lead := cfg.ReminderLeadTime
	if lead <= 0 {
		lead = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				created, err := store.CreateDuePolicyReminders(tickCtx, now, lead)
				cancel()
				if err != nil {
					log.Printf("policy reminder job error: %v", err)
					continue
				}
				if created > 0 {
					log.Printf("policy reminder job created %d reminders", created)
				}
			}
		}
	}()
}
