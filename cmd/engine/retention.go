package main

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"tecky-admin/internal/config"
	"tecky-admin/internal/domain"
	"tecky-admin/internal/events"
	"tecky-admin/internal/logger"
	"tecky-admin/internal/scheduler"
	"tecky-admin/internal/store"
)

// retentionTask purges contacts older than retention.contacts_days and
// tells connected dashboards about each removal.
func retentionTask(db *sql.DB, hub *events.Hub, cfg func() config.Config) scheduler.Task {
	return func(ctx context.Context) error {
		days := cfg().Retention.ContactsDays
		if days <= 0 {
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -days)
		gone, err := store.DeleteContactsOlderThan(ctx, db, cutoff)
		if err != nil {
			return err
		}
		for _, ts := range gone {
			hub.Publish(events.MakeEvent("", domain.EventContactDeleted, ts))
		}
		if len(gone) > 0 {
			logger.From(ctx).Info("contacts purged", zap.Int("count", len(gone)), zap.Int("days", days))
		}
		return nil
	}
}
