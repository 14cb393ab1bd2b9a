package postgres

import (
	"context"
	"fmt"
	"strings"

	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"gorm.io/gorm"
)

// Models are the tables the services read or write.
var Models = []any{
	&model.Consultant{},
	&model.Slot{},
	&model.Booking{},
	&model.Reminder{},
}

// Statements run after AutoMigrate. Each is idempotent.
func Statements() []string {
	active := make([]string, len(model.ActiveBookingStatuses))
	for i, s := range model.ActiveBookingStatuses {
		active[i] = "'" + string(s) + "'"
	}

	return []string{
		// At most one active booking per slot. A violating insert maps to ErrSlotTaken.
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS bookings_active_slot ON bookings (slot_id) WHERE status IN (%s)`,
			strings.Join(active, ", ")),
		`CREATE UNIQUE INDEX IF NOT EXISTS slots_consultant_start ON slots (consultant_id, date, start_time)`,
		`CREATE INDEX IF NOT EXISTS bookings_customer_created ON bookings (customer_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS reminders_status_scheduled ON reminders (status, scheduled_at)`,
	}
}

func RunMigration(ctx context.Context, db *gorm.DB, log *logger.Logger) error {
	log.Info("Running Postgres migrations", "tables", len(Models))

	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	for _, stmt := range Statements() {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	log.Info("All Postgres migrations applied")
	return nil
}
