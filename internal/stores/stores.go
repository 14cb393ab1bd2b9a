// Package stores selects the repositories for the configured backend.
package stores

import (
	bookingsrepo "consultbook/internal/bookings/repository"
	consultantsrepo "consultbook/internal/consultants/repository"
	remindersrepo "consultbook/internal/reminders/repository"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/config"
	"consultbook/pkg/db"
	mongotx "consultbook/pkg/db/mongo"
	postgrestx "consultbook/pkg/db/postgres"
)

type Stores struct {
	Bookings    bookingsrepo.BookingRepository
	Slots       slotsrepo.SlotStore
	Consultants consultantsrepo.ConsultantRepository
	Reminders   remindersrepo.ReminderRepository
	Tx          db.TransactionManager
}

// New expects the store connection to be open already, see
// config.Config.SetStore.
func New(cfg *config.Config) *Stores {
	if cfg.StoreBackend == config.StorePostgres {
		return &Stores{
			Bookings:    bookingsrepo.NewPostgresBookingRepository(cfg),
			Slots:       slotsrepo.NewPostgresSlotStore(cfg),
			Consultants: consultantsrepo.NewPostgresConsultantRepository(cfg),
			Reminders:   remindersrepo.NewPostgresReminderRepository(cfg),
			Tx:          postgrestx.NewTransactionManager(cfg.Client.Postgres),
		}
	}
	return &Stores{
		Bookings:    bookingsrepo.NewMongoBookingRepository(cfg),
		Slots:       slotsrepo.NewMongoSlotStore(cfg),
		Consultants: consultantsrepo.NewMongoConsultantRepository(cfg),
		Reminders:   remindersrepo.NewMongoReminderRepository(cfg),
		Tx:          mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}
