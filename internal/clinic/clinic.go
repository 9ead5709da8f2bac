// Package clinic assembles the scheduling and ledger services over a shared
// Postgres handle.
package clinic

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/MrJamesThe3rd/clinicx/internal/appointment"
	apptStore "github.com/MrJamesThe3rd/clinicx/internal/appointment/store"
	"github.com/MrJamesThe3rd/clinicx/internal/config"
	"github.com/MrJamesThe3rd/clinicx/internal/reference"
	"github.com/MrJamesThe3rd/clinicx/internal/transaction"
	txStore "github.com/MrJamesThe3rd/clinicx/internal/transaction/store"
)

type Services struct {
	Appointments *appointment.Service
	Ledger       *transaction.Service
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Services {
	refs := reference.NewStore(db)

	return &Services{
		Appointments: appointment.NewService(apptStore.New(db), refs,
			appointment.WithLogger(logger),
			appointment.WithDefaultDuration(cfg.Scheduling.DefaultDurationMinutes),
		),
		Ledger: transaction.NewService(txStore.New(db), refs,
			transaction.WithLogger(logger),
			transaction.WithCurrency(cfg.Ledger.Currency),
			transaction.WithInvoiceAttempts(cfg.Ledger.InvoiceAttempts),
		),
	}
}

// NewLogger returns a text logger at the configured level. Unknown levels
// fall back to info.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("app", cfg.App.Name)
}
