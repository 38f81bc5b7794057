package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded Postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted billing model.
func Models() []any {
	return []any{
		&studentdomain.Student{},
		&feedomain.FeeStructure{},
		&feedomain.FeeOverride{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
		&ledgerdomain.FinanceTransaction{},
		&paymentdomain.FeePayment{},
		&paymentdomain.PaymentPlan{},
		&paymentdomain.PlanInstallment{},
		&mobilemoneydomain.Transaction{},
		&mobilemoneydomain.CallbackEvent{},
	}
}

// AutoMigrate builds the schema from the models. It serves SQLite and MySQL,
// which the embedded migrations do not target.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
