package app

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/db/pg"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/repositories/memory"
)

// Repositories is the storage the engines run on.
type Repositories struct {
	Shipments        repositories.ShipmentRepo
	Carriers         repositories.CarrierRepo
	AssignmentRules  repositories.AssignmentRuleRepo
	AutoAssignConfig repositories.AutoAssignConfigRepo
	AutomationRules  repositories.AutomationRuleRepo
	Tenders          repositories.TenderRepo
	Waterfalls       repositories.WaterfallRepo
	WorkItems        repositories.WorkItemRepo
}

func memoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Shipments:        store.Shipments(),
		Carriers:         store.Carriers(),
		AssignmentRules:  store.AssignmentRules(),
		AutoAssignConfig: store.AutoAssignConfig(),
		AutomationRules:  store.AutomationRules(),
		Tenders:          store.Tenders(),
		Waterfalls:       store.Waterfalls(),
		WorkItems:        store.WorkItems(),
	}
}

func postgresRepositories(db database.DB, logger ectologger.Logger) Repositories {
	return Repositories{
		Shipments:        repositories.NewShipmentRepository(db, logger),
		Carriers:         repositories.NewCarrierRepository(db, logger),
		AssignmentRules:  repositories.NewAssignmentRuleRepository(db, logger),
		AutoAssignConfig: repositories.NewAutoAssignConfigRepository(db, logger),
		AutomationRules:  repositories.NewAutomationRuleRepository(db, logger),
		Tenders:          repositories.NewTenderRepository(db, logger),
		Waterfalls:       repositories.NewWaterfallRepository(db, logger),
		WorkItems:        repositories.NewWorkItemRepository(db, logger),
	}
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	return database.Connect(ctx, database.Config{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
}

// Migrate applies the embedded schema migrations.
func Migrate(db database.DB, cfg *config.Config, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("migrations need a postgres connection")
	}
	service := database.NewMigrationService(logger, pg.Migrations, database.MigrationConfig{
		Version: uint(cfg.DatabaseMigrationVersion),
		Force:   cfg.DatabaseMigrationForce,
	})
	return service.Migrate(instance.DB.DB, cfg.DatabaseName)
}

// MigrateDatabase connects to postgres, applies migrations and disconnects.
func MigrateDatabase(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	if cfg.UsesMemoryStorage() {
		return fmt.Errorf("nothing to migrate with %s storage", cfg.StorageDriver)
	}
	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return Migrate(db, cfg, logger)
}
