package config

import (
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dispatch_tracker/internal/logger"
	"dispatch_tracker/internal/models"
)

var (
	// DB is the globally accessible database handle
	DB *gorm.DB
)

// InitDB opens the database named by cfg and migrates the schema. With the
// "pgx" driver the GORM dialector talks through jackc/pgx; "postgres" routes
// the same dialector over lib/pq.
func InitDB(cfg DatabaseConfig, sqlLevel string) error {
	dialector := postgres.Open(cfg.DSN())
	if cfg.Driver == "postgres" {
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: cfg.DSN()})
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.GormLogger(sqlLevel)})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"driver": cfg.Driver,
		"host":   cfg.Host,
		"db":     cfg.DBName,
	}).Info("database ready")

	DB = db
	return nil
}

// Migrate creates or updates every table the application uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.Vehicle{},
		&models.Order{},
		&models.Stop{},
		&models.Trip{},
		&models.TripStop{},
		&models.Position{},
	)
}

// GetDB returns the initialized DB handle
func GetDB() *gorm.DB {
	return DB
}
