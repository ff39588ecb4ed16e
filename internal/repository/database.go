// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/datestreak/internal/config"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection for the configured driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	// Configure GORM logger
	var gormLogLevel gormlogger.LogLevel
	switch log.GetLogger().GetLevel() {
	case 0: // debug
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		dialector = postgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		log.Info().Str("path", cfg.SQLite.Path).Msg("Connected to SQLite")
	} else {
		log.Info().
			Str("host", cfg.Postgres.Host).
			Int("port", cfg.Postgres.Port).
			Str("database", cfg.Postgres.Database).
			Msg("Connected to PostgreSQL")
	}

	return &DB{db}, nil
}

// AutoMigrate creates the schema from the models. Attempt, guess and puzzle
// tables exist once per mode and get their unique indexes from explicit DDL,
// since GORM index names would collide between the mode tables.
func (db *DB) AutoMigrate() error {
	if err := db.DB.AutoMigrate(
		&models.ProtectionState{},
		&models.Badge{},
		&models.UserBadge{},
		&models.BadgeAward{},
		&models.StreakSnapshot{},
	); err != nil {
		return err
	}

	for _, mode := range models.Modes {
		b := mode.Binding()
		if err := db.Table(b.PuzzleTable).AutoMigrate(&models.Puzzle{}); err != nil {
			return fmt.Errorf("migrate %s: %w", b.PuzzleTable, err)
		}
		if err := db.Table(b.AttemptTable).AutoMigrate(&models.Attempt{}); err != nil {
			return fmt.Errorf("migrate %s: %w", b.AttemptTable, err)
		}
		if err := db.Table(b.GuessTable).AutoMigrate(&models.Guess{}); err != nil {
			return fmt.Errorf("migrate %s: %w", b.GuessTable, err)
		}

		for _, stmt := range modeIndexes(b) {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("create index on %s: %w", b.AttemptTable, err)
			}
		}
	}
	return nil
}

func modeIndexes(b models.ModeBinding) []string {
	return []string{
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS ux_%[1]s_user_puzzle ON %[1]s (user_id, puzzle_id)", b.AttemptTable),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%[1]s_user_date ON %[1]s (user_id, puzzle_date)", b.AttemptTable),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS ux_%[1]s_owner_date ON %[1]s (owner, date)", b.PuzzleTable),
	}
}

// Migrate applies the embedded SQL migrations to a PostgreSQL database.
func (db *DB) Migrate() error {
	if db.Dialector.Name() != "postgres" {
		return db.AutoMigrate()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
