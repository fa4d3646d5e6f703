package storage

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"connect-go/internal/config"
	"connect-go/internal/models"
)

// pendingPairIndexSQL enforces at most one pending request per unordered pair.
// Postgres and SQLite both support partial indexes.
const pendingPairIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_request_pending_pair
ON connection_requests (pair_low, pair_high) WHERE status = 'pending'`

// InitDB initializes the database connection using the provided configuration.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		var dsnParts []string
		dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
		dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
		dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
		dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
		if cfg.Password != "" {
			dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
		}
		dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
		dialector = postgres.Open(strings.Join(dsnParts, " "))
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Open opens a gorm connection on an arbitrary dialector with the service's
// shared settings: the std-logger backed gorm logger and error translation so
// that unique violations surface as gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, cfg config.DatabaseConfig) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  parseLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AutoMigrateTables runs GORM's auto-migration feature for all defined models.
func AutoMigrateTables(db *gorm.DB) error {
	log.Println("Starting schema migration...")
	err := db.AutoMigrate(
		&models.User{},
		&models.UserConnection{},
		&models.UserRequestRef{},
		&models.ConnectionRequest{},
	)
	if err != nil {
		log.Printf("Schema migration failed: %v", err)
		return fmt.Errorf("schema migration failed: %w", err)
	}

	switch db.Dialector.Name() {
	case "postgres", "sqlite":
		if err := db.Exec(pendingPairIndexSQL).Error; err != nil {
			return fmt.Errorf("failed to create pending pair index: %w", err)
		}
	default:
		// MySQL has no partial indexes; uniqueness then rests on the pair lock,
		// so multi-instance deployments must run with LOCK.BACKEND=redis.
		log.Printf("Warning: %s does not support partial indexes, pending-pair uniqueness relies on the pair lock", db.Dialector.Name())
	}

	log.Println("Schema migration finished.")
	return nil
}
