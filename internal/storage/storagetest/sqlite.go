// Package storagetest opens throwaway SQLite databases migrated with the
// production schema, for repository and service tests.
package storagetest

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"connect-go/internal/config"
	"connect-go/internal/models"
	"connect-go/internal/storage"
)

// NewTestDB returns a migrated database backed by a file in t.TempDir().
// A single connection keeps SQLite writers from tripping over each other.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	db, err := storage.Open(sqlite.Open(dsn), config.DatabaseConfig{
		LogLevel:     "silent",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user named first with a derived unique email.
func CreateUser(t testing.TB, db *gorm.DB, first string) *models.User {
	t.Helper()
	u := &models.User{
		FirstName:    first,
		LastName:     "Test",
		Email:        first + "@example.com",
		PasswordHash: "x",
		PhotoURL:     models.DefaultPhotoURL,
		About:        models.DefaultAbout,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", first, err)
	}
	return u
}
