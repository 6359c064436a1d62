package modstore

import (
	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Opens a migrated store on a private in-memory sqlite database. Intended for tests, including in other packages.
func NewMemoryStore() (*Store, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}
	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	// each connection to ":memory:" is a distinct database
	sqldb.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys=ON;").Error; err != nil {
		return nil, err
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}
