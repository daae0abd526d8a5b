// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/poisonheart/models"
)

// Database archives finished rounds. Rooms themselves are never persisted.
type Database interface {
	SaveGameRecord(ctx context.Context, record models.GameRecord) error
	// ListGameRecords returns the newest records first. An empty roomID
	// lists every room.
	ListGameRecords(ctx context.Context, roomID string, limit int) ([]models.GameRecord, error)
	Close() error
}

// DefaultListLimit caps ListGameRecords when the caller passes limit <= 0.
const DefaultListLimit = 50

// 错误定义
var (
	ErrUnknownDriver = fmt.Errorf("unknown database driver")
)

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}

// Open connects to the archive selected by driver: "gorm" or "postgres".
// "none" (or empty) returns a nil Database and no error.
func Open(driver, host string, port int, user, password, dbname string) (Database, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "gorm":
		db, err := NewGormPostgreSQL(host, port, user, password, dbname)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := NewPostgreSQL(host, port, user, password, dbname)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func dsn(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}
