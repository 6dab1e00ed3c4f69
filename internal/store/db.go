// Package store persists completed transaction traces to SQLite. It is a
// write-behind sink for observability; the pipeline never reads from it.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&TransactionRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTransaction inserts a completed transaction trace.
func (d *Database) SaveTransaction(record *TransactionRecord) error {
	if record == nil {
		return errors.New("transaction record is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(record).Error
}

// GetTransaction fetches one stored trace by its transaction id.
func (d *Database) GetTransaction(transactionID string) (*TransactionRecord, error) {
	var record TransactionRecord
	if err := d.gorm.Where("transaction_id = ?", transactionID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListTransactions returns stored traces newest first, with the total count
// for pagination.
func (d *Database) ListTransactions(offset, limit int) ([]TransactionRecord, int64, error) {
	var total int64
	if err := d.gorm.Model(&TransactionRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []TransactionRecord
	err := d.gorm.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountTransactions returns the number of stored traces.
func (d *Database) CountTransactions() (int64, error) {
	var total int64
	err := d.gorm.Model(&TransactionRecord{}).Count(&total).Error
	return total, err
}
