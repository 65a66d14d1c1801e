// Package warehouse publishes the record store into PostgreSQL for reporting.
package warehouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/matsen/bibnorm/internal/store"
)

// BatchSize bounds the rows per INSERT statement.
const BatchSize = 500

// Warehouse is a migrated Postgres database.
type Warehouse struct {
	db  *gorm.DB
	log *zap.Logger
}

// Result counts the rows written by Publish.
type Result struct {
	Papers       int `json:"papers"`
	Authors      int `json:"authors"`
	Venues       int `json:"venues"`
	PaperAuthors int `json:"paper_authors"`
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Warehouse, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return New(db, log)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, log *zap.Logger) (*Warehouse, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&VenueRow{}, &AuthorRow{}, &PaperRow{}, &PaperAuthorRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Warehouse{db: db, log: log}, nil
}

// Close releases the connection pool.
func (w *Warehouse) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Publish upserts every record of sn in one transaction. Existing rows are
// overwritten; rows absent from sn are left alone. Author links of the
// published papers are replaced wholesale.
func (w *Warehouse) Publish(ctx context.Context, sn store.Snapshot) (Result, error) {
	rows := RowsFromSnapshot(sn)
	upsert := clause.OnConflict{UpdateAll: true}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows.Venues) > 0 {
			if err := tx.Clauses(upsert).CreateInBatches(rows.Venues, BatchSize).Error; err != nil {
				return fmt.Errorf("upserting venues: %w", err)
			}
		}
		if len(rows.Authors) > 0 {
			if err := tx.Clauses(upsert).CreateInBatches(rows.Authors, BatchSize).Error; err != nil {
				return fmt.Errorf("upserting authors: %w", err)
			}
		}
		if len(rows.Papers) == 0 {
			return nil
		}
		if err := tx.Clauses(upsert).CreateInBatches(rows.Papers, BatchSize).Error; err != nil {
			return fmt.Errorf("upserting papers: %w", err)
		}

		ids := make([]string, len(rows.Papers))
		for i, p := range rows.Papers {
			ids[i] = p.ID
		}
		if err := tx.Where("paper_id IN ?", ids).Delete(&PaperAuthorRow{}).Error; err != nil {
			return fmt.Errorf("clearing paper authors: %w", err)
		}
		if len(rows.PaperAuthors) > 0 {
			if err := tx.CreateInBatches(rows.PaperAuthors, BatchSize).Error; err != nil {
				return fmt.Errorf("inserting paper authors: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Papers:       len(rows.Papers),
		Authors:      len(rows.Authors),
		Venues:       len(rows.Venues),
		PaperAuthors: len(rows.PaperAuthors),
	}
	w.log.Info("snapshot published",
		zap.Int("papers", res.Papers),
		zap.Int("authors", res.Authors),
		zap.Int("venues", res.Venues))
	return res, nil
}

// CountPapers returns the number of published papers.
func (w *Warehouse) CountPapers(ctx context.Context) (int64, error) {
	var n int64
	err := w.db.WithContext(ctx).Model(&PaperRow{}).Count(&n).Error
	return n, err
}
