package database

import (
	"errors"
	"time"

	"github.com/propdeck/backend/internal/interactions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeHistoryComments = "2026-08-12_normalize_history_comments"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeHistoryComments, apply: normalizeHistoryComments},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Change detection compares comments as plain strings, so history rows written
// before comment normalization must not carry NULL.
func normalizeHistoryComments(db *gorm.DB) error {
	return db.Model(&interactions.HistoryEntry{}).
		Where("comment IS NULL").
		Update("comment", "").Error
}
