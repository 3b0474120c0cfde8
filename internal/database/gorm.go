package database

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-bot/internal/config"
	"whatsapp-bot/internal/models"
)

// InitGorm opens the session database selected by DB_DRIVER and migrates it.
func InitGorm(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.DBDriver, cfg.DBPath, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", cfg.DBDriver)
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.DBDriver)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a migrated sqlite database at path. Used by tests and tools.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect sqlite")
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "auto-migrate")
	}
	return nil
}

func dialectorFor(driver, path, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(path), nil
	case "postgres":
		if dsn == "" {
			return nil, errors.New("DB_DSN is required for the postgres driver")
		}
		return postgres.Open(dsn), nil
	default:
		return nil, errors.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// CopyTables copies every bot table from src into dst, replacing rows with
// matching keys. It is used to move session state between drivers.
func CopyTables(src, dst *gorm.DB) (int64, error) {
	var total int64

	var files []models.SessionFile
	if err := src.Find(&files).Error; err != nil {
		return total, errors.Wrap(err, "read sessions")
	}
	var settings []models.Setting
	if err := src.Find(&settings).Error; err != nil {
		return total, errors.Wrap(err, "read settings")
	}

	err := dst.Transaction(func(tx *gorm.DB) error {
		for i := range files {
			if err := tx.Save(&files[i]).Error; err != nil {
				return errors.Wrapf(err, "write session file %s", files[i].Filename)
			}
		}
		for i := range settings {
			if err := tx.Save(&settings[i]).Error; err != nil {
				return errors.Wrapf(err, "write setting %s", settings[i].Key)
			}
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	total = int64(len(files) + len(settings))
	return total, nil
}
