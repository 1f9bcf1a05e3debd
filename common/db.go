package common

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDb opens postgres when DATABASE_URL is set and the sqlite file otherwise.
func ConnectDb(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	}

	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("error opening postgres db: %w", err)
		}
		log.Info().Msg("opened postgres db")
		return db, nil
	}

	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("neither DATABASE_URL nor SQLITE_DB is set")
	}

	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite db: %w", err)
	}
	log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite db")
	return db, nil
}
