package database

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"jyurniq/models"
)

func RunMigrations(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Blog{},
		&models.Comment{},
		&models.Payment{},
		&models.BlogView{},
	)
	if err != nil {
		return fmt.Errorf("error running migrations: %w", err)
	}

	// rows written before moderation existed have no status
	if err := db.Model(&models.Blog{}).
		Where("(status IS NULL OR status = '') AND approved = ?", true).
		Update("status", models.StatusApproved).Error; err != nil {
		return fmt.Errorf("error backfilling blog status: %w", err)
	}

	if err := db.Model(&models.User{}).
		Where("role = ?", models.RoleUser).
		Update("role", models.RoleViewer).Error; err != nil {
		return fmt.Errorf("error normalizing legacy roles: %w", err)
	}

	log.Info().Msg("Migrations completed successfully")
	return nil
}

// PromoteAdmins grants the admin role to every existing account whose email is listed.
func PromoteAdmins(db *gorm.DB, emails []string) error {
	var normalized []string
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			normalized = append(normalized, e)
		}
	}
	if len(normalized) == 0 {
		return nil
	}

	res := db.Model(&models.User{}).
		Where("email IN ? AND role <> ?", normalized, models.RoleAdmin).
		Update("role", models.RoleAdmin)
	if res.Error != nil {
		return fmt.Errorf("error promoting admins: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Info().Int64("count", res.RowsAffected).Msg("promoted configured admin accounts")
	}
	return nil
}
