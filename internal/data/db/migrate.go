package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.PromptMember{},
		&types.Asset{},
	); err != nil {
		return err
	}
	return ensureIndexes(db)
}

// ensureIndexes adds constraints AutoMigrate cannot express. The partial unique index
// backs the one-main-variant-per-family invariant; both Postgres and SQLite accept it.
func ensureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_prompt_member_family_main ON prompt_member (family_id) WHERE is_main_variant = true`,
		`CREATE INDEX IF NOT EXISTS ix_asset_role_content_hash ON asset (role, content_hash)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
