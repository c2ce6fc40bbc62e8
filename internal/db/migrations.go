// internal/db/migrations.go
package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateAssetUniqueIndexes — уникальность hostname живых ассетов на уровне
// хранилища. AutoMigrate создаёт обычный unique-индекс, но с soft-delete он
// ломается: удалённая строка продолжает держать hostname. Глобальный индекс
// снимается и заменяется индексом только по живым строкам (deleted_at IS
// NULL): partial index для postgres/sqlite, функциональный — для mysql.
// asset_number остаётся под глобальным индексом AutoMigrate: номера не
// переиспользуются и после вывода ассета из эксплуатации.
func MigrateAssetUniqueIndexes(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "mysql":
		_ = db.Exec("DROP INDEX `idx_assets_hostname` ON `assets`").Error
		_ = db.Exec("DROP INDEX `ux_assets_hostname_live` ON `assets`").Error
		return db.Exec("CREATE UNIQUE INDEX `ux_assets_hostname_live` ON `assets` ((CASE WHEN `deleted_at` IS NULL THEN `hostname` END))").Error

	case "postgres":
		_ = db.Exec(`DROP INDEX IF EXISTS idx_assets_hostname`).Error
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_assets_hostname_live ON "assets" ("hostname") WHERE "deleted_at" IS NULL`).Error

	case "sqlite":
		_ = db.Exec(`DROP INDEX IF EXISTS idx_assets_hostname`).Error
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_assets_hostname_live ON assets (hostname) WHERE deleted_at IS NULL`).Error

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
