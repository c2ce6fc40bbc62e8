package models

import "gorm.io/gorm"

// Asset — живая единица оборудования, размещённая в стойке.
// asset_number уникален в диапазоне 100000–999999 и назначается
// автоматически при сохранении, если не задан.
type Asset struct {
	gorm.Model
	Hostname     *string `gorm:"type:varchar(150);uniqueIndex"`
	AssetNumber  int     `gorm:"uniqueIndex"`
	ModelID      uint    `gorm:"index"`
	RackID       uint    `gorm:"index"`
	RackPosition int     // нижний юнит, отсчёт с 1
	Owner        *string `gorm:"type:varchar(150)"`
	Comment      string  `gorm:"type:text"`
}

// AssetCP — теневая копия ассета в рамках change plan.
// Живёт от первого staged-изменения до execute/discard.
type AssetCP struct {
	gorm.Model
	Hostname     *string `gorm:"type:varchar(150);index"`
	AssetNumber  *int    `gorm:"index"` // null до execute, назначается при промоушене
	ModelID      *uint   `gorm:"index"` // nullable: модель могли удалить из live
	RackID       *uint   `gorm:"index"`
	RackPosition int
	Owner        *string `gorm:"type:varchar(150)"`
	Comment      string  `gorm:"type:text"`

	ChangePlanID uint `gorm:"index"`

	// слабая ссылка на живой ассет, который эта тень представляет
	RelatedAssetID *uint `gorm:"index"`
	// проставляется, когда live-ассет уже выведен из эксплуатации
	RelatedDecommissionedAssetID *uint

	IsConflict       bool `gorm:"default:false"`
	IsDecommissioned bool `gorm:"default:false"`

	// ссылки на живой ассет, с которым обнаружена коллизия (по типам)
	ConflictHostnameAssetID    *uint
	ConflictAssetNumberAssetID *uint
	ConflictLocationAssetID    *uint
}
