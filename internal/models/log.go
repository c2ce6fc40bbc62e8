package models

import (
	"time"

	"gorm.io/gorm"
)

// Log — запись аудита. Ссылки слабые: ассет или план могут быть
// удалены позже, запись остаётся.
type Log struct {
	gorm.Model
	Date           time.Time `gorm:"index"`
	Content        string    `gorm:"type:text"`
	Username       string    `gorm:"type:varchar(150);index"`
	RelatedAssetID *uint     `gorm:"index"`
	ChangePlanID   *uint     `gorm:"index"`
}
