package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	Username string `gorm:"type:varchar(150);uniqueIndex"`
	Email    string `gorm:"type:varchar(254)"`
	IsAdmin  bool   `gorm:"default:false"`
}
