package models

import "gorm.io/gorm"

// Currency is immutable reference data for a single coin or fiat currency.
type Currency struct {
	gorm.Model
	Short string `gorm:"uniqueIndex;size:16;not null"`
	Name  string
}
