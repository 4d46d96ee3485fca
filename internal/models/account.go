package models

import "gorm.io/gorm"

// Account holds the credentials for one exchange account. The engine never
// interprets the secret, it is handed through to the exchange gateway.
type Account struct {
	gorm.Model
	Exchange string `gorm:"size:32"`
	ApiKey   string `gorm:"uniqueIndex"`
	Secret   string
	Bots     []Bot
}
