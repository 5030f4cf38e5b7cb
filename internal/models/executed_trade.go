package models

import "gorm.io/gorm"

// ExecutedTrade is the audit record written after an order plan has been
// submitted (or simulated in dry-run mode).
type ExecutedTrade struct {
	gorm.Model
	AccountID     string `gorm:"index;not null"`
	Exchange      string
	Symbol        string `gorm:"index"`
	Side          string
	SignalID      string
	SignalSource  string
	ClientOrderID string
	Price         float64
	Quantity      float64
	QuoteQuantity float64
	Timestamp     int64
	IsSimulation  bool
}
