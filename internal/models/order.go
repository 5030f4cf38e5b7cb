package models

import (
	"time"

	"gorm.io/gorm"
)

// Order is the persisted canonical order record. It mirrors orders.OrderRef
// and is updated by the sync loop whenever the normalized exchange state
// differs from what is stored.
type Order struct {
	gorm.Model
	AccountID       string `gorm:"index"`
	Exchange        string `gorm:"not null"`
	MarketType      string
	Symbol          string `gorm:"index;not null"`
	Side            string `gorm:"not null"`
	Type            string
	Status          string `gorm:"index;not null"`
	ClientOrderID   string `gorm:"uniqueIndex"`
	ExchangeOrderID string `gorm:"index"`

	Price             float64
	Quantity          float64
	FilledQuantity    float64
	RemainingQuantity float64
	AvgPrice          float64 // 0 until the first fill
	Commission        float64
	CommissionAsset   string

	FilledAt    *time.Time
	CancelledAt *time.Time
}
