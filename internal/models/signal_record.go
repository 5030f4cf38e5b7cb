package models

import "gorm.io/gorm"

// SignalRecord is a raw signal row as written by one of the signal
// producers. Rows may carry neutral signal types (WAIT/HOLD); the adapter
// layer is responsible for filtering those out before anything downstream
// sees them.
type SignalRecord struct {
	gorm.Model
	Source     string `gorm:"index;not null"`
	Symbol     string `gorm:"index;not null"`
	Timeframe  string `gorm:"index"`
	SignalType string `gorm:"not null"` // BUY, SELL, LONG, SHORT, WAIT, HOLD
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Leverage   int
	Confidence float64
	Payload    string // opaque producer payload kept for audit
}
