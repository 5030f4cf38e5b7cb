package models

import "gorm.io/gorm"

// Candle is one OHLCV row of historical price data used by the backtest
// engine.
type Candle struct {
	gorm.Model
	Symbol    string `gorm:"uniqueIndex:idx_candle;not null"`
	Timeframe string `gorm:"uniqueIndex:idx_candle;not null"`
	OpenTime  int64  `gorm:"uniqueIndex:idx_candle;not null"` // unix milliseconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
