package gormstore

import (
	"time"

	"chartfeed/internal/market"
)

// CandleRecord is one persisted candle of a chart series.
type CandleRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Pair     string `gorm:"type:varchar(32);not null;index:idx_candle_pair;uniqueIndex:idx_pair_freq_time"`
	FreqSecs int64  `gorm:"not null;uniqueIndex:idx_pair_freq_time"`
	OpenTime int64  `gorm:"not null;uniqueIndex:idx_pair_freq_time"`

	Open  float64 `gorm:"not null"`
	High  float64 `gorm:"not null"`
	Low   float64 `gorm:"not null"`
	Close float64 `gorm:"not null"`

	Volume          float64 `gorm:"not null"`
	WeightedAverage float64 `gorm:"not null"`

	RecordedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (CandleRecord) TableName() string {
	return "candle_record"
}

// ToCandleRecord converts a candle of pair at freq into a row for insertion.
func ToCandleRecord(pair string, freq time.Duration, c market.Candle) CandleRecord {
	return CandleRecord{
		Pair:            pair,
		FreqSecs:        int64(freq / time.Second),
		OpenTime:        c.Time.Unix(),
		Open:            c.Open,
		High:            c.High,
		Low:             c.Low,
		Close:           c.Close,
		Volume:          c.Volume,
		WeightedAverage: c.WeightedAverage,
	}
}

func (r CandleRecord) toCandle() market.Candle {
	return market.Candle{
		Time:            time.Unix(r.OpenTime, 0).UTC(),
		Open:            r.Open,
		High:            r.High,
		Low:             r.Low,
		Close:           r.Close,
		Volume:          r.Volume,
		WeightedAverage: r.WeightedAverage,
	}
}
