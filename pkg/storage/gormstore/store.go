package gormstore

import (
	"context"
	"fmt"
	"time"

	"chartfeed/internal/market"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 500

// ChartStore persists chart series through any gorm dialect.
type ChartStore struct {
	DB *gorm.DB
}

// New wraps db and migrates the candle table.
func New(db *gorm.DB) (*ChartStore, error) {
	s := &ChartStore{DB: db}
	if err := s.AutoMigrateCandleRecord(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChartStore) AutoMigrateCandleRecord() error {
	if err := s.DB.AutoMigrate(&CandleRecord{}); err != nil {
		return fmt.Errorf("auto-migrate candle table: %w", err)
	}
	return nil
}

// Load returns the stored series of pair at freq, oldest first.
func (s *ChartStore) Load(ctx context.Context, pair string, freq time.Duration) (market.Series, error) {
	var records []CandleRecord
	err := s.DB.WithContext(ctx).
		Where("pair = ? AND freq_secs = ?", pair, int64(freq/time.Second)).
		Order("open_time ASC").
		Find(&records).Error
	if err != nil {
		return market.Series{}, err
	}
	if len(records) == 0 {
		return market.Series{}, market.ErrSeriesNotFound
	}

	out := market.Series{Pair: pair, Freq: freq, Candles: make([]market.Candle, len(records))}
	for i, r := range records {
		out.Candles[i] = r.toCandle()
	}
	return out, nil
}

// Save upserts every candle of series, newer values winning, and drops
// stored rows outside the series span.
func (s *ChartStore) Save(ctx context.Context, series market.Series) error {
	if series.Empty() {
		return nil
	}
	records := make([]CandleRecord, len(series.Candles))
	for i, c := range series.Candles {
		records[i] = ToCandleRecord(series.Pair, series.Freq, c)
	}
	freqSecs := int64(series.Freq / time.Second)
	first := series.First().Time.Unix()
	last := series.Last().Time.Unix()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "pair"},
				{Name: "freq_secs"},
				{Name: "open_time"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume", "weighted_average", "recorded_at",
			}),
		}).CreateInBatches(records, batchSize).Error
		if err != nil {
			return fmt.Errorf("upsert candles: %w", err)
		}

		err = tx.Where("pair = ? AND freq_secs = ? AND (open_time < ? OR open_time > ?)",
			series.Pair, freqSecs, first, last).
			Delete(&CandleRecord{}).Error
		if err != nil {
			return fmt.Errorf("trim candles: %w", err)
		}
		return nil
	})
}

func (s *ChartStore) IsHealthy(ctx context.Context) bool {
	db, err := s.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (s *ChartStore) Close() error {
	db, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
