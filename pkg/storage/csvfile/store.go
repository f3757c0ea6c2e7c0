package csvfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chartfeed/internal/market"

	"github.com/gocarina/gocsv"
)

// CandleRow is one line of a chart file.
type CandleRow struct {
	Date            int64   `csv:"date"`
	Open            float64 `csv:"open"`
	High            float64 `csv:"high"`
	Low             float64 `csv:"low"`
	Close           float64 `csv:"close"`
	Volume          float64 `csv:"volume"`
	WeightedAverage float64 `csv:"weightedAverage"`
}

// Store keeps one CSV file per pair and frequency under a directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file holding pair at freq, e.g. BTC_ETH_300.csv.
func (s *Store) Path(pair string, freq time.Duration) string {
	name := fmt.Sprintf("%s_%d.csv", strings.ToUpper(pair), int64(freq/time.Second))
	return filepath.Join(s.dir, name)
}

func (s *Store) Load(_ context.Context, pair string, freq time.Duration) (market.Series, error) {
	f, err := os.Open(s.Path(pair, freq))
	if errors.Is(err, os.ErrNotExist) {
		return market.Series{}, market.ErrSeriesNotFound
	}
	if err != nil {
		return market.Series{}, fmt.Errorf("open chart file: %w", err)
	}
	defer f.Close()

	var rows []*CandleRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return market.Series{}, fmt.Errorf("parse chart file: %w", err)
	}

	out := market.Series{Pair: pair, Freq: freq, Candles: make([]market.Candle, 0, len(rows))}
	for _, r := range rows {
		out.Candles = append(out.Candles, market.Candle{
			Time:            time.Unix(r.Date, 0).UTC(),
			Open:            r.Open,
			High:            r.High,
			Low:             r.Low,
			Close:           r.Close,
			Volume:          r.Volume,
			WeightedAverage: r.WeightedAverage,
		})
	}
	return out, nil
}

// Save rewrites the file of s. The new content replaces the old one atomically.
func (s *Store) Save(_ context.Context, series market.Series) error {
	rows := make([]*CandleRow, 0, len(series.Candles))
	for _, c := range series.Candles {
		rows = append(rows, &CandleRow{
			Date:            c.Time.Unix(),
			Open:            c.Open,
			High:            c.High,
			Low:             c.Low,
			Close:           c.Close,
			Volume:          c.Volume,
			WeightedAverage: c.WeightedAverage,
		})
	}

	path := s.Path(series.Pair, series.Freq)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp chart file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&rows, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write chart file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close chart file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace chart file: %w", err)
	}
	return nil
}
