package chartcache

import (
	"fmt"
	"math"
	"sort"
	"time"

	"chartfeed/internal/market"
)

// Normalize returns candles sorted ascending, with duplicate timestamps
// resolved in favour of the later row, laid on a gap-free grid at freq.
// Missing slots carry the preceding row forward. The input is not modified.
func Normalize(pair string, candles []market.Candle, freq time.Duration) ([]market.Candle, error) {
	if freq <= 0 {
		return nil, &DataIntegrityError{Pair: pair, Reason: fmt.Sprintf("invalid frequency %s", freq)}
	}
	if len(candles) == 0 {
		return nil, nil
	}

	rows := make([]market.Candle, len(candles))
	copy(rows, candles)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })

	deduped := rows[:0]
	for _, r := range rows {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(r.Time) {
			deduped[n-1] = r
			continue
		}
		deduped = append(deduped, r)
	}

	if err := validate(pair, deduped, freq); err != nil {
		return nil, err
	}
	return market.Reindex(deduped, freq), nil
}

func validate(pair string, rows []market.Candle, freq time.Duration) error {
	origin := rows[0].Time
	for _, r := range rows {
		if r.Time.IsZero() || r.Time.Unix() <= 0 {
			return &DataIntegrityError{Pair: pair, Reason: "row without timestamp"}
		}
		if off := r.Time.Sub(origin) % freq; off != 0 {
			return &DataIntegrityError{Pair: pair, Reason: fmt.Sprintf("row at %s is off the %s grid", r.Time.UTC().Format(time.RFC3339), freq)}
		}
		for _, v := range []float64{r.Open, r.High, r.Low, r.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &DataIntegrityError{Pair: pair, Reason: fmt.Sprintf("non-finite price at %s", r.Time.UTC().Format(time.RFC3339))}
			}
		}
	}
	return nil
}
