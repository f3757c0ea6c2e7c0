package market

import "time"

// Reindex lays sorted, duplicate-free candles onto a regular grid that starts
// at the first candle and steps by step up to the last one. Each slot takes
// the values of the newest candle at or before it.
func Reindex(candles []Candle, step time.Duration) []Candle {
	if len(candles) == 0 || step <= 0 {
		return nil
	}
	first := candles[0].Time
	last := candles[len(candles)-1].Time
	n := int(last.Sub(first)/step) + 1

	out := make([]Candle, 0, n)
	j := 0
	for slot := first; !slot.After(last); slot = slot.Add(step) {
		for j+1 < len(candles) && !candles[j+1].Time.After(slot) {
			j++
		}
		c := candles[j]
		c.Time = slot
		out = append(out, c)
	}
	return out
}

// Resample samples s at the given width, padding from the preceding candle.
// Values are sampled, not aggregated.
func Resample(s Series, width time.Duration) Series {
	if width <= 0 || width == s.Freq || s.Empty() {
		return s.Clone()
	}
	return Series{Pair: s.Pair, Freq: width, Candles: Reindex(s.Candles, width)}
}
