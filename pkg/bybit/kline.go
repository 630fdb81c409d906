package bybit

import "strconv"

// ParseKlineRows converts REST kline rows into KlineEntry values in ascending
// start-time order. Rows come back newest-first as
// [start, open, high, low, close, volume, turnover]; invalid rows are
// skipped. The newest row is the candle still forming, so every entry is
// confirmed except the last one.
func ParseKlineRows(interval KlineInterval, raw [][]string) []KlineEntry {
	out := make([]KlineEntry, 0, len(raw))

	for i := len(raw) - 1; i >= 0; i-- {
		row := raw[i]
		if len(row) < 7 {
			continue // skip incomplete row
		}

		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}

		out = append(out, KlineEntry{
			Start:     start,
			Interval:  string(interval),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
			Turnover:  row[6],
			Confirm:   true,
			Timestamp: start,
		})
	}
	if n := len(out); n > 0 {
		out[n-1].Confirm = false
	}
	return out
}
