package stream

import (
	"fmt"
	"strconv"
	"time"

	"bybitfeed/internal/bybit/snapshot"
	"bybitfeed/pkg/bybit"
)

// Wire numbers arrive as strings; everything is converted to float64 here,
// at the decode boundary, so the handlers and the snapshot never see raw
// payload fields.

func tradeFromEntry(e bybit.TradeEntry) (snapshot.Trade, error) {
	price, err := strconv.ParseFloat(e.Price, 64)
	if err != nil {
		return snapshot.Trade{}, fmt.Errorf("trade price %q: %w", e.Price, err)
	}
	size, err := strconv.ParseFloat(e.Size, 64)
	if err != nil {
		return snapshot.Trade{}, fmt.Errorf("trade size %q: %w", e.Size, err)
	}
	return snapshot.Trade{
		Price: price,
		Size:  size,
		Side:  e.Side,
		Time:  time.UnixMilli(e.Timestamp),
	}, nil
}

func levelsFromWire(raw [][2]string) ([][2]float64, error) {
	out := make([][2]float64, 0, len(raw))
	for _, lvl := range raw {
		price, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", lvl[0], err)
		}
		size, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			return nil, fmt.Errorf("level size %q: %w", lvl[1], err)
		}
		out = append(out, [2]float64{price, size})
	}
	return out, nil
}

func liquidationFromData(d bybit.LiquidationData) (snapshot.Liquidation, error) {
	price, err := strconv.ParseFloat(d.Price, 64)
	if err != nil {
		return snapshot.Liquidation{}, fmt.Errorf("liquidation price %q: %w", d.Price, err)
	}
	size, err := strconv.ParseFloat(d.Size, 64)
	if err != nil {
		return snapshot.Liquidation{}, fmt.Errorf("liquidation size %q: %w", d.Size, err)
	}
	return snapshot.Liquidation{
		Price: price,
		Size:  size,
		Side:  d.Side,
		Time:  time.UnixMilli(d.UpdatedTime),
	}, nil
}

// tickerUpdateFromData converts only the fields present in the frame; an
// unparsable present field is treated as absent.
func tickerUpdateFromData(d bybit.TickerData) snapshot.TickerUpdate {
	var u snapshot.TickerUpdate
	u.MarkPrice = optFloat(d.MarkPrice)
	u.IndexPrice = optFloat(d.IndexPrice)
	u.OpenInterest = optFloat(d.OpenInterest)
	u.FundingRate = optFloat(d.FundingRate)
	u.Volume24h = optFloat(d.Volume24h)
	u.Turnover24h = optFloat(d.Turnover24h)
	u.High24h = optFloat(d.HighPrice24h)
	u.Low24h = optFloat(d.LowPrice24h)
	if ms, err := strconv.ParseInt(d.NextFundingTime, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		u.NextFundingTime = &t
	}
	return u
}

func optFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// CandleFromEntry converts one wire kline to a snapshot candle. Used for
// both live frames and REST backfill rows, so both go through the same
// upsert path.
func CandleFromEntry(e bybit.KlineEntry) (snapshot.Candle, error) {
	open, err := strconv.ParseFloat(e.Open, 64)
	if err != nil {
		return snapshot.Candle{}, fmt.Errorf("kline open %q: %w", e.Open, err)
	}
	high, err := strconv.ParseFloat(e.High, 64)
	if err != nil {
		return snapshot.Candle{}, fmt.Errorf("kline high %q: %w", e.High, err)
	}
	low, err := strconv.ParseFloat(e.Low, 64)
	if err != nil {
		return snapshot.Candle{}, fmt.Errorf("kline low %q: %w", e.Low, err)
	}
	closeVal, err := strconv.ParseFloat(e.Close, 64)
	if err != nil {
		return snapshot.Candle{}, fmt.Errorf("kline close %q: %w", e.Close, err)
	}
	volume, err := strconv.ParseFloat(e.Volume, 64)
	if err != nil {
		return snapshot.Candle{}, fmt.Errorf("kline volume %q: %w", e.Volume, err)
	}
	turnover, err := strconv.ParseFloat(e.Turnover, 64)
	if err != nil {
		return snapshot.Candle{}, fmt.Errorf("kline turnover %q: %w", e.Turnover, err)
	}

	return snapshot.Candle{
		Start:     time.UnixMilli(e.Start),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeVal,
		Volume:    volume,
		Turnover:  turnover,
		Confirmed: e.Confirm,
	}, nil
}
