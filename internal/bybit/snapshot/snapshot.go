package snapshot

import (
	"sync"
	"time"
)

// Default buffer capacities. Oldest entries are evicted first once a buffer
// is full.
const (
	DefaultTradeCap       = 100
	DefaultLiquidationCap = 100
	DefaultCandleCap      = 500
)

// depthLevels is how many book levels per side feed the depth sums.
const depthLevels = 20

// liquidationWindow is the rolling window for per-side liquidation volume.
const liquidationWindow = time.Hour

// Trade is one normalized trade print.
type Trade struct {
	Price float64
	Size  float64
	Side  string // "Buy" or "Sell" (taker side)
	Time  time.Time
}

// Liquidation is one normalized forced-closure event.
type Liquidation struct {
	Price float64
	Size  float64
	Side  string
	Time  time.Time
}

// Candle is one OHLCV bar. Confirmed is false while the bar is still forming.
type Candle struct {
	Start     time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Turnover  float64
	Confirmed bool
}

// TickerUpdate carries the fields of one 24h ticker/funding frame. Nil
// pointers mean the field was absent from the frame and must not overwrite
// the stored value.
type TickerUpdate struct {
	MarkPrice       *float64
	IndexPrice      *float64
	OpenInterest    *float64
	FundingRate     *float64
	NextFundingTime *time.Time
	Volume24h       *float64
	Turnover24h     *float64
	High24h         *float64
	Low24h          *float64
}

// Market is the latest known state for one symbol. Consumers receive value
// copies; the live record is owned by the ingestion goroutine.
type Market struct {
	Symbol string

	LastPrice     float64
	LastTradeTime time.Time

	BestBid float64
	BestAsk float64
	Spread  float64

	Volume24h   float64
	Turnover24h float64
	High24h     float64
	Low24h      float64

	FundingRate     float64
	NextFundingTime time.Time
	MarkPrice       float64
	IndexPrice      float64
	OpenInterest    float64

	// Session VWAP accumulators, reset only on explicit request.
	VWAPNumerator   float64 // Σ price·size
	VWAPDenominator float64 // Σ size
	SessionVWAP     float64 // 0 until the first non-zero-size trade

	// Summed size across the top book levels per side, and the signed
	// imbalance (bid−ask)/(bid+ask) in [-1, 1].
	BidDepth       float64
	AskDepth       float64
	DepthImbalance float64

	RecentTrades []Trade
	Liquidations []Liquidation

	// Rolling 1h liquidation volume grouped by liquidated side.
	LiqBuyVolume1h  float64
	LiqSellVolume1h float64
}

// Store owns the mutable Market record plus the per-interval candle history.
// All mutation happens on the ingestion goroutine; the mutex exists so that
// the copy-on-read accessors are safe from any goroutine.
type Store struct {
	mu      sync.RWMutex
	market  Market
	candles map[string][]Candle

	tradeCap  int
	liqCap    int
	candleCap int
}

// NewStore creates a store for one symbol. Zero or negative capacities fall
// back to the defaults.
func NewStore(symbol string, tradeCap, liqCap, candleCap int) *Store {
	if tradeCap <= 0 {
		tradeCap = DefaultTradeCap
	}
	if liqCap <= 0 {
		liqCap = DefaultLiquidationCap
	}
	if candleCap <= 0 {
		candleCap = DefaultCandleCap
	}
	return &Store{
		market:    Market{Symbol: symbol},
		candles:   make(map[string][]Candle),
		tradeCap:  tradeCap,
		liqCap:    liqCap,
		candleCap: candleCap,
	}
}

// ApplyTrade folds one trade print into the market record: last price/time,
// VWAP accumulators, and the bounded recent-trades buffer. A zero-size trade
// still moves last price/time but leaves the VWAP ratio untouched.
func (s *Store) ApplyTrade(t Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.market
	m.LastPrice = t.Price
	m.LastTradeTime = t.Time

	m.VWAPNumerator += t.Price * t.Size
	m.VWAPDenominator += t.Size
	if m.VWAPDenominator > 0 {
		m.SessionVWAP = m.VWAPNumerator / m.VWAPDenominator
	}

	m.RecentTrades = append(m.RecentTrades, t)
	if n := len(m.RecentTrades) - s.tradeCap; n > 0 {
		m.RecentTrades = m.RecentTrades[n:]
	}
}

// ApplyOrderbook replaces best bid/ask, spread, depth and imbalance from a
// full top-N book. Levels are [price, size] pairs, best first. A one-sided
// or empty book leaves all previous values in place rather than zeroing them.
func (s *Store) ApplyOrderbook(bids, asks [][2]float64) {
	if len(bids) == 0 || len(asks) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.market
	m.BestBid = bids[0][0]
	m.BestAsk = asks[0][0]
	m.Spread = m.BestAsk - m.BestBid

	m.BidDepth = sumDepth(bids)
	m.AskDepth = sumDepth(asks)
	if total := m.BidDepth + m.AskDepth; total > 0 {
		m.DepthImbalance = (m.BidDepth - m.AskDepth) / total
	} else {
		m.DepthImbalance = 0
	}
}

func sumDepth(levels [][2]float64) float64 {
	n := len(levels)
	if n > depthLevels {
		n = depthLevels
	}
	var total float64
	for _, lvl := range levels[:n] {
		total += lvl[1]
	}
	return total
}

// ApplyTicker overwrites every field present in the update. The exchange
// sends full state, so last-write-wins is correct here. Last trade
// price/time belong to the trade channel and are never touched from here.
func (s *Store) ApplyTicker(u TickerUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.market
	if u.MarkPrice != nil {
		m.MarkPrice = *u.MarkPrice
	}
	if u.IndexPrice != nil {
		m.IndexPrice = *u.IndexPrice
	}
	if u.OpenInterest != nil {
		m.OpenInterest = *u.OpenInterest
	}
	if u.FundingRate != nil {
		m.FundingRate = *u.FundingRate
	}
	if u.NextFundingTime != nil {
		m.NextFundingTime = *u.NextFundingTime
	}
	if u.Volume24h != nil {
		m.Volume24h = *u.Volume24h
	}
	if u.Turnover24h != nil {
		m.Turnover24h = *u.Turnover24h
	}
	if u.High24h != nil {
		m.High24h = *u.High24h
	}
	if u.Low24h != nil {
		m.Low24h = *u.Low24h
	}
}

// ApplyLiquidation appends one event to the bounded buffer and recomputes
// both rolling 1h per-side volume sums relative to now.
func (s *Store) ApplyLiquidation(l Liquidation, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.market
	m.Liquidations = append(m.Liquidations, l)
	if n := len(m.Liquidations) - s.liqCap; n > 0 {
		m.Liquidations = m.Liquidations[n:]
	}

	cutoff := now.Add(-liquidationWindow)
	var buy, sell float64
	for _, ev := range m.Liquidations {
		if ev.Time.Before(cutoff) {
			continue
		}
		switch ev.Side {
		case "Buy":
			buy += ev.Size
		case "Sell":
			sell += ev.Size
		}
	}
	m.LiqBuyVolume1h = buy
	m.LiqSellVolume1h = sell
}

// ApplyKlines upserts one or more candles into an interval's bounded list.
// A candle whose start equals the stored last entry's start replaces that
// entry in place; otherwise it is appended. At most one entry exists per
// start timestamp and only the newest entry is ever rewritten.
func (s *Store) ApplyKlines(interval string, candles []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.candles[interval]
	for _, c := range candles {
		if n := len(list); n > 0 && list[n-1].Start.Equal(c.Start) {
			list[n-1] = c
			continue
		}
		list = append(list, c)
	}
	if n := len(list) - s.candleCap; n > 0 {
		list = list[n:]
	}
	s.candles[interval] = list
}

// ResetVWAP zeroes the session accumulators and the derived ratio. Meant for
// session boundaries; a reconnect does not reset anything.
func (s *Store) ResetVWAP() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market.VWAPNumerator = 0
	s.market.VWAPDenominator = 0
	s.market.SessionVWAP = 0
}

// Snapshot returns a point-in-time copy of the market record. The contained
// slices are copied, so the result is safe to retain on any goroutine.
func (s *Store) Snapshot() Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.market
	m.RecentTrades = append([]Trade(nil), s.market.RecentTrades...)
	m.Liquidations = append([]Liquidation(nil), s.market.Liquidations...)
	return m
}

// Klines returns a copy of the bounded candle list for one interval, oldest
// first. The result is nil for an interval that has seen no candles.
func (s *Store) Klines(interval string) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.candles[interval]
	if !ok {
		return nil
	}
	cp := make([]Candle, len(list))
	copy(cp, list)
	return cp
}
