package bybit

import (
	"fmt"
	"time"
)

// WebSocket and REST endpoints for the V5 public linear (USDT perpetual) market.
const (
	MainnetWSURL = "wss://stream.bybit.com/v5/public/linear"
	TestnetWSURL = "wss://stream-testnet.bybit.com/v5/public/linear"

	MainnetRESTURL = "https://api.bybit.com"
	TestnetRESTURL = "https://api-testnet.bybit.com"
)

// Channel names used to build subscription topics (`<channel>.<params>.<symbol>`).
const (
	ChannelTrade       = "publicTrade"
	ChannelOrderbook   = "orderbook"
	ChannelTicker      = "tickers"
	ChannelLiquidation = "liquidation"
	ChannelKline       = "kline"
)

// OrderbookDepth is the level count requested in the orderbook topic.
const OrderbookDepth = 50

// KlineInterval is the interval type used in kline topics and API requests
type KlineInterval string

const (
	Interval1Min    KlineInterval = "1"
	Interval3Min    KlineInterval = "3"
	Interval5Min    KlineInterval = "5"
	Interval15Min   KlineInterval = "15"
	Interval30Min   KlineInterval = "30"
	Interval60Min   KlineInterval = "60"
	Interval120Min  KlineInterval = "120"
	Interval240Min  KlineInterval = "240"
	Interval360Min  KlineInterval = "360"
	Interval720Min  KlineInterval = "720"
	IntervalDaily   KlineInterval = "D"
	IntervalWeekly  KlineInterval = "W"
	IntervalMonthly KlineInterval = "M"
)

// validKlineIntervals maps each interval Bybit accepts on the V5 API to its
// length in minutes.
var validKlineIntervals = map[KlineInterval]int{
	Interval1Min:    1,
	Interval3Min:    3,
	Interval5Min:    5,
	Interval15Min:   15,
	Interval30Min:   30,
	Interval60Min:   60,
	Interval120Min:  120,
	Interval240Min:  240,
	Interval360Min:  360,
	Interval720Min:  720,
	IntervalDaily:   1440,  // 24*60
	IntervalWeekly:  10080, // 7*24*60
	IntervalMonthly: 43200, // 30-day approximation
}

// IsValid checks if the KlineInterval is a valid predefined interval
func (k KlineInterval) IsValid() bool {
	_, ok := validKlineIntervals[k]
	return ok
}

// Duration returns the interval's length. Monthly uses a 30-day approximation.
func (k KlineInterval) Duration() time.Duration {
	return time.Duration(validKlineIntervals[k]) * time.Minute
}

// ParseKlineInterval parses a string into a valid KlineInterval
func ParseKlineInterval(s string) (KlineInterval, error) {
	interval := KlineInterval(s)
	if !interval.IsValid() {
		return "", fmt.Errorf("invalid KlineInterval: %s", s)
	}
	return interval, nil
}

// TradeTopic builds the trade print topic for a symbol, e.g. "publicTrade.BTCUSDT".
func TradeTopic(symbol string) string {
	return fmt.Sprintf("%s.%s", ChannelTrade, symbol)
}

// OrderbookTopic builds the depth topic, e.g. "orderbook.50.BTCUSDT".
func OrderbookTopic(symbol string) string {
	return fmt.Sprintf("%s.%d.%s", ChannelOrderbook, OrderbookDepth, symbol)
}

// TickerTopic builds the 24h ticker/funding topic, e.g. "tickers.BTCUSDT".
func TickerTopic(symbol string) string {
	return fmt.Sprintf("%s.%s", ChannelTicker, symbol)
}

// LiquidationTopic builds the liquidation topic, e.g. "liquidation.BTCUSDT".
func LiquidationTopic(symbol string) string {
	return fmt.Sprintf("%s.%s", ChannelLiquidation, symbol)
}

// KlineTopic builds the candle topic, e.g. "kline.5.BTCUSDT".
func KlineTopic(interval KlineInterval, symbol string) string {
	return fmt.Sprintf("%s.%s.%s", ChannelKline, interval, symbol)
}
