package bybit

import "encoding/json"

// Envelope is the outer shape shared by every frame on the V5 public stream.
// Control frames (pong, subscription acks) carry Op; data frames carry Topic
// and a channel-specific Data payload, which is left raw here and decoded
// once the topic is known.
type Envelope struct {
	Op      string          `json:"op"`      // set on control frames, e.g. "pong", "subscribe"
	Success *bool           `json:"success"` // subscription ack result (nil on data frames)
	RetMsg  string          `json:"ret_msg"` // human-readable message on control frames
	ConnID  string          `json:"conn_id"`
	Topic   string          `json:"topic"` // e.g. "kline.1.BTCUSDT" (empty on control frames)
	Type    string          `json:"type"`  // "snapshot" or "delta"
	Ts      int64           `json:"ts"`    // server timestamp (ms) when the message was generated
	Data    json.RawMessage `json:"data"`  // delay decoding until the topic is routed
}

// SubscribeRequest is the one-shot subscription issued after every (re)connect.
type SubscribeRequest struct {
	Op    string   `json:"op"`
	Args  []string `json:"args"`
	ReqID string   `json:"req_id,omitempty"`
}

// PingRequest is the application-level keep-alive frame.
type PingRequest struct {
	Op string `json:"op"`
}

// TradeEntry is one trade print. Prices and sizes arrive as strings.
type TradeEntry struct {
	Timestamp int64  `json:"T"` // trade time (ms)
	Symbol    string `json:"s"`
	Side      string `json:"S"` // "Buy" or "Sell" (taker side)
	Size      string `json:"v"`
	Price     string `json:"p"`
	TradeID   string `json:"i"`
}

// OrderbookData is a full top-N replacement of both book sides.
// Each level is a ["price", "size"] pair.
type OrderbookData struct {
	Symbol   string      `json:"s"`
	Bids     [][2]string `json:"b"` // best bid first
	Asks     [][2]string `json:"a"` // best ask first
	UpdateID int64       `json:"u"`
	Seq      int64       `json:"seq"`
}

// TickerData is the 24h statistics / funding snapshot. Bybit sends full
// state on the first frame and may omit unchanged fields afterwards, so
// every field is a string that is empty when absent.
type TickerData struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	OpenInterest    string `json:"openInterest"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"` // ms timestamp as string
	Volume24h       string `json:"volume24h"`
	Turnover24h     string `json:"turnover24h"`
	HighPrice24h    string `json:"highPrice24h"`
	LowPrice24h     string `json:"lowPrice24h"`
}

// LiquidationData is a single forced-closure event.
type LiquidationData struct {
	UpdatedTime int64  `json:"updatedTime"` // event time (ms)
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // side of the liquidated position's closing order
	Size        string `json:"size"`
	Price       string `json:"price"`
}

// KlineEntry represents a single candlestick received from the WebSocket stream.
type KlineEntry struct {
	Start     int64  `json:"start"`     // start time of the kline (ms since epoch)
	End       int64  `json:"end"`       // end time of the kline (ms since epoch)
	Interval  string `json:"interval"`  // interval of the kline (e.g., "1", "5", "15")
	Open      string `json:"open"`      // opening price
	Close     string `json:"close"`     // closing price
	High      string `json:"high"`      // highest price during the interval
	Low       string `json:"low"`       // lowest price during the interval
	Volume    string `json:"volume"`    // trade volume (number of units traded)
	Turnover  string `json:"turnover"`  // total traded value (usually in USD)
	Confirm   bool   `json:"confirm"`   // whether the kline is finalized
	Timestamp int64  `json:"timestamp"` // time the event was generated (ms since epoch)
}

// RESTResponse represents the standard response envelope of Bybit's V5 REST API.
type RESTResponse struct {
	RetCode int             `json:"retCode"` // 0 means success
	RetMsg  string          `json:"retMsg"`  // human-readable message describing the result or error
	Result  json.RawMessage `json:"result"`  // delay decoding; payload varies per endpoint
	Time    int64           `json:"time"`    // server timestamp (ms since epoch)
}

// KlinesResult is the result payload of GET /v5/market/kline.
// Each row is [start, open, high, low, close, volume, turnover], newest first.
type KlinesResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}
