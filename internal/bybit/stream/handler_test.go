package stream

import (
	"math"
	"testing"
	"time"

	"bybitfeed/internal/bybit/snapshot"

	"go.uber.org/zap"
)

func newTestRouter(cb Callbacks) (*Router, *snapshot.Store) {
	store := snapshot.NewStore("BTCUSDT", 0, 0, 0)
	return NewRouter(store, cb, zap.NewNop()), store
}

func TestHandleTradeFrame(t *testing.T) {
	var fired int
	r, store := newTestRouter(Callbacks{
		OnTrade: func(m snapshot.Market) { fired++ },
	})

	frame := `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1700000000002,"data":[
		{"T":1700000000000,"s":"BTCUSDT","S":"Buy","v":"2","p":"100","i":"t1"},
		{"T":1700000000001,"s":"BTCUSDT","S":"Sell","v":"1","p":"102","i":"t2"}]}`
	r.Handle([]byte(frame))

	if fired != 1 {
		t.Errorf("trade callback fired %d times, want once per frame", fired)
	}

	m := store.Snapshot()
	if m.LastPrice != 102 {
		t.Errorf("last price = %v, want 102", m.LastPrice)
	}
	want := (100*2 + 102*1) / 3.0
	if math.Abs(m.SessionVWAP-want) > 1e-9 {
		t.Errorf("session VWAP = %v, want %v", m.SessionVWAP, want)
	}
	if len(m.RecentTrades) != 2 {
		t.Errorf("recent trades = %d, want 2", len(m.RecentTrades))
	}
}

func TestHandleOrderbookFrame(t *testing.T) {
	var fired int
	r, store := newTestRouter(Callbacks{
		OnOrderbook: func(m snapshot.Market) { fired++ },
	})

	frame := `{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1,"data":{
		"s":"BTCUSDT","b":[["100","5"],["99","3"]],"a":[["101","4"],["102","2"]],"u":10,"seq":20}}`
	r.Handle([]byte(frame))

	if fired != 1 {
		t.Errorf("orderbook callback fired %d times, want 1", fired)
	}

	m := store.Snapshot()
	if m.BidDepth != 8 || m.AskDepth != 6 {
		t.Errorf("depth = %v/%v, want 8/6", m.BidDepth, m.AskDepth)
	}
	if want := 2.0 / 14.0; math.Abs(m.DepthImbalance-want) > 1e-9 {
		t.Errorf("imbalance = %v, want %v", m.DepthImbalance, want)
	}
	if m.BestBid != 100 || m.BestAsk != 101 || m.Spread != 1 {
		t.Errorf("top of book = %v/%v/%v, want 100/101/1", m.BestBid, m.BestAsk, m.Spread)
	}
}

func TestHandleTickerDelta(t *testing.T) {
	r, store := newTestRouter(Callbacks{})

	full := `{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1,"data":{
		"symbol":"BTCUSDT","lastPrice":"50000","markPrice":"50000.5","indexPrice":"50001",
		"openInterest":"123.5","fundingRate":"0.0001","nextFundingTime":"1700003600000",
		"volume24h":"1000","turnover24h":"50000000","highPrice24h":"51000","lowPrice24h":"49000"}}`
	r.Handle([]byte(full))

	// delta frame carries only the changed field
	delta := `{"topic":"tickers.BTCUSDT","type":"delta","ts":2,"data":{"symbol":"BTCUSDT","markPrice":"50002"}}`
	r.Handle([]byte(delta))

	m := store.Snapshot()
	if m.MarkPrice != 50002 {
		t.Errorf("mark price = %v, want 50002", m.MarkPrice)
	}
	if m.FundingRate != 0.0001 {
		t.Errorf("funding rate = %v, want 0.0001 (absent field must not overwrite)", m.FundingRate)
	}
	if m.Volume24h != 1000 || m.High24h != 51000 || m.Low24h != 49000 {
		t.Errorf("24h stats clobbered by delta: %+v", m)
	}
	if !m.NextFundingTime.Equal(time.UnixMilli(1700003600000)) {
		t.Errorf("next funding time = %v", m.NextFundingTime)
	}
	if m.OpenInterest != 123.5 {
		t.Errorf("open interest = %v, want 123.5", m.OpenInterest)
	}
	// last trade price/time belong to the trade channel; a ticker frame
	// carrying lastPrice must not move them
	if m.LastPrice != 0 || !m.LastTradeTime.IsZero() {
		t.Errorf("ticker frame moved last trade state: price=%v time=%v",
			m.LastPrice, m.LastTradeTime)
	}
}

func TestHandleLiquidationFrame(t *testing.T) {
	var gotEvent snapshot.Liquidation
	var gotMarket snapshot.Market
	var fired int
	r, _ := newTestRouter(Callbacks{
		OnLiquidation: func(l snapshot.Liquidation, m snapshot.Market) {
			gotEvent = l
			gotMarket = m
			fired++
		},
	})
	// pin the clock so the event sits inside the rolling 1h window
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }

	frame := `{"topic":"liquidation.BTCUSDT","type":"snapshot","ts":1,"data":{
		"updatedTime":1700000000000,"symbol":"BTCUSDT","side":"Buy","size":"3","price":"95.5"}}`
	r.Handle([]byte(frame))

	if fired != 1 {
		t.Fatalf("liquidation callback fired %d times, want 1", fired)
	}
	if gotEvent.Price != 95.5 || gotEvent.Size != 3 || gotEvent.Side != "Buy" {
		t.Errorf("raw event = %+v", gotEvent)
	}
	if !gotEvent.Time.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("event time = %v", gotEvent.Time)
	}
	if len(gotMarket.Liquidations) != 1 || gotMarket.LiqBuyVolume1h != 3 {
		t.Errorf("snapshot not refreshed: %+v", gotMarket)
	}
}

func TestHandleKlineUpsert(t *testing.T) {
	var gotInterval string
	var gotCandles []snapshot.Candle
	r, store := newTestRouter(Callbacks{
		OnKline: func(interval string, candles []snapshot.Candle) {
			gotInterval = interval
			gotCandles = candles
		},
	})

	forming := `{"topic":"kline.5.BTCUSDT","type":"snapshot","ts":1,"data":[{
		"start":1000,"end":301000,"interval":"5","open":"1","close":"2","high":"3","low":"0.5",
		"volume":"10","turnover":"20","confirm":false,"timestamp":1100}]}`
	r.Handle([]byte(forming))

	confirmed := `{"topic":"kline.5.BTCUSDT","type":"snapshot","ts":2,"data":[{
		"start":1000,"end":301000,"interval":"5","open":"1","close":"2.5","high":"3","low":"0.5",
		"volume":"12","turnover":"25","confirm":true,"timestamp":1200}]}`
	r.Handle([]byte(confirmed))

	if gotInterval != "5" {
		t.Errorf("interval = %q, want \"5\"", gotInterval)
	}
	if len(gotCandles) != 1 {
		t.Fatalf("callback got %d candles, want 1", len(gotCandles))
	}
	if !gotCandles[0].Confirmed || gotCandles[0].Close != 2.5 {
		t.Errorf("candle not replaced in place: %+v", gotCandles[0])
	}

	list := store.Klines("5")
	if len(list) != 1 {
		t.Errorf("store has %d candles for interval 5, want 1", len(list))
	}
}

func TestHandleControlFrames(t *testing.T) {
	r, store := newTestRouter(Callbacks{
		OnTrade: func(snapshot.Market) { t.Error("control frame reached a data handler") },
	})

	r.Handle([]byte(`{"op":"pong"}`))
	r.Handle([]byte(`{"op":"ping","ret_msg":"pong","conn_id":"c1"}`))
	r.Handle([]byte(`{"op":"subscribe","success":true,"conn_id":"c1","ret_msg":""}`))
	// a rejected topic is non-fatal
	r.Handle([]byte(`{"op":"subscribe","success":false,"ret_msg":"error:handler not found"}`))

	m := store.Snapshot()
	if m.LastPrice != 0 || len(m.RecentTrades) != 0 {
		t.Errorf("control frames mutated the snapshot: %+v", m)
	}
}

func TestHandleMalformedFrames(t *testing.T) {
	r, store := newTestRouter(Callbacks{})

	before := store.Snapshot()

	r.Handle([]byte(`{"topic":`))                                              // truncated JSON
	r.Handle([]byte(`{"topic":"publicTrade.BTCUSDT","data":{"not":"a list"}}`)) // wrong payload shape
	r.Handle([]byte(`{"topic":"orderbook.50.BTCUSDT","data":{"b":[["x","y"]],"a":[["101","4"]]}}`))
	r.Handle([]byte(`{"topic":"kline.BTCUSDT","data":[]}`)) // no interval in topic
	r.Handle([]byte(`{}`))

	after := store.Snapshot()
	if after.LastPrice != before.LastPrice || len(after.RecentTrades) != 0 ||
		after.BidDepth != before.BidDepth {
		t.Errorf("malformed frames changed snapshot state: %+v", after)
	}
}

func TestHandleUnknownTopicDropped(t *testing.T) {
	var fired bool
	r, _ := newTestRouter(Callbacks{
		OnTrade:     func(snapshot.Market) { fired = true },
		OnOrderbook: func(snapshot.Market) { fired = true },
	})

	r.Handle([]byte(`{"topic":"somethingElse.BTCUSDT","data":[]}`))

	if fired {
		t.Error("unknown topic reached a handler")
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	r, store := newTestRouter(Callbacks{
		OnKline: func(string, []snapshot.Candle) { panic("consumer bug") },
	})

	kline := `{"topic":"kline.1.BTCUSDT","data":[{"start":1000,"interval":"1","open":"1",
		"close":"2","high":"3","low":"0.5","volume":"1","turnover":"2","confirm":true}]}`
	r.Handle([]byte(kline)) // must not panic out of Handle

	// the stream keeps flowing: the next frame is processed normally
	trade := `{"topic":"publicTrade.BTCUSDT","data":[{"T":1,"s":"BTCUSDT","S":"Buy","v":"1","p":"100","i":"t"}]}`
	r.Handle([]byte(trade))

	if got := store.Snapshot().LastPrice; got != 100 {
		t.Errorf("frame after panic not processed, last price = %v", got)
	}
}

func TestHandleTradeSkipsMalformedEntry(t *testing.T) {
	r, store := newTestRouter(Callbacks{})

	frame := `{"topic":"publicTrade.BTCUSDT","data":[
		{"T":1,"s":"BTCUSDT","S":"Buy","v":"oops","p":"100","i":"t1"},
		{"T":2,"s":"BTCUSDT","S":"Sell","v":"1","p":"101","i":"t2"}]}`
	r.Handle([]byte(frame))

	m := store.Snapshot()
	if len(m.RecentTrades) != 1 || m.LastPrice != 101 {
		t.Errorf("malformed entry not skipped in isolation: %+v", m)
	}
}

func TestIntervalFromTopic(t *testing.T) {
	cases := []struct {
		topic string
		want  string
	}{
		{"kline.1.BTCUSDT", "1"},
		{"kline.D.ETHUSDT", "D"},
		{"kline.BTCUSDT", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := intervalFromTopic(tc.topic); got != tc.want {
			t.Errorf("intervalFromTopic(%q) = %q, want %q", tc.topic, got, tc.want)
		}
	}
}
