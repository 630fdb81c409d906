package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bybitfeed/internal/bybit/snapshot"
	"bybitfeed/pkg/bybit"

	"go.uber.org/zap"
)

// Callbacks are the consumer-registered functions. Each fires once per
// processed inbound frame, on the ingestion goroutine, in wire arrival
// order. Nil entries are simply skipped.
type Callbacks struct {
	OnTrade       func(snapshot.Market)
	OnOrderbook   func(snapshot.Market)
	OnTicker      func(snapshot.Market)
	OnLiquidation func(snapshot.Liquidation, snapshot.Market)
	OnKline       func(interval string, candles []snapshot.Candle)
}

// Router classifies inbound frames as control or data and dispatches data
// frames to the handler matching the frame's topic. A frame that fails to
// parse is logged and skipped; a panicking handler is recovered here so the
// cost of a handler bug is one lost update, never a stalled feed.
type Router struct {
	store  *snapshot.Store
	cb     Callbacks
	logger *zap.Logger
	now    func() time.Time
}

func NewRouter(store *snapshot.Store, cb Callbacks, logger *zap.Logger) *Router {
	return &Router{
		store:  store,
		cb:     cb,
		logger: logger,
		now:    time.Now,
	}
}

// Handle processes one raw frame. It is the message handler registered on
// the WebSocket client.
func (r *Router) Handle(msg []byte) {
	var env bybit.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		r.logger.Warn("failed to parse frame", zap.Error(err))
		return
	}

	// Control frames are handled inline and dropped.
	if env.Op != "" {
		r.handleControl(env)
		return
	}

	// Topic routing by channel-name containment; first match wins.
	switch {
	case strings.Contains(env.Topic, bybit.ChannelTrade):
		r.dispatch(env, r.handleTrade)
	case strings.Contains(env.Topic, bybit.ChannelOrderbook):
		r.dispatch(env, r.handleOrderbook)
	case strings.Contains(env.Topic, bybit.ChannelTicker):
		r.dispatch(env, r.handleTicker)
	case strings.Contains(env.Topic, bybit.ChannelLiquidation):
		r.dispatch(env, r.handleLiquidation)
	case strings.Contains(env.Topic, bybit.ChannelKline):
		r.dispatch(env, r.handleKline)
	default:
		r.logger.Debug("dropping frame with unknown topic", zap.String("topic", env.Topic))
	}
}

func (r *Router) handleControl(env bybit.Envelope) {
	switch env.Op {
	case "pong":
		r.logger.Debug("pong received")
	case "ping":
		// Some gateways answer pings with ret_msg "pong" under op "ping".
		r.logger.Debug("pong received", zap.String("ret_msg", env.RetMsg))
	case "subscribe":
		if env.Success != nil && !*env.Success {
			// Non-fatal: the remaining topics keep flowing.
			r.logger.Warn("subscription rejected", zap.String("ret_msg", env.RetMsg))
			return
		}
		r.logger.Info("subscription acknowledged", zap.String("conn_id", env.ConnID))
	default:
		r.logger.Debug("ignoring control frame", zap.String("op", env.Op))
	}
}

// dispatch runs one handler behind a recover so a handler bug cannot halt
// the receive loop.
func (r *Router) dispatch(env bybit.Envelope, fn func(bybit.Envelope) error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panic",
				zap.String("topic", env.Topic), zap.Any("panic", p))
		}
	}()
	if err := fn(env); err != nil {
		r.logger.Warn("failed to process frame",
			zap.String("topic", env.Topic), zap.Error(err))
	}
}

// handleTrade folds a batch of trade prints into the snapshot in arrival
// order, then fires the trade callback once for the whole frame.
func (r *Router) handleTrade(env bybit.Envelope) error {
	var entries []bybit.TradeEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		return fmt.Errorf("decode trade data: %w", err)
	}

	for _, e := range entries {
		t, err := tradeFromEntry(e)
		if err != nil {
			r.logger.Warn("skipping malformed trade", zap.Error(err))
			continue
		}
		r.store.ApplyTrade(t)
	}

	if r.cb.OnTrade != nil {
		r.cb.OnTrade(r.store.Snapshot())
	}
	return nil
}

// handleOrderbook applies a full top-N book replacement. A one-sided or
// empty message leaves depth and imbalance untouched (the store guards it),
// but the callback still fires for the frame.
func (r *Router) handleOrderbook(env bybit.Envelope) error {
	var book bybit.OrderbookData
	if err := json.Unmarshal(env.Data, &book); err != nil {
		return fmt.Errorf("decode orderbook data: %w", err)
	}

	bids, err := levelsFromWire(book.Bids)
	if err != nil {
		return fmt.Errorf("decode bid levels: %w", err)
	}
	asks, err := levelsFromWire(book.Asks)
	if err != nil {
		return fmt.Errorf("decode ask levels: %w", err)
	}
	r.store.ApplyOrderbook(bids, asks)

	if r.cb.OnOrderbook != nil {
		r.cb.OnOrderbook(r.store.Snapshot())
	}
	return nil
}

// handleTicker overwrites every field present in the frame. Absent fields
// (empty strings in a delta frame) leave the stored values alone.
func (r *Router) handleTicker(env bybit.Envelope) error {
	var data bybit.TickerData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode ticker data: %w", err)
	}

	r.store.ApplyTicker(tickerUpdateFromData(data))

	if r.cb.OnTicker != nil {
		r.cb.OnTicker(r.store.Snapshot())
	}
	return nil
}

// handleLiquidation records one forced-closure event and hands the consumer
// both the raw event and the refreshed snapshot, so large single events and
// aggregate pressure are both observable.
func (r *Router) handleLiquidation(env bybit.Envelope) error {
	var data bybit.LiquidationData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode liquidation data: %w", err)
	}

	l, err := liquidationFromData(data)
	if err != nil {
		return err
	}
	r.store.ApplyLiquidation(l, r.now())

	if r.cb.OnLiquidation != nil {
		r.cb.OnLiquidation(l, r.store.Snapshot())
	}
	return nil
}

// handleKline upserts the frame's candles into the interval parsed from the
// topic suffix and delivers that interval's full bounded list.
func (r *Router) handleKline(env bybit.Envelope) error {
	interval := intervalFromTopic(env.Topic)
	if interval == "" {
		return fmt.Errorf("no interval in kline topic %q", env.Topic)
	}

	var entries []bybit.KlineEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		return fmt.Errorf("decode kline data: %w", err)
	}

	candles := make([]snapshot.Candle, 0, len(entries))
	for _, e := range entries {
		c, err := CandleFromEntry(e)
		if err != nil {
			r.logger.Warn("skipping malformed kline", zap.Error(err))
			continue
		}
		candles = append(candles, c)
	}
	r.store.ApplyKlines(interval, candles)

	if r.cb.OnKline != nil {
		r.cb.OnKline(interval, r.store.Klines(interval))
	}
	return nil
}

// intervalFromTopic parses the interval from a topic like "kline.5.BTCUSDT".
func intervalFromTopic(topic string) string {
	parts := strings.Split(topic, ".")
	if len(parts) == 3 {
		return parts[1]
	}
	return ""
}
