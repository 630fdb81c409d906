package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bybitfeed/config"
	"bybitfeed/internal/bybit/snapshot"
	"bybitfeed/internal/bybit/stream"
	"bybitfeed/pkg/bybit"

	"go.uber.org/zap"
)

// Client is one live market-data feed for a single symbol. Construct with
// New, register callbacks, then Start. Multiple clients compose freely; there
// is no shared state between instances.
type Client struct {
	cfg       *config.Config
	logger    *zap.Logger
	symbol    string
	intervals []bybit.KlineInterval

	store *snapshot.Store
	ws    *bybit.WSClient
	rest  *bybit.RESTClient

	mu      sync.Mutex
	cb      stream.Callbacks
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates the configuration and builds an unstarted client.
func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	symbol := cfg.Feed.Symbol
	if symbol == "" {
		return nil, fmt.Errorf("feed symbol is required")
	}

	intervals := make([]bybit.KlineInterval, 0, len(cfg.Feed.Intervals))
	for _, raw := range cfg.Feed.Intervals {
		interval, err := bybit.ParseKlineInterval(raw)
		if err != nil {
			return nil, fmt.Errorf("feed interval: %w", err)
		}
		intervals = append(intervals, interval)
	}

	args := []string{
		bybit.TradeTopic(symbol),
		bybit.OrderbookTopic(symbol),
		bybit.TickerTopic(symbol),
		bybit.LiquidationTopic(symbol),
	}
	for _, interval := range intervals {
		args = append(args, bybit.KlineTopic(interval, symbol))
	}

	ws := bybit.NewWSClient(cfg.WSURL(), args, logger)
	ws.SetKeepAlive(cfg.Bybit.WS.PingInterval, cfg.Bybit.WS.ReadTimeout)

	return &Client{
		cfg:       cfg,
		logger:    logger,
		symbol:    symbol,
		intervals: intervals,
		store: snapshot.NewStore(symbol,
			cfg.Feed.TradeBuffer, cfg.Feed.LiquidationBuffer, cfg.Feed.CandleBuffer),
		ws:   ws,
		rest: bybit.NewRESTClient(cfg.RESTURL(), cfg.Bybit.REST.Timeout),
	}, nil
}

// Callback registration. All registration must happen before Start; the
// callbacks then run on the ingestion goroutine, once per inbound frame, in
// arrival order, and receive point-in-time copies that are safe to retain.

func (c *Client) OnTrade(fn func(snapshot.Market)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnTrade = fn
}

func (c *Client) OnOrderbook(fn func(snapshot.Market)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnOrderbook = fn
}

func (c *Client) OnTicker(fn func(snapshot.Market)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnTicker = fn
}

func (c *Client) OnLiquidation(fn func(snapshot.Liquidation, snapshot.Market)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnLiquidation = fn
}

func (c *Client) OnKline(fn func(interval string, candles []snapshot.Candle)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnKline = fn
}

// Start seeds candle history over REST (when enabled), then launches the
// connection loop and the staleness watchdog. It returns immediately; the
// feed reconnects on its own until Stop.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("feed already started")
	}
	c.started = true
	cb := c.cb
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// Backfill completes before the stream starts so live candles always
	// land at or after the seeded history.
	if c.cfg.Feed.Backfill {
		c.backfill(ctx)
	}

	router := stream.NewRouter(c.store, cb, c.logger)
	c.ws.SetMessageHandler(router.Handle)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.ws.Run(ctx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.watchStaleness(ctx)
	}()

	c.logger.Info("feed started",
		zap.String("symbol", c.symbol), zap.Int("intervals", len(c.intervals)))
	return nil
}

// Stop shuts the feed down and waits for the ingestion loop to finish its
// current frame. The snapshot stays readable afterwards.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Info("feed stopped", zap.String("symbol", c.symbol))
}

// Snapshot returns a point-in-time copy of the current market state.
func (c *Client) Snapshot() snapshot.Market {
	return c.store.Snapshot()
}

// Klines returns a copy of the bounded candle list for one interval.
func (c *Client) Klines(interval string) []snapshot.Candle {
	return c.store.Klines(interval)
}

// ResetVWAP zeroes the session VWAP accumulators, e.g. at a session boundary.
func (c *Client) ResetVWAP() {
	c.store.ResetVWAP()
}

// backfill warms each interval's candle list from REST. Failures are logged
// and skipped; the live stream fills the gap eventually.
func (c *Client) backfill(ctx context.Context) {
	for _, interval := range c.intervals {
		limit := c.cfg.Feed.CandleBuffer
		if limit <= 0 || limit > 200 {
			limit = 200
		}
		end := time.Now()
		start := end.Add(-time.Duration(limit) * interval.Duration())

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Bybit.REST.Timeout)
		entries, err := c.rest.GetKlines(reqCtx, "linear", c.symbol, interval, start, end, limit)
		cancel()
		if err != nil {
			c.logger.Warn("kline backfill failed",
				zap.String("interval", string(interval)), zap.Error(err))
			continue
		}

		candles := make([]snapshot.Candle, 0, len(entries))
		for _, e := range entries {
			candle, err := stream.CandleFromEntry(e)
			if err != nil {
				continue
			}
			candles = append(candles, candle)
		}
		c.store.ApplyKlines(string(interval), candles)
		c.logger.Info("kline history seeded",
			zap.String("interval", string(interval)), zap.Int("count", len(candles)))
	}
}

// watchStaleness periodically logs when the last trade timestamp goes stale.
// The feed itself keeps retrying forever; this is the signal an external
// supervisor watches for prolonged outages.
func (c *Client) watchStaleness(ctx context.Context) {
	threshold := c.cfg.Feed.Staleness
	if threshold <= 0 {
		threshold = time.Minute
	}

	ticker := time.NewTicker(threshold)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := c.store.Snapshot().LastTradeTime
			if last.IsZero() {
				continue
			}
			if age := time.Since(last); age > threshold {
				c.logger.Warn("market data is stale",
					zap.String("symbol", c.symbol), zap.Duration("age", age))
			}
		}
	}
}
