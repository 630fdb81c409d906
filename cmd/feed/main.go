package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"bybitfeed/config"
	"bybitfeed/internal/bybit/feed"
	"bybitfeed/internal/bybit/snapshot"
	"bybitfeed/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configDir := flag.String("config", "./config", "directory containing config.yaml")
	flag.Parse()

	// optional .env overrides (picked up by viper's AutomaticEnv)
	_ = godotenv.Load()

	// viper config
	cfg, err := config.Load(*configDir)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	client, err := feed.New(cfg, log)
	if err != nil {
		log.Fatal("failed to create feed client", zap.Error(err))
	}

	client.OnTrade(func(m snapshot.Market) {
		log.Debug("trade",
			zap.String("symbol", m.Symbol),
			zap.Float64("last_price", m.LastPrice),
			zap.Float64("session_vwap", m.SessionVWAP))
	})
	client.OnOrderbook(func(m snapshot.Market) {
		log.Debug("orderbook",
			zap.Float64("best_bid", m.BestBid),
			zap.Float64("best_ask", m.BestAsk),
			zap.Float64("imbalance", m.DepthImbalance))
	})
	client.OnTicker(func(m snapshot.Market) {
		log.Debug("ticker",
			zap.Float64("mark_price", m.MarkPrice),
			zap.Float64("funding_rate", m.FundingRate),
			zap.Float64("open_interest", m.OpenInterest))
	})
	client.OnLiquidation(func(l snapshot.Liquidation, m snapshot.Market) {
		log.Info("liquidation",
			zap.String("side", l.Side),
			zap.Float64("price", l.Price),
			zap.Float64("size", l.Size),
			zap.Float64("buy_volume_1h", m.LiqBuyVolume1h),
			zap.Float64("sell_volume_1h", m.LiqSellVolume1h))
	})
	client.OnKline(func(interval string, candles []snapshot.Candle) {
		if len(candles) == 0 {
			return
		}
		last := candles[len(candles)-1]
		log.Debug("kline",
			zap.String("interval", interval),
			zap.Float64("close", last.Close),
			zap.Bool("confirmed", last.Confirmed))
	})

	if err := client.Start(); err != nil {
		log.Fatal("failed to start feed", zap.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	client.Stop()
}
