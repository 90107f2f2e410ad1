package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"candle-gateway-go/config"
	"candle-gateway-go/gateway"
	"candle-gateway-go/market"

	"github.com/joho/godotenv"
)

// 一次性拉取并清洗一个窗口，输出 JSON。用于排查上游数据质量。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to backfill")
	interval := flag.String("interval", "5", "kline interval")
	limit := flag.Int("limit", 200, "number of bars")
	raw := flag.Bool("raw", false, "print the raw window instead of the sanitized one")
	compare := flag.Bool("compare", false, "print only bars that were corrected, raw vs clean")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	client := gateway.NewBybitClient(gateway.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		APIKey:    cfg.Upstream.APIKey,
		APISecret: cfg.Upstream.APISecret,
		Category:  cfg.Upstream.Category,
	}, gateway.NewTokenBucket(cfg.Upstream.RestRate, cfg.Upstream.RestBurst))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sym := strings.ToUpper(*symbol)
	candles, err := client.Klines(ctx, sym, *interval, *limit)
	if err != nil {
		log.Fatalf("fetch klines: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("no data for %s/%s", sym, *interval)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *raw {
		if err := enc.Encode(candles); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	clean, err := market.Sanitize(candles)
	if err != nil {
		log.Fatalf("sanitize: %v", err)
	}
	corrected := 0
	for i := range clean {
		if clean[i] != candles[i] {
			corrected++
			if *compare {
				fmt.Printf("%s raw=%+v clean=%+v\n", clean[i].Time.Format(time.RFC3339), candles[i], clean[i])
			}
		}
	}
	if !*compare {
		if err := enc.Encode(clean); err != nil {
			log.Fatalf("encode: %v", err)
		}
	}
	fmt.Fprintf(os.Stderr, "%s/%s bars=%d corrected=%d\n", sym, *interval, len(clean), corrected)
}
