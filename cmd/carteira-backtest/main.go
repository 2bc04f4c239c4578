package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"carteira/internal/backtest"
	"carteira/internal/config"
	"carteira/internal/marketdata"
	"carteira/internal/store"
	"carteira/internal/util"
)

func main() {
	strategyPath := flag.String("strategy", "config/strategy.yaml", "path to the strategy YAML")
	outPath := flag.String("out", "", "write the result JSON to this file instead of stdout")
	flag.Parse()

	cfgPath := "config/carteira.yaml"
	if p := os.Getenv("CARTEIRA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	strategy, err := config.LoadStrategy(*strategyPath)
	if err != nil {
		log.Fatalf("failed to load strategy: %v", err)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	sstore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer sstore.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	data, err := marketdata.Load(ctx, pstore, sstore, sstore, logger)
	if err != nil {
		log.Fatalf("loading market data: %v", err)
	}

	result, err := backtest.New(data, logger).Run(ctx, strategy)
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encoding result: %v", err)
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, out, 0o644); err != nil {
			log.Fatalf("writing result: %v", err)
		}
		logger.Info("result written", "path", *outPath)
		return
	}
	fmt.Println(string(out))
}
