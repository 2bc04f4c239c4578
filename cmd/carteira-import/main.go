package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"carteira/internal/config"
	"carteira/internal/gather"
	"carteira/internal/gather/ipea"
	"carteira/internal/gather/jsonfeed"
	"carteira/internal/store"
	"carteira/internal/util"
)

func main() {
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

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	sstore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer sstore.Close()

	ipeaClient := ipea.NewClient(
		cfg.Importer.IPEABaseURL,
		cfg.Importer.RateLimitPerMin,
		cfg.Importer.MaxAttempts,
		logger,
	)

	gatherers := []gather.Gatherer{
		jsonfeed.NewFinancialsImporter(cfg.Importer.FinancialsPath, sstore, logger),
		jsonfeed.NewPriceImporter(cfg.Importer.PriceHistory, pstore, logger),
		ipea.NewBenchmarkGatherer(ipeaClient, sstore, logger),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failures := 0
	for _, g := range gatherers {
		fmt.Printf("running %s importer\n", g.Name())
		if err := g.Run(ctx); err != nil {
			if ctx.Err() != nil {
				log.Fatalf("import cancelled: %v", err)
			}
			logger.Error("importer failed", "name", g.Name(), "error", err)
			failures++
		}
	}

	if failures > 0 {
		log.Fatalf("%d importer(s) failed", failures)
	}
	logger.Info("import complete")
}
