package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/emochain/emochain/api"
	"github.com/emochain/emochain/core"
	"github.com/emochain/emochain/logging"
)

func main() {
	cfg := core.ConfigFromEnv()

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := core.OpenLevelStore(cfg.DataDir)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	ledger := core.NewLedger(cfg, log)
	econ := core.NewEconomics(log)
	bus := core.NewBus()
	registry := core.NewRegistry(cfg, log)

	chain, err := core.NewChain(cfg, store, ledger, econ, bus, log)
	if err != nil {
		log.Fatal("failed to initialize chain", zap.Error(err))
	}

	miner := core.NewMiner(cfg, chain, registry, econ, log)
	defer miner.Shutdown()
	if err := miner.Start(); err != nil {
		log.Fatal("failed to start mining", zap.Error(err))
	}

	bridge := core.NewBridge(chain, log)
	server := api.NewServer(chain, registry, ledger, econ, miner, bridge, bus, log)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	miner.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}
