package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crowdsale/config"
	"crowdsale/core/bank"
	"crowdsale/core/events"
	"crowdsale/core/state"
	"crowdsale/crypto"
	"crowdsale/native/sale"
	"crowdsale/observability/logging"
	"crowdsale/rpc"
	"crowdsale/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("crowdsaled", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	mgr := state.NewManager(db)
	if err := seedRoles(mgr, cfg.Roles); err != nil {
		logger.Error("Failed to seed roles", slog.Any("error", err))
		os.Exit(1)
	}

	params := cfg.SaleParams()

	var feed *sale.ManualFeed
	var oracle *sale.OracleAdapter
	if cfg.Oracle.Enabled {
		feed = sale.NewManualFeed(cfg.Oracle.Decimals)
		if seed := cfg.SeedPrice(); seed != nil {
			feed.SetRound(sale.RoundData{
				RoundID:         1,
				Answer:          seed,
				UpdatedAt:       time.Now(),
				AnsweredInRound: 1,
			})
		}
		oracle, err = sale.NewOracleAdapter(feed, params.MaxQuoteAge())
		if err != nil {
			logger.Error("Failed to build oracle adapter", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Info("Native contribution flow disabled, no price feed configured")
	}

	vault := bank.NewVault(mgr)
	minter := bank.NewMinter(mgr)

	engine, err := sale.NewEngine(mgr, oracle, minter, vault, params)
	if err != nil {
		logger.Error("Failed to build sale engine", slog.Any("error", err))
		os.Exit(1)
	}

	engine.SetEmitter(events.NewLogEmitter(logger))

	if cfg.RPCBearerToken == "" {
		logger.Warn("RPC bearer token is empty, mutating methods are unauthenticated")
	}

	server := rpc.NewServer(engine, vault, feed, cfg.RPCBearerToken, logger)
	httpServer := &http.Server{Addr: cfg.RPCAddress, Handler: server.Router()}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("crowdsaled starting",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("oracle", cfg.Oracle.Enabled),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func seedRoles(mgr *state.Manager, roles config.RolesConfig) error {
	grants := []struct {
		role    string
		members []string
	}{
		{sale.RoleAdmin, roles.Admins},
		{sale.RoleSettlementProcessor, roles.SettlementProcessors},
		{sale.RoleTreasurer, roles.Treasurers},
	}
	for _, grant := range grants {
		for _, encoded := range grant.members {
			addr, err := crypto.DecodeAddress(encoded)
			if err != nil {
				return fmt.Errorf("role %s: %w", grant.role, err)
			}
			if err := mgr.SetRole(grant.role, addr.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}
