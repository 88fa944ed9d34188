package main

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"go-bridge-quorum/config"
	"go-bridge-quorum/controller"
	"go-bridge-quorum/db"
	"go-bridge-quorum/ledger"
	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
	"go-bridge-quorum/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.InitLogger(cfg.LogDir)
	logger.LogInfo("Server Starting...........................................................")

	ctx := context.Background()
	bridgeStore, multisigStore, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		logger.LogError(err)
		panic(err)
	}
	defer closeStores()

	token := ledger.NewToken()
	chain := ledger.NewChain()
	bridge := service.NewBridge(bridgeStore, token, nil)
	multisig := service.NewMultisig(multisigStore, chain, chain, nil)

	if cfg.BridgeEnabled() {
		bc, err := cfg.Bridge()
		if err == nil {
			err = bridge.Initialize(ctx, bc)
		}
		if err != nil && !errors.Is(err, model.ErrAlreadyInitialized) {
			logger.LogError(err)
			panic(err)
		}
	}
	if cfg.MultisigEnabled() {
		wc, err := cfg.Wallet()
		if err == nil {
			err = multisig.Initialize(ctx, wc)
		}
		if err != nil && !errors.Is(err, model.ErrAlreadyInitialized) {
			logger.LogError(err)
			panic(err)
		}
		logger.LogInfo("multisig wallet account %s", wc.Address.Hex())
	}

	router := controller.NewRouter()
	controller.NewBridgeController(bridge).Register(router)
	controller.NewMultisigController(multisig).Register(router)
	controller.NewRecordsController(map[string]controller.RecordSource{
		model.SourceBridge:   bridge,
		model.SourceMultisig: multisig,
	}).Register(router)

	server := &fasthttp.Server{
		Handler: router.Handler,
		Name:    "go-bridge-quorum",
	}
	logger.LogInfo("Starting server at port %v", cfg.Port)
	logger.LogError(server.ListenAndServe(":" + cfg.Port))
	logger.LogInfo("Server exited and released port %v", cfg.Port)
}

/*
This function opens the PostgreSQL pool when DATABASE_URL is set and migrates the
schema. Without it each engine gets its own in-memory store, since a memory
transaction holds its store exclusively
*/
func openStores(ctx context.Context, cfg *config.Config) (db.Store, db.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.LogInfo("DATABASE_URL not set, state is kept in memory")
		return db.NewMemory(), db.NewMemory(), func() {}, nil
	}
	connConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.MaxConnections > 0 {
		connConfig.MaxConns = cfg.MaxConnections
	}
	pool, err := pgxpool.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	database := db.NewDatabase(pool)
	if err := database.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return database, database, pool.Close, nil
}
