package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/p2e-inferno/teerex-sub003/internal/allowlist"
	"github.com/p2e-inferno/teerex-sub003/internal/attendance"
	"github.com/p2e-inferno/teerex-sub003/internal/auth"
	"github.com/p2e-inferno/teerex-sub003/internal/challenge"
	cfgpkg "github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/eas"
	pipeline "github.com/p2e-inferno/teerex-sub003/internal/indexer/pipeline"
	indexersvc "github.com/p2e-inferno/teerex-sub003/internal/indexer/service"
	"github.com/p2e-inferno/teerex-sub003/internal/relay"
	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
	"github.com/p2e-inferno/teerex-sub003/internal/server"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

// @title TeeRex Attestation Backend API
// @version 1.0
// @description Relay, mirror and reputation service for event attendance attestations.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := cfgpkg.Load()

	db := store.OpenSQLite(cfg.Database.SQLiteDSN)
	store.AutoMigrate(db)
	store.SeedSchemas(db)
	if cfg.Organizer.Address != "" {
		store.EnsureOrganizer(db, cfg.Organizer.Address)
	}

	repo := store.NewRepository(db)
	hub := server.NewAttestationHub(log.New(log.Writer(), "feed: ", log.LstdFlags))
	reader := indexersvc.NewReader(repo)
	authSvc := auth.NewService(cfg.Auth, repo)

	ethClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("failed to connect chain rpc: %v", err)
	}
	chainID, err := ethClient.ChainID(context.Background())
	if err != nil {
		log.Fatalf("failed to get chain id: %v", err)
	}
	if cfg.Chain.ChainID != 0 && cfg.Chain.ChainID != chainID.Uint64() {
		log.Fatalf("chain id mismatch: configured %d, node reports %d", cfg.Chain.ChainID, chainID.Uint64())
	}
	cfg.Chain.ChainID = chainID.Uint64()
	chainCfg := cfg.Chain

	registryAddr := common.HexToAddress(chainCfg.EASContract)
	domain := eas.Domain{
		Name:              chainCfg.EIP712DomainName,
		Version:           chainCfg.EIP712DomainVersion,
		ChainID:           chainID,
		VerifyingContract: registryAddr,
	}
	registry := eas.NewRegistry(ethClient, registryAddr)

	relayLogger := log.New(log.Writer(), "relay: ", log.LstdFlags)
	relaySvc, err := relay.NewService(cfg.Relay, domain, registryAddr, ethClient, repo, hub, relayLogger)
	if err != nil {
		log.Fatalf("failed to init relay: %v", err)
	}
	signer, err := eas.NewKeySigner(cfg.Relay.ServicePrivateKey, domain)
	if err != nil {
		log.Fatalf("failed to init signer: %v", err)
	}

	ledger := reputation.NewLedger(repo, cfg.Reputation, log.New(log.Writer(), "reputation: ", log.LstdFlags))
	resolver := eas.NewSchemaResolver(repo)
	attendanceSvc := attendance.NewService(repo, resolver, eas.NewEncoder(), signer, relaySvc, registry, ledger, chainCfg, cfg.Relay, log.New(log.Writer(), "attendance: ", log.LstdFlags))
	challengeSvc := challenge.NewService(repo, ledger, log.New(log.Writer(), "challenge: ", log.LstdFlags))
	allowSvc := allowlist.NewService(repo, log.New(log.Writer(), "allowlist: ", log.LstdFlags))
	relayH := relay.NewHandler(relaySvc, resolver, ledger, repo, relayLogger)

	var mirrorIndexer *pipeline.Indexer
	if cfg.Indexer.Enabled {
		idxCfg := pipeline.Config{
			ChainID:           chainID.Uint64(),
			Registry:          registryAddr,
			DeploymentBlock:   chainCfg.EASDeployBlock,
			ChunkSize:         cfg.Indexer.ChunkSize,
			Confirmations:     cfg.Indexer.Confirmations,
			PollInterval:      cfg.Indexer.PollInterval,
			DecodeWorkerCount: cfg.Indexer.DecodeWorkers,
			WriteWorkerCount:  cfg.Indexer.WriteWorkers,
			MaxFilterRange:    cfg.Indexer.MaxFilterRange,
		}
		mirrorIndexer = pipeline.New(idxCfg, pipeline.NewStoreAdapter(repo, hub), ethClient, registry, log.New(log.Writer(), "indexer: ", log.LstdFlags))
	}

	r := server.NewRouter(server.Deps{
		Config:     cfg,
		Auth:       authSvc,
		Repo:       repo,
		Reader:     reader,
		Relay:      relayH,
		Attendance: attendanceSvc,
		Challenge:  challengeSvc,
		AllowList:  allowSvc,
		Ledger:     ledger,
		Hub:        hub,
	})
	srv := server.NewHTTP(cfg.Server.HTTPAddr, r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go hub.Run(ctx)
	if mirrorIndexer != nil {
		go func() {
			if err := mirrorIndexer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("indexer stopped: %v", err)
			}
		}()
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdown)
}
