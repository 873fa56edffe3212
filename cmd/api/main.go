package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/georgemunganga/pharma-gateway/internal/config"
	"github.com/georgemunganga/pharma-gateway/internal/modules/auth"
	"github.com/georgemunganga/pharma-gateway/internal/modules/cart"
	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
	"github.com/georgemunganga/pharma-gateway/internal/modules/checkout"
	"github.com/georgemunganga/pharma-gateway/internal/modules/search"
	"github.com/georgemunganga/pharma-gateway/internal/modules/stats"
	"github.com/georgemunganga/pharma-gateway/internal/modules/wallet"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

const (
	cartTTL = 24 * time.Hour
	flowTTL = 30 * time.Minute
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := pharmaapi.NewClient(cfg.BackendURL, &http.Client{Timeout: cfg.BackendTimeout})

	// ── Optional infrastructure ─────────────────────────────
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis %s: %v", cfg.RedisAddr, err)
		}
		defer rdb.Close()
		log.Printf("Connected to redis at %s", cfg.RedisAddr)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal(err)
		}
		if err := checkout.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate checkouts: %v", err)
		}
		log.Println("Successfully connected to the database!")
	}

	var chain *ethclient.Client
	if cfg.RPCURL != "" {
		var err error
		chain, err = ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			log.Fatalf("dial %s: %v", cfg.RPCURL, err)
		}
		defer chain.Close()
	}

	// ── Wallet ──────────────────────────────────────────────
	var provider wallet.Provider
	if chain != nil && cfg.WalletPrivateKey != "" {
		kp, err := wallet.NewKeyProvider(chain, cfg.WalletPrivateKey, cfg.ChainPollInterval)
		if err != nil {
			log.Fatalf("wallet key: %v", err)
		}
		provider = kp
	}
	walletAdapter := wallet.NewAdapter(provider, wallet.WithReceiptPoll(cfg.ChainPollInterval/2))
	defer walletAdapter.Disconnect()

	// ── Catalog ─────────────────────────────────────────────
	var drugRepo catalog.Repository = catalog.NewBackendRepository(backend)
	var writer catalog.Writer
	if chain != nil && common.IsHexAddress(cfg.ContractAddress) {
		contract := common.HexToAddress(cfg.ContractAddress)
		if cfg.CatalogSource == "contract" {
			drugRepo = catalog.NewContractRepository(chain, contract)
		}
		writer = catalog.NewContractWriter(walletAdapter, contract)
	}
	if rdb != nil {
		drugRepo = catalog.NewCachedRepository(drugRepo, rdb, cfg.CacheTTL)
	}
	catalogService := catalog.NewService(drugRepo, writer, backend)

	// ── Auth ────────────────────────────────────────────────
	sessions := auth.NewSessions(auth.NewVault(cfg.SessionSecret))
	authService := auth.NewService(backend, auth.NewMemoryFlowStore(flowTTL), sessions, cfg.LandingRoute)

	// ── Search & Cart ───────────────────────────────────────
	searchService := search.NewService(catalogService, search.NewPipeline(backend, search.DefaultRemoteTimeout))

	var cartRepo cart.Repository = cart.NewMemoryRepository()
	if rdb != nil {
		cartRepo = cart.NewRedisRepository(rdb, cartTTL)
	}
	cartService := cart.NewService(cartRepo, catalogService)

	// ── Checkout & Stats ────────────────────────────────────
	var checkoutRepo checkout.Repository = checkout.NewMemoryRepository()
	if db != nil {
		checkoutRepo = checkout.NewPostgresRepository(db)
	}
	checkoutService := checkout.NewService(
		checkoutRepo,
		cartService,
		walletAdapter,
		checkout.NewCoinbaseRates(cfg.RateURL, cfg.BackendTimeout),
		backend,
		checkout.ResolveReceiver(cfg.ReceiverAddress),
	)
	statsService := stats.NewService(backend, sessions)

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	requireSession := auth.RequireSession(sessions)
	catalog.NewHandler(catalogService, sessions, requireSession).RegisterRoutes(router)
	search.NewHandler(searchService).RegisterRoutes(router)
	cart.NewHandler(cartService).RegisterRoutes(router)
	auth.NewHandler(authService).RegisterRoutes(router)
	wallet.NewHandler(walletAdapter, requireSession).RegisterRoutes(router)
	checkout.NewHandler(checkoutService, requireSession).RegisterRoutes(router)
	stats.NewHandler(statsService).RegisterRoutes(router)

	// ── Start Server ────────────────────────────────────────
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("Pharma gateway starting on :%s (%s, backend %s)", cfg.Port, cfg.Env, cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
