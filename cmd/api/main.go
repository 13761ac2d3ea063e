package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/auth"
	"github.com/ariefcatur/universal-market/internal/cart"
	"github.com/ariefcatur/universal-market/internal/catalog"
	"github.com/ariefcatur/universal-market/internal/config"
	"github.com/ariefcatur/universal-market/internal/httpx"
	kafkax "github.com/ariefcatur/universal-market/internal/kafka"
	"github.com/ariefcatur/universal-market/internal/logging"
	"github.com/ariefcatur/universal-market/internal/memory"
	"github.com/ariefcatur/universal-market/internal/payment"
	"github.com/ariefcatur/universal-market/internal/postgres"
	"github.com/ariefcatur/universal-market/internal/redisx"
	"github.com/ariefcatur/universal-market/internal/shutdown"
)

type stores struct {
	users   auth.UserStore
	catalog catalog.Store
	cart    cart.Store
	payment payment.Store
	cache   catalog.Cache
	pub     payment.Publisher
	ready   httpx.Readiness
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Config{
		ServiceName: cfg.ServiceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm := shutdown.New(cfg.ShutdownTimeout, log)

	st, err := buildStores(ctx, cfg, log, sm)
	if err != nil {
		log.Fatal("storage init", zap.String("storage", cfg.Storage), zap.Error(err))
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := auth.NewService(st.users, tokens, log.Named("auth"))
	catalogSvc := catalog.NewService(st.catalog, st.cache, log.Named("catalog"))
	cartSvc := cart.NewService(st.cart, log.Named("cart"))
	orch := payment.NewOrchestrator(st.payment,
		payment.NewChapa(cfg.ChapaBaseURL, cfg.ChapaSecretKey, cfg.ChapaTimeout),
		st.pub, log.Named("payment"),
		payment.Options{
			ServiceName:      cfg.ServiceName,
			TxRefPrefix:      cfg.TxRefPrefix,
			Currency:         cfg.PaymentCurrency,
			BackendURL:       cfg.BackendURL,
			FrontendURL:      cfg.FrontendURL,
			EnforceCartTotal: cfg.PaymentEnforceCartTotal,
		})

	router := httpx.NewRouter(log, st.ready)
	router.Route("/api", func(r chi.Router) {
		(&httpx.AuthHandler{Service: authSvc, Tokens: tokens, Log: log}).Register(r)
		(&httpx.CatalogHandler{
			Service:   catalogSvc,
			Tokens:    tokens,
			Admins:    authSvc,
			WriteAuth: cfg.CatalogWriteAuth,
			Log:       log,
		}).Register(r)
		(&httpx.CartHandler{Service: cartSvc, Tokens: tokens, Log: log}).Register(r)
		(&httpx.PaymentHandler{Orchestrator: orch, Tokens: tokens, Log: log}).Register(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
			cancel()
		}
	}()
	sm.Add("http", shutdown.HTTPServer(srv))

	sm.Wait(ctx)
}

// buildStores wires the persistence layer. Shutdown hooks are registered in
// reverse of the order they must run.
func buildStores(ctx context.Context, cfg config.Config, log *zap.Logger, sm *shutdown.Manager) (stores, error) {
	if cfg.Storage == config.StorageMemory {
		mem := memory.NewStore()
		log.Warn("using in-memory storage, data is lost on restart")
		return stores{users: mem, catalog: mem, cart: mem, payment: mem}, nil
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
			return stores{}, fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{
		MaxConns:       cfg.PGMaxConns,
		MinConns:       cfg.PGMinConns,
		AcquireTimeout: cfg.PGAcquireTimeout,
	})
	if err != nil {
		return stores{}, fmt.Errorf("postgres: %w", err)
	}
	sm.Add("postgres", shutdown.Func(db.Close))
	log.Info("postgres connected",
		zap.String("dsn", config.MaskDSN(cfg.PostgresDSN)),
		zap.Int32("max_conns", cfg.PGMaxConns),
		zap.Bool("auto_migrate", cfg.AutoMigrate))

	st := stores{
		users:   &postgres.UserRepo{DB: db},
		catalog: &postgres.CatalogRepo{DB: db},
		cart:    &postgres.CartRepo{DB: db},
		payment: &postgres.PaymentRepo{DB: db},
		ready:   db.Ping,
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		sm.Add("redis", shutdown.Closer(rdb.Close))
		st.cache = redisx.NewCategoryCache(rdb)
	}

	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
		prod.Start(ctx)
		sm.Add("kafka-producer", prod.Shutdown)
		st.pub = prod
	}
	return st, nil
}
