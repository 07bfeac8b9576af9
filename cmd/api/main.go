package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/himanshu-firke/shopsphere-backend/api/routes"
	addresssvc "github.com/himanshu-firke/shopsphere-backend/internal/address"
	cartsvc "github.com/himanshu-firke/shopsphere-backend/internal/cart"
	checkoutsvc "github.com/himanshu-firke/shopsphere-backend/internal/checkout"
	"github.com/himanshu-firke/shopsphere-backend/internal/promo"
	"github.com/himanshu-firke/shopsphere-backend/pkg/config"
	"github.com/himanshu-firke/shopsphere-backend/pkg/db"
	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
	"github.com/himanshu-firke/shopsphere-backend/pkg/metrics"
	"github.com/himanshu-firke/shopsphere-backend/pkg/migrate"
	"github.com/himanshu-firke/shopsphere-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storefrontMetrics := metrics.NewStorefrontMetrics(registry)

	snapshotStore, err := cartsvc.NewRedisSnapshotStore(redisClient, cfg.CartSync.SnapshotTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot store", err)
		os.Exit(1)
	}

	cartManager, err := cartsvc.NewManager(cartsvc.ManagerOptions{
		Remote: func(customerID string) (cartsvc.RemoteService, error) {
			return cartsvc.NewHTTPRemoteService(cfg.CartSync.RemoteBaseURL, customerID)
		},
		Snapshots:      snapshotStore,
		Metrics:        storefrontMetrics,
		Logger:         logg,
		ShippingCents:  cfg.Checkout.ShippingFlatRate,
		RequestTimeout: cfg.CartSync.RequestTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart manager", err)
		os.Exit(1)
	}
	defer cartManager.Close()

	ruleSource, err := promo.NewCachedSource(promo.NewRepository(dbClient.DB()), redisClient, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create promo rule cache", err)
		os.Exit(1)
	}
	promoService, err := promo.NewService(ruleSource)
	if err != nil {
		logg.Error(context.Background(), "failed to create promo service", err)
		os.Exit(1)
	}

	addressService, err := addresssvc.NewService(dbClient, addresssvc.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create address service", err)
		os.Exit(1)
	}

	placer, err := checkoutsvc.NewHTTPOrderPlacer(cfg.Checkout.PlacementBaseURL, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create order placer", err)
		os.Exit(1)
	}

	sessionStore, err := checkoutsvc.NewRedisSessionStore(redisClient, cfg.Checkout.SessionTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create session store", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.Options{
		Sessions:         sessionStore,
		Carts:            cartManager,
		Addresses:        addressService,
		Placer:           placer,
		Metrics:          storefrontMetrics,
		Logger:           logg,
		PlacementTimeout: cfg.Checkout.RequestTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Registry:  registry,
			Carts:     cartManager,
			Promos:    promoService,
			Addresses: addressService,
			Checkout:  checkoutService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
