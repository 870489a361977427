package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/events"
	httpapi "storefront/internal/http"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/repository/postgres"
	"storefront/internal/service"

	_ "storefront/docs"
)

// @title Storefront API
// @version 1.0
// @description Checkout, payment and fulfillment for the storefront.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	config.LoadDotEnv()
	app := &cli.App{
		Name:   "storefront",
		Usage:  "checkout and order fulfillment service",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.Error(logging.Fields{Component: "main", Err: err})
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	logging.Setup(os.Stdout, cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logging.Warn(logging.Fields{Component: "main", Step: "close", Err: err})
			}
		}
	}()

	deps, health, err := buildStores(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, rc.Close)
		deps.Cache = rc
	} else {
		deps.Cache = cache.NewMemory()
	}

	hub := httpapi.NewHub()
	sink, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	deps.Events = events.Multi{sink, hub}
	closers = append(closers, deps.Events.Close)

	deps.Metrics = metrics.New(prometheus.NewRegistry())

	var gw payment.Gateway = payment.NewSandbox()
	if cfg.GatewayMode == "live" {
		gw = payment.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.PaymentTimeout)
	}
	if cfg.GeneratedSecret {
		logging.Warn(logging.Fields{Component: "main", Step: "gateway", Message: "GATEWAY_KEY_SECRET not set, sandbox signs with a random per-process secret"})
	}

	products := service.NewProductService(deps.Products, deps.Cache)
	srv, err := httpapi.NewServer(httpapi.Services{
		Products: products,
		Orders:   service.NewOrderService(deps, cfg.Currency),
		Payments: service.NewPaymentService(deps, gw, service.PaymentConfig{
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
			Currency:  cfg.Currency,
			Timeout:   cfg.PaymentTimeout,
		}),
		Carts: service.NewCartService(deps.Carts, deps.Products),
	}, httpapi.Options{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     deps.Metrics,
		Hub:         hub,
		Health:      health,
	})
	if err != nil {
		return err
	}

	if cfg.SeedDemo {
		if err := seedDemo(ctx, products, srv.Auth()); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Log(logging.Fields{Component: "main", Step: "listen", Message: httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logging.Log(logging.Fields{Component: "main", Step: "shutdown"})
		return nil
	})
	return g.Wait()
}

func buildStores(ctx context.Context, cfg *config.Config, closers *[]func() error) (service.Deps, func(context.Context) error, error) {
	if cfg.Store == "memory" {
		store := repository.NewMemoryStore()
		return service.Deps{
			Products: store,
			Orders:   repository.NewMemoryOrders(store),
			Carts:    repository.NewMemoryCarts(store),
		}, nil, nil
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.DatabaseURL, cfg.LogLevel == "debug"); err != nil {
			return service.Deps{}, nil, err
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return service.Deps{}, nil, err
	}
	*closers = append(*closers, func() error { pool.Close(); return nil })
	return service.Deps{
		Products: postgres.NewProducts(pool),
		Orders:   postgres.NewOrders(pool),
		Carts:    postgres.NewCarts(pool),
	}, pool.Ping, nil
}

func buildPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events {
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "rabbitmq":
		return events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
	default:
		return events.LogPublisher{}, nil
	}
}

// seedDemo creates a small catalog and logs one customer and one admin token.
func seedDemo(ctx context.Context, products *service.ProductService, auth *httpapi.Authenticator) error {
	catalog := []domain.Product{
		{Name: "Cotton T-Shirt", SKU: "TS-001", CategoryID: 1, Price: decimal.RequireFromString("499.00"), Stock: 50, Active: true},
		{Name: "Denim Jacket", SKU: "DJ-002", CategoryID: 1, Price: decimal.RequireFromString("2499.50"), Stock: 10, Active: true},
		{Name: "Canvas Sneakers", SKU: "SN-003", CategoryID: 2, Price: decimal.RequireFromString("1799.99"), Stock: 3, Active: true},
	}
	for _, p := range catalog {
		created, err := products.Create(ctx, p)
		if err != nil {
			return fmt.Errorf("seed %s: %w", p.SKU, err)
		}
		logging.Log(logging.Fields{Component: "seed", ProductID: created.ID, Message: created.Name})
	}
	for _, a := range []domain.Actor{
		{UserID: "demo-customer", Role: domain.RoleCustomer},
		{UserID: "demo-admin", Role: domain.RoleAdmin},
	} {
		tok, err := auth.Issue(a, 24*time.Hour)
		if err != nil {
			return err
		}
		logging.Log(logging.Fields{Component: "seed", UserID: a.UserID, Status: string(a.Role), Message: tok})
	}
	return nil
}
