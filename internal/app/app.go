// Package app wires configuration, storage, the gateway client, notifiers and
// usecases into a runnable server. cmd/api and cmd/fulfillctl share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/rs-labo46/ec-fulfillment/internal/config"
	"github.com/rs-labo46/ec-fulfillment/internal/handler"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/db"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/gateway"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/lock"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/notify"
	infraRepo "github.com/rs-labo46/ec-fulfillment/internal/infra/repository"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/repository/memory"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/tracing"
	"github.com/rs-labo46/ec-fulfillment/internal/metrics"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
	"github.com/rs-labo46/ec-fulfillment/internal/server"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Echo       *echo.Echo
	Reconciler *usecase.PaymentReconciler
	Locker     usecase.Locker
	DB         *gorm.DB

	closers []func(context.Context) error
}

// Build は設定どおりに部品を作ってつなぐ。失敗したら作った分は閉じる。
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.GoEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	m := metrics.New()

	var tm repo.TransactionManager
	var ping handler.Pinger
	switch cfg.StorageDriver {
	case "memory":
		tm = memory.NewStore()
	default:
		gdb, err := db.Connect(cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		a.DB = gdb
		a.closers = append(a.closers, func(context.Context) error { return db.Close(gdb) })
		tm = infraRepo.NewTxManagerGorm(gdb)
		ping = func(ctx context.Context) error { return db.Ping(ctx, gdb) }
	}

	pub, err := notify.New(cfg.Notifier, logger)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	async := newNotifier(pub, logger, m)
	// Async.Close は next も閉じる
	a.closers = append(a.closers, func(context.Context) error { return async.Close() })

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		a.Locker = lock.NewRedisLocker(rdb)
	} else {
		a.Locker = lock.NoopLocker{}
	}

	gw := gateway.NewClient(gateway.Config{
		PartnerCode: cfg.Gateway.PartnerCode,
		AccessKey:   cfg.Gateway.AccessKey,
		SecretKey:   cfg.Gateway.SecretKey,
		Endpoint:    cfg.Gateway.Endpoint,
		RedirectURL: cfg.Gateway.RedirectURL,
		IPNURL:      cfg.Gateway.IPNURL,
		RequestType: cfg.Gateway.RequestType,
		Timeout:     cfg.Gateway.Timeout,
	}, nil)

	rt := usecase.Runtime{Notifier: async, Logger: logger, Metrics: m}
	ledger := usecase.NewInventoryLedger(cfg.LowStockThreshold, m)
	redeemer := usecase.NewEntitlementRedeemer(nil)

	a.Reconciler = usecase.NewPaymentReconciler(tm, ledger, redeemer, gw, rt)

	a.Echo = server.New(server.Deps{
		Config:         cfg,
		Logger:         logger,
		Metrics:        m,
		Checkout:       handler.NewCheckoutHandler(usecase.NewCheckoutUsecase(tm, ledger, redeemer, gw, rt)),
		Orders:         handler.NewOrderHandler(usecase.NewOrderUsecase(tm, ledger, rt)),
		Cart:           handler.NewCartHandler(usecase.NewCartUsecase(tm)),
		Payments:       handler.NewPaymentHandler(a.Reconciler, cfg.FEURL),
		AdminOrders:    handler.NewAdminOrderHandler(usecase.NewAdminOrderUsecase(tm, ledger, rt)),
		AdminInventory: handler.NewAdminInventoryHandler(usecase.NewInventoryUsecase(tm, ledger, rt)),
		Health:         handler.NewHealthHandler(ping),
	})
	return a, nil
}

// 配送結果（Kafka/NATS/Redis への送信）をメトリクスに数える
func newNotifier(pub notify.Publisher, logger *slog.Logger, m *metrics.Metrics) *notify.Async {
	async := notify.NewAsync(pub, logger, 0)
	async.OnResult = m.Notified
	return async
}

func (a *App) SweepConfig() usecase.SweepConfig {
	return usecase.SweepConfig{
		Interval:  a.Config.SweepInterval,
		MinAge:    a.Config.SweepMinAge,
		BatchSize: a.Config.SweepBatchSize,
	}
}

// Serve は ctx が終わるまでHTTPサーバーと決済待ちのスイーパーを動かす。
func (a *App) Serve(ctx context.Context) error {
	if a.Config.SweepInterval > 0 {
		go a.Reconciler.RunSweeper(ctx, a.Locker, a.SweepConfig())
	}
	a.Logger.Info("server starting",
		slog.String("addr", a.Config.Addr()),
		slog.String("storage", a.Config.StorageDriver),
		slog.String("notifier", a.Config.Notifier.Driver),
	)
	return server.Start(ctx, a.Echo, a.Config.Addr())
}

// Close は作った順の逆に閉じる。
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
