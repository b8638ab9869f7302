package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/api"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/api/handler"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/config"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/lock"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/tracing"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/worker"
)

const serviceName = "bus-trip-reservation"

func main() {
	// .env は任意
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(cfg.App.Env)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName)
	if err != nil {
		log.Fatal("トレーシング初期化エラー", zap.Error(err))
	}
	m := metrics.Init()

	// ストア
	st, err := openStore(cfg)
	if err != nil {
		log.Fatal("ストア初期化エラー", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer st.close()
	log.Info("ストアに接続しました", zap.String("driver", cfg.Database.Driver))

	checkers := map[string]handler.Checker{}
	if st.ping != nil {
		checkers["database"] = st.ping
	}

	// ロックとキャッシュ（Redis が使えなければプロセス内ロックのみ）
	var (
		locks lock.Manager = memory.NewKeyedLocker()
		cache application.AvailabilityCache
	)
	if rc := connectRedis(ctx, cfg); rc != nil {
		defer rc.Close()
		locks = redisinfra.NewLockManager(rc)
		cache = redisinfra.NewAvailabilityCache(rc)
		checkers["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) }
	}

	opts := []application.EngineOption{application.WithMetrics(m)}
	if cache != nil {
		opts = append(opts, application.WithAvailabilityCache(cache))
	}

	// 予約イベント配信（任意）
	if cfg.Broker.URL != "" {
		pub, err := rabbitmq.Dial(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			log.Warn("RabbitMQに接続できないため予約イベントは配信しません", zap.Error(err))
		} else {
			defer pub.Close()
			opts = append(opts, application.WithEventPublisher(pub))
			log.Info("予約イベント配信を有効化", zap.String("exchange", cfg.Broker.Exchange))
		}
	}

	engine := application.NewBookingEngine(st.txm, st.trips, st.reservations, locks, application.EngineConfig{
		LockTimeout: cfg.Engine.LockTimeout,
		LockTTL:     cfg.Engine.LockTTL,
		MaxRetries:  cfg.Engine.MaxRetries,
		RetryDelay:  cfg.Engine.RetryDelay,
	}, opts...)
	tripService := application.NewTripService(st.trips, engine, cache, cfg.Cache.AvailabilityTTL)

	// キャッシュ更新ワーカー
	var warmer *worker.AvailabilityWarmer
	if cache != nil && cfg.Cache.WarmInterval > 0 {
		warmer = worker.NewAvailabilityWarmer(tripService, cfg.Cache.WarmInterval)
		go warmer.Start(ctx)
	}

	// Echo セットアップ
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Validator = api.NewValidator()
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	handler.RegisterRoutes(e, handler.Handlers{
		Health:      handler.NewHealthHandler(checkers),
		Trip:        handler.NewTripHandler(tripService, engine),
		Reservation: handler.NewReservationHandler(engine),
	}, middleware.Identity(middleware.IdentityConfig{
		JWTSecret:       cfg.Auth.JWTSecret,
		AdminRole:       cfg.Auth.AdminRole,
		TrustRoleHeader: cfg.Auth.TrustRoleHeader,
	}))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(middleware.LoadMetricsConfig()))

	// サーバー起動
	go func() {
		log.Info("サーバーを起動します", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("サーバー起動エラー", zap.Error(err))
			stop()
		}
	}()

	// シグナル待機
	<-ctx.Done()
	log.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	if warmer != nil {
		warmer.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("トレーシング終了エラー", zap.Error(err))
	}

	log.Info("サーバーが正常にシャットダウンしました")
}

// connectRedis は Redis に接続する。無効化されているか接続できなければ nil を返す
func connectRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	if !cfg.Redis.Enabled {
		logger.Info("Redisは無効です。プロセス内ロックを使用します")
		return nil
	}
	rc := redisinfra.NewClient(&cfg.Redis)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisinfra.Ping(pingCtx, rc); err != nil {
		logger.Warn("Redisに接続できません。プロセス内ロックを使用します", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		_ = rc.Close()
		return nil
	}
	return rc
}
