package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"food-delivery/internal/listeners"
	"food-delivery/internal/routes"
	"food-delivery/internal/services"
	"food-delivery/pkg/config"
	"food-delivery/pkg/customvalidator"
	"food-delivery/pkg/database/postgresql"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/eventbus"
	applogger "food-delivery/pkg/logger"
	appmiddleware "food-delivery/pkg/middleware"
	"food-delivery/pkg/rabbitmq"
	"food-delivery/pkg/service"
	"food-delivery/pkg/utils"
	"food-delivery/pkg/websocket"
)

func main() {
	// 1. Конфиг и логгер
	cfg := config.New()
	logger := applogger.NewLogger(cfg.Logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Echo и middleware
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("!!! ОБНАРУЖЕНА ПАНИКА (PANIC) !!!",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "internal server error", err, nil)
				_ = utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))
	e.Use(appmiddleware.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		AllowCredentials: true,
	}))

	v := validator.New()
	if err := customvalidator.RegisterCustomValidations(v); err != nil {
		logger.Fatal("Ошибка регистрации кастомных правил валидации", zap.Error(err))
	}
	e.Validator = utils.NewValidator(v)

	// 3. Хранилища
	dbConn, err := postgresql.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("не удалось подключиться к PostgreSQL", zap.Error(err))
	}
	defer dbConn.Close()

	if err := postgresql.Migrate(ctx, dbConn, logger); err != nil {
		logger.Fatal("не удалось применить миграции", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Redis нужен только для ключей идемпотентности.
		logger.Warn("Redis недоступен, повторные запросы создания заказа не будут распознаваться",
			zap.Error(err), zap.String("address", cfg.Redis.Address))
	}

	// 4. Рассылка событий
	bus := eventbus.New(logger.Named("eventbus"))
	registry := websocket.NewRegistry()
	broadcaster := websocket.NewBroadcaster(registry, logger.Named("broadcaster"),
		cfg.Realtime.BroadcastQueueSize, cfg.Realtime.VersionRetention,
		websocket.WithAccessCheck(services.CanReceiveOrder),
	)
	listeners.NewRealtimeListener(broadcaster, logger).Register(bus)

	if cfg.RabbitMQ.URL != "" {
		amqpConn, err := rabbitmq.Connect(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer amqpConn.Close()
		publisher := rabbitmq.NewPublisher(amqpConn, cfg.RabbitMQ.Exchange)
		listeners.NewNotificationListener(publisher, logger).Register(bus)
	} else {
		logger.Info("RABBITMQ_URL не задан, уведомления во внешний сервис отключены")
	}

	broadcastCtx, cancelBroadcast := context.WithCancel(context.Background())
	broadcastDone := make(chan struct{})
	go func() {
		broadcaster.Run(broadcastCtx)
		close(broadcastDone)
	}()

	// 5. Роуты
	jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL, logger)
	loggers := &routes.Loggers{
		Main:     logger,
		Auth:     logger.Named("auth"),
		Order:    logger.Named("order"),
		Realtime: logger.Named("realtime"),
	}
	routes.InitRouter(e, dbConn, redisClient, jwtSvc, routes.Realtime{Registry: registry, Bus: bus}, loggers, cfg)

	// 6. Запуск и остановка
	go func() {
		logger.Info("Сервер запущен", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Получен сигнал остановки")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при остановке HTTP-сервера", zap.Error(err))
	}
	if err := bus.Wait(shutdownCtx); err != nil {
		logger.Warn("Не все обработчики событий завершились", zap.Error(err))
	}
	cancelBroadcast()
	<-broadcastDone
	logger.Info("Сервер остановлен")
}
