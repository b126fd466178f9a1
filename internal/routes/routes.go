package routes

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"food-delivery/internal/controllers"
	"food-delivery/internal/events"
	"food-delivery/internal/repositories"
	"food-delivery/internal/services"
	"food-delivery/pkg/config"
	"food-delivery/pkg/eventbus"
	"food-delivery/pkg/middleware"
	"food-delivery/pkg/service"
	"food-delivery/pkg/websocket"
)

type Loggers struct {
	Main     *zap.Logger
	Auth     *zap.Logger
	Order    *zap.Logger
	Realtime *zap.Logger
}

// Realtime - общие для процесса компоненты рассылки; их жизненным циклом
// управляет main.
type Realtime struct {
	Registry *websocket.Registry
	Bus      *eventbus.Bus
}

func InitRouter(e *echo.Echo, dbConn *pgxpool.Pool, redisClient *redis.Client, jwtSvc service.JWTService, rt Realtime, loggers *Loggers, cfg *config.Config) {
	loggers.Main.Info("InitRouter: Начало создания маршрутов")

	// --- 0. ОБЩИЕ КОМПОНЕНТЫ ---
	authMW := middleware.NewAuthMiddleware(jwtSvc, loggers.Auth)
	publisher := events.NewBusPublisher(rt.Bus)

	// --- 1. РЕПОЗИТОРИИ ---
	orderRepo := repositories.NewOrderRepository(dbConn, loggers.Order)
	var cacheRepo repositories.CacheRepositoryInterface
	if redisClient != nil {
		cacheRepo = repositories.NewRedisCacheRepository(redisClient)
	}

	// --- 2. СЕРВИСЫ ---
	engine := services.NewTransitionEngine(orderRepo, publisher, loggers.Order)
	orderService := services.NewOrderService(orderRepo, cacheRepo, engine, publisher, cfg.Redis.IdempotencyTTL, loggers.Order)
	realtimeService := services.NewRealtimeService(rt.Registry, orderRepo, loggers.Realtime)

	// --- 3. КОНТРОЛЛЕРЫ ---
	orderCtrl := controllers.NewOrderController(orderService, loggers.Order)
	wsCtrl := controllers.NewWebSocketController(realtimeService, rt.Registry, authMW, cfg.Server.AllowedOrigins, cfg.Realtime.SendBuffer, loggers.Realtime)

	checks := map[string]controllers.HealthCheck{
		"postgres": func(ctx context.Context) error { return dbConn.Ping(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	healthCtrl := controllers.NewHealthController(checks, loggers.Main)

	// --- 4. РОУТЕРЫ ---
	e.GET("/health", healthCtrl.Health)
	e.GET("/ws", wsCtrl.ServeWs)

	secureGroup := e.Group("/api", authMW.Auth)
	runOrderRouter(secureGroup, orderCtrl, authMW)

	loggers.Main.Info("INIT_ROUTER: Создание маршрутов завершено")
}
