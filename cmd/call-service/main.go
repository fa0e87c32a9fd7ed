package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	callHandler "nurselink-backend/internal/handler/http/call"
	wsHandler "nurselink-backend/internal/handler/ws"
	"nurselink-backend/internal/middleware"
	"nurselink-backend/internal/repository/cassandra"
	"nurselink-backend/internal/repository/postgres"
	callService "nurselink-backend/internal/service/call"
	"nurselink-backend/pkg/config"
	"nurselink-backend/pkg/database"
	"nurselink-backend/pkg/jwt"
	"nurselink-backend/pkg/logger"
	"nurselink-backend/pkg/metrics"
)

func main() {
	// .env for local development; real deployments use the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.InitDefault()
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, 15*time.Minute)

	// PostgreSQL with exponential backoff retry
	db, err := connectPostgres(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to postgres")

	callRepo := postgres.NewCallRepository(db.Pool)

	// Redis backs the realtime fan-out and token revocation; the service can
	// run single-instance without it
	var revocationChecker middleware.RevocationChecker
	redisDB, err := database.NewRedisDB(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("failed to connect to redis, running without cross-instance fan-out", zap.Error(err))
	} else {
		defer redisDB.Close()
		revocationChecker = middleware.NewRedisRevocationChecker(redisDB.Client)
		logger.Info("connected to redis")
	}

	// Cassandra audit log is optional
	var audit callService.AuditLog
	if cfg.Cassandra.Enabled {
		cassandraDB, err := database.NewCassandraDB(&cfg.Cassandra)
		if err != nil {
			logger.Warn("failed to connect to cassandra, call audit log disabled", zap.Error(err))
		} else {
			defer cassandraDB.Close()
			audit = cassandra.NewCallEventRepository(cassandraDB.Session)
			logger.Info("connected to cassandra")
		}
	}

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	callSvc := callService.NewService(callRepo, audit, appMetrics)
	callHdlr := callHandler.NewHandler(callSvc)

	var redisClient *redis.Client
	if redisDB != nil {
		redisClient = redisDB.Client
	}
	hub := wsHandler.NewHub(redisClient, appMetrics)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler())

	auth := middleware.AuthMiddleware(jwtManager, revocationChecker)

	calls := router.Group("/video-calls")
	calls.Use(auth)
	{
		calls.POST("/start", callHdlr.StartCall)
		calls.PATCH("/:id/end", callHdlr.EndCall)
		calls.POST("/accept", callHdlr.AcceptCall)
		calls.PATCH("/:id/reject", callHdlr.RejectCall)
		calls.GET("/conversation/:id/ongoing", callHdlr.OngoingCall)
		calls.GET("/conversation/:id/history", callHdlr.CallHistory)
	}

	ws := router.Group("/ws")
	ws.Use(auth)
	{
		ws.GET("/conversations/:id", hub.ServeWS)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("call service starting", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

// connectPostgres retries the initial connection with exponential backoff
func connectPostgres(ctx context.Context, cfg *config.Config) (*database.PostgresDB, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err == nil {
		return db, nil
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("postgres connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		time.Sleep(delay)

		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err == nil {
			return db, nil
		}
	}

	return nil, err
}
