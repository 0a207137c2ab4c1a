package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cipherlink-backend/internal/database"
	chatHandler "cipherlink-backend/internal/handler/http/chat"
	wsHandler "cipherlink-backend/internal/handler/ws"
	"cipherlink-backend/internal/middleware"
	"cipherlink-backend/internal/repository/cassandra"
	"cipherlink-backend/internal/repository/cockroach"
	callService "cipherlink-backend/internal/service/call"
	chatService "cipherlink-backend/internal/service/chat"
	"cipherlink-backend/internal/service/encryption"
	receiptService "cipherlink-backend/internal/service/receipt"
	"cipherlink-backend/pkg/config"
	"cipherlink-backend/pkg/constants"
	"cipherlink-backend/pkg/jwt"
	"cipherlink-backend/pkg/logger"
	"cipherlink-backend/pkg/metrics"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry)

	// 3. Connect to Cassandra (message log)
	cassandraDB, err := database.NewCassandraDB(&database.CassandraConfig{
		Hosts:    cfg.Cassandra.Hosts,
		Keyspace: cfg.Cassandra.Keyspace,
		Username: cfg.Cassandra.Username,
		Password: cfg.Cassandra.Password,
		Timeout:  cfg.Cassandra.Timeout,
	})
	if err != nil {
		logger.Log.Fatal("failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()
	logger.Info("connected to Cassandra")

	// 4. Connect to Redis (fan-out bus)
	database.InitRedisMetrics()
	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		logger.Log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("connected to Redis")

	redisDB.StartHealthCheck(context.Background(), 10*time.Second)

	// 5. Connect to CockroachDB (memberships, receipts, calls)
	dbConfig := database.DefaultDBConfig()
	dbConfig.MaxOpenConns = cfg.Database.MaxConns
	cockroachDB, err := database.NewDB(context.Background(), cfg.Database.ConnString(), dbConfig)
	if err != nil {
		logger.Log.Fatal("failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("connected to CockroachDB")

	// 6. Repositories
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session)
	membershipRepo := cockroach.NewMembershipRepository(cockroachDB.Pool)
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	receiptRepo := cockroach.NewReceiptRepository(cockroachDB.Pool)
	callRepo := cockroach.NewCallRepository(cockroachDB.Pool)

	// 7. Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 8. Encryption pipeline
	sealPool := encryption.NewSealPool(cfg.Encrypt.PoolSize, appMetrics)
	defer sealPool.Shutdown()
	encryptSvc := encryption.NewService(sealPool, cfg.Encrypt.ParallelThreshold, appMetrics)

	// 9. WebSocket hub and services. The hub both dispatches inbound frames
	// to the receipt/call services and serves as their outbound emitter, so
	// the services are attached after construction.
	hub := wsHandler.NewHub(redisDB.Client, appMetrics)
	receiptSvc := receiptService.NewService(membershipRepo, messageRepo, receiptRepo, hub, appMetrics, logger.Log)
	callSvc := callService.NewService(callRepo, hub, appMetrics, logger.Log)
	hub.Bind(receiptSvc, callSvc)

	chatSvc := chatService.NewService(membershipRepo, userRepo, messageRepo, encryptSvc, hub, appMetrics, logger.Log)
	chatHdlr := chatHandler.NewHandler(chatSvc)

	// 10. Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(prometheusMiddleware.Handler())
	router.Use(middleware.Timeout(constants.DefaultTimeout))

	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if !redisDB.IsHealthy() {
			status = "degraded"
		}
		if err := cockroachDB.Ping(c.Request.Context()); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("/rooms/:room_id/messages", chatHdlr.SendMessage)
		v1.GET("/rooms/:room_id/messages", chatHdlr.GetMessages)
		v1.GET("/ws", hub.ServeWS)
	}

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("message service starting",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
