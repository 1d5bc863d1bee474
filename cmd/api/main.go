package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/munisalud/piscinas-api/api/swagger"
	"github.com/munisalud/piscinas-api/internal/handler"
	"github.com/munisalud/piscinas-api/internal/middleware"
	"github.com/munisalud/piscinas-api/internal/models"
	"github.com/munisalud/piscinas-api/internal/repository"
	"github.com/munisalud/piscinas-api/internal/service"
	"github.com/munisalud/piscinas-api/pkg/cache"
	"github.com/munisalud/piscinas-api/pkg/config"
	"github.com/munisalud/piscinas-api/pkg/database"
	"github.com/munisalud/piscinas-api/pkg/logger"
	"github.com/munisalud/piscinas-api/pkg/mailer"
	corsmiddleware "github.com/munisalud/piscinas-api/pkg/middleware/cors"
	reqidmiddleware "github.com/munisalud/piscinas-api/pkg/middleware/requestid"
)

// @title Municipal Pool Registry API
// @version 1.0.0
// @description Records management API for municipal swimming pool registrations
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The registry stays functional without Redis; statistics fall
		// back to direct reads.
		logr.Sugar().Warnw("redis unavailable, statistics cache disabled", "error", err)
		redisClient = nil
	}

	poolRepo := repository.NewPoolRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	mail := mailer.New(cfg.SMTP, logr)

	authSvc := service.NewAuthService(userRepo, tokenRepo, mail, nil, logr, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenExpiry:   cfg.JWT.ResetExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	metricsSvc := service.NewMetricsService()
	poolSvc := service.NewPoolService(poolRepo, cacheRepo, nil, logr, cfg.Pools.StatisticsCacheTTL).WithMetrics(metricsSvc)
	userSvc := service.NewUserService(userRepo, nil, logr)

	go pruneRefreshTokens(authSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	poolHandler := handler.NewPoolHandler(poolSvc)
	userHandler := handler.NewUserHandler(userSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authRequired := middleware.JWT(authSvc)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	registryWriters := middleware.RequireRoles(models.RoleAdmin, models.RoleInspector)

	auth := r.Group("/auth")
	{
		auth.POST("/users/", authHandler.Signup)
		auth.POST("/jwt/create/", authHandler.Login)
		auth.POST("/jwt/refresh/", authHandler.Refresh)
		auth.POST("/social/callback/", authHandler.SocialLogin)
		auth.POST("/users/reset_password/", authHandler.ForgotPassword)
		auth.POST("/users/reset_password_confirm/", authHandler.ResetPassword)

		auth.POST("/logout/", authRequired, authHandler.Logout)
		auth.POST("/users/set_password/", authRequired, authHandler.ChangePassword)
		auth.GET("/users/me/", authRequired, userHandler.Me)
		auth.PUT("/users/me/", authRequired, userHandler.UpdateMe)
		auth.GET("/users/", authRequired, adminOnly, userHandler.List)
		auth.POST("/users/superuser/", authRequired, adminOnly, authHandler.CreateSuperuser)
	}

	pool := r.Group("/pool", authRequired)
	{
		pool.GET("/all/", poolHandler.List)
		pool.GET("/all/:id/", poolHandler.Get)
		pool.GET("/state/:state/", poolHandler.ListByState)
		pool.GET("/district/:district/", poolHandler.ListByDistrict)
		pool.GET("/statistics/", poolHandler.Statistics)
		pool.GET("/filters/", poolHandler.Filter)
		pool.GET("/export/", poolHandler.Export)

		pool.POST("/create/", registryWriters, poolHandler.Create)
		pool.PUT("/all/:id/", registryWriters, poolHandler.Update)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// pruneRefreshTokens clears expired refresh tokens once at startup and
// then every hour for the life of the process.
func pruneRefreshTokens(authSvc *service.AuthService, logr *zap.Logger) {
	prune := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := authSvc.PruneExpiredTokens(ctx); err != nil {
			logr.Sugar().Warnw("refresh token pruning failed", "error", err)
		}
	}

	prune()
	for range time.Tick(time.Hour) {
		prune()
	}
}
