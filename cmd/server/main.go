package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SaddoSenpai/LMArenaBridge/internal/config"
	"github.com/SaddoSenpai/LMArenaBridge/internal/geo"
	"github.com/SaddoSenpai/LMArenaBridge/internal/handler"
	"github.com/SaddoSenpai/LMArenaBridge/internal/handler/middleware"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/service"
	"github.com/SaddoSenpai/LMArenaBridge/internal/storage/jsonfile"
	"github.com/SaddoSenpai/LMArenaBridge/pkg/logger"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting token dashboard service...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := jsonfile.New(cfg.Store.Path, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to open store: %v", err)
	}

	geoResolver := geo.NewClient(&cfg.Geo, appLogger)

	tokenService := service.NewTokenService(store, appLogger)
	usageService := service.NewUsageService(store, geoResolver, appLogger)
	sessionService := service.NewSessionService(&cfg.Admin, cfg.Session.TTL, appLogger)

	healthHandler := handler.NewHealthHandler(store, appLogger)
	authHandler := handler.NewAuthHandler(sessionService, appLogger)
	tokenHandler := handler.NewTokenHandler(tokenService, appLogger)
	usageHandler := handler.NewUsageHandler(usageService, appLogger)

	sessionAuthMiddleware := middleware.SessionAuthMiddleware(sessionService, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.SessionHeaderName},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/api/v1/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/stats", usageHandler.Stats)
		apiV1.GET("/usage/timeline", usageHandler.Timeline)
		apiV1.GET("/tokens/:token/info", tokenHandler.Info)
		apiV1.POST("/usage", usageHandler.Record)

		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(sessionAuthMiddleware)
		{
			adminRoutes.GET("/tokens", tokenHandler.List)
			adminRoutes.POST("/tokens", tokenHandler.Create)
			adminRoutes.POST("/tokens/:id/revoke", tokenHandler.Revoke)
			adminRoutes.POST("/tokens/:id/activate", tokenHandler.Activate)
			adminRoutes.DELETE("/tokens/:id", tokenHandler.Delete)
			adminRoutes.GET("/usage/recent", usageHandler.Recent)
		}
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else if errors.Is(waitErr, http.ErrServerClosed) {
			sugarLogger.Info("Shutdown reason: HTTP server closed normally.")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully.")
	}

	sugarLogger.Info("Application exiting now.")
}
