package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/acoustic-workbench-api/api/swagger"
	"github.com/noah-isme/acoustic-workbench-api/internal/app"
	"github.com/noah-isme/acoustic-workbench-api/internal/handler"
	"github.com/noah-isme/acoustic-workbench-api/internal/middleware"
	"github.com/noah-isme/acoustic-workbench-api/pkg/config"
	"github.com/noah-isme/acoustic-workbench-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/acoustic-workbench-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/acoustic-workbench-api/pkg/middleware/requestid"
)

// @title Acoustic Workbench API
// @version 0.1.0
// @description Filterable access to bioacoustic recordings and the harvest workflow for uploaded audio.
// @BasePath /
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}
	defer application.Close()
	application.StartWorkers(ctx)
	defer application.StopWorkers()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(application.Metrics))
	r.Use(middleware.WithResponseMeta())

	filters := handler.NewFilterHandler(application.Filters)
	handler.Routes{
		Metrics:  handler.NewMetricsHandler(application.Metrics, application.DB),
		Filter:   filters,
		Harvests: handler.NewHarvestHandler(application.Harvests, application.Filters),
	}.Register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Warnw("server shutdown failed", "error", err)
		}
	}()

	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
