package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mayanetra/internal/config"
	"mayanetra/internal/handler"
	"mayanetra/internal/history"
	"mayanetra/internal/notice"
	"mayanetra/internal/predictor"
	"mayanetra/internal/session"
	"mayanetra/internal/storage"
	"mayanetra/internal/theme"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting mayanetra...")

	cfgPath := os.Getenv("MAYANETRA_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()

	store, err := storage.Open(startCtx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer store.Close()

	historyLog := history.NewLog(store, cfg.History.Key, cfg.HistoryCap(), logger)
	historyLog.Load(startCtx)

	themePref := theme.NewPreference(store, cfg.Theme.Key, logger)
	activeTheme := themePref.Load(startCtx)

	classifier := predictor.NewClient(predictor.Config{
		BaseURL: cfg.Predictor.URL,
		Path:    cfg.Predictor.Path,
		Timeout: cfg.PredictorTimeout(),
	}, logger)

	board := notice.NewBoard(cfg.NoticeTTL(), logger)

	machine := session.NewMachine(session.Deps{
		Classifier: classifier,
		History:    historyLog,
		Theme:      themePref,
		Notifier:   board,
		Logger:     logger,
	})

	apiHandler := handler.NewHandler(machine, board, logger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	apiHandler.RegisterRoutes(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("mayanetra is running",
		zap.String("port", cfg.Server.Port),
		zap.String("classifier", cfg.Predictor.URL),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("history_entries", historyLog.Len()),
		zap.String("theme", string(activeTheme)))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
