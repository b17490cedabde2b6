package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpAdapter "github.com/khoahotran/lecture-video/adapters/http"
	"github.com/khoahotran/lecture-video/internal/bootstrap"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/auth"
)

func main() {
	fmt.Println("Start Lecture Video API Server...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}
	appLogger := bootstrap.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, appLogger, "lecture-video-api")
	if err != nil {
		appLogger.Fatal("Cannot initialize application", err)
	}
	defer app.Close(context.Background())

	jwtSvc := auth.NewJWTServiceWithIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenLifespan, cfg.Auth.Issuer)
	videoHandler := httpAdapter.NewVideoHandler(
		app.Repos.Users,
		app.Repos.Videos,
		app.Repos.Collections,
		app.Repos.Subtitles,
		app.UC.Evaluator,
		app.UC.Ingest,
		app.UC.Retranscode,
		app.UC.Visibility,
		app.UC.Subtitles,
		app.UC.Delete,
		appLogger,
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(
		videoHandler,
		httpAdapter.AuthMiddleware(jwtSvc, appLogger),
		httpAdapter.OptionalAuthMiddleware(jwtSvc),
		httpAdapter.ErrorMiddleware(appLogger),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("Server running", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Cannot run server", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", err)
	}
}
