package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khoahotran/lecture-video/internal/application/usecase/scheduler"
	"github.com/khoahotran/lecture-video/internal/bootstrap"
	"github.com/khoahotran/lecture-video/internal/config"
)

func main() {
	fmt.Println("Starting Lecture Video Scheduler...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}
	appLogger := bootstrap.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, appLogger, "lecture-video-scheduler")
	if err != nil {
		appLogger.Fatal("Cannot initialize application", err)
	}
	defer app.Close(context.Background())

	loops := scheduler.Loops(cfg, app.UC.Reconcile, app.UC.Host, app.UC.Ingest, app.UC.Retranscode)
	s, err := scheduler.New(loops, appLogger)
	if err != nil {
		appLogger.Fatal("Cannot register control loops", err)
	}
	s.Start()

	<-ctx.Done()
	appLogger.Info("Stopping scheduler...")
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		appLogger.Error("Scheduler did not stop cleanly", err)
	}
}
