package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/adapters/event"
	"github.com/khoahotran/lecture-video/internal/bootstrap"
	"github.com/khoahotran/lecture-video/internal/config"
)

func main() {
	fmt.Println("Starting Lecture Video Worker...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}
	appLogger := bootstrap.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, appLogger, "lecture-video-worker")
	if err != nil {
		appLogger.Fatal("Cannot initialize application", err)
	}
	defer app.Close(context.Background())

	consumer := event.NewTaskConsumer(cfg, appLogger)
	defer consumer.Close()

	appLogger.Info("Worker listening", zap.String("topic", event.TopicVideoTasks), zap.String("group_id", cfg.Kafka.GroupID))
	if err := consumer.Run(ctx, app.TaskDispatcher().Handle); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Task consumer stopped", err)
		os.Exit(1)
	}
	appLogger.Info("Worker stopped")
}
