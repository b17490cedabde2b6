// Command videoctl runs operator maintenance against the video pipeline.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/khoahotran/lecture-video/internal/bootstrap"
	"github.com/khoahotran/lecture-video/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connect := func(ctx context.Context) (Maintainer, func(), error) {
		cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
		if err != nil {
			return nil, nil, err
		}
		app, err := bootstrap.New(ctx, cfg, bootstrap.NewLogger(cfg), "lecture-video-ctl")
		if err != nil {
			return nil, nil, err
		}
		return app.UC.Maintenance, func() { app.Close(context.Background()) }, nil
	}

	log.SetFlags(0)
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, connect))
}
