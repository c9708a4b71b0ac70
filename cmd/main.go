package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/ielts-tutor-backend/internal/app"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/shutdown"
)

func main() {
	log, err := app.NewLogger(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Loading configuration...")
	cfg, err := app.LoadConfig(log)
	if err != nil {
		log.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("App init failed", "error", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
