package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/Lllllllleong/financialentityflow/internal/services"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found; using the process environment.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper, err := services.NewReaper(ctx)
	if err != nil {
		slog.Error("Critical: Reaper initialization failed", "error", err)
		os.Exit(1)
	}
	defer reaper.Close()

	c := cron.New()
	_, err = c.AddFunc(reaper.Schedule, func() {
		if _, err := reaper.Process(ctx); err != nil {
			slog.Error("Reaper sweep failed", "error", err)
		}
	})
	if err != nil {
		slog.Error("Invalid reaper schedule", "schedule", reaper.Schedule, "error", err)
		os.Exit(1)
	}
	c.Start()
	slog.Info("Status reaper started.", "schedule", reaper.Schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("Status reaper stopped.")
}
