package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dpavlenko/marksync/internal/agent"
	"github.com/dpavlenko/marksync/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := agent.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
