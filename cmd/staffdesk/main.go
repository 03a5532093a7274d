package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"staffdesk/config"
	"staffdesk/core/appbootstrap"
	"staffdesk/core/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file; environment variables override it")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("staffdesk: no .env file found, relying on environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("staffdesk: config: %v", err)
	}
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appbootstrap.Run(ctx, cfg, logger); err != nil {
		logger.Errorf("staffdesk: %v", err)
		os.Exit(1)
	}
}
