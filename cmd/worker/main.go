package main

import (
	"log"
	"os"
	"os/signal"
	"promptx/cmd"
	"promptx/internal/config"
	"promptx/internal/core"
	"promptx/internal/database"
	"promptx/internal/messaging"
	"syscall"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`

	Storage  config.StorageConfig
	Research config.ResearchConfig
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cfg.Storage.NewProvider()
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	builder, err := core.NewPayloadBuilder(core.BuilderConfig{})
	if err != nil {
		log.Fatalf("Failed to create payload builder: %v", err)
	}

	processor := core.NewTaskProcessor(
		db, store, reciever, builder,
		cfg.Research.NewSearcher(), cfg.Research.NewPageFetcher(),
		cfg.Storage.WorkspaceBucket,
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutdown signal received, stopping worker...")
		processor.Stop()
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")
	processor.Start()

	log.Println("Worker process stopped.")
}
