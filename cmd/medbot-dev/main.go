package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"medbot/internal/app"
	"medbot/internal/conversation"
	"medbot/migrations"
)

func main() {
	botName := flag.String("bot", "search", "which bot to run: search or admin")
	flag.Parse()

	profile := conversation.SearchBot
	switch *botName {
	case "search":
	case "admin":
		profile = conversation.AdminBot
	default:
		log.Fatalf("Unknown bot %q, expected search or admin", *botName)
	}

	// .env is read before the container settings are exported so they win
	_ = godotenv.Load()

	ctx := context.Background()

	log.Println("Starting MongoDB testcontainer...")
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		log.Fatalf("Failed to start MongoDB container: %v", err)
	}
	defer func() {
		log.Println("Stopping MongoDB container...")
		if err := mongoContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	mongoURI, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("Failed to get MongoDB connection string: %v", err)
	}
	log.Printf("MongoDB started at %s", mongoURI)

	log.Println("Starting ClickHouse testcontainer...")
	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		log.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	defer func() {
		log.Println("Stopping ClickHouse container...")
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	host, err := clickhouseContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		log.Fatalf("Failed to get container port: %v", err)
	}
	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	if err := migrate(host, port.Int()); err != nil {
		log.Fatalf("Failed to migrate ClickHouse: %v", err)
	}

	// Set environment variables for the application
	os.Setenv("MONGO_URI", mongoURI)
	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("WEBHOOK_MODE", "false")

	// Set PORT for HTTP server if not already set
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN not set. Please set it in your .env file or environment.")
		log.Println("   The bot will fail to start without a valid token.")
	}

	if os.Getenv("SUPERUSER_IDS") == "" {
		log.Println("⚠️  SUPERUSER_IDS not set. Please set it in your .env file or environment.")
		log.Println("   Nobody will be able to ban users or read statistics.")
	}

	log.Printf("Starting %s bot with MongoDB and ClickHouse backends...", profile)
	fmt.Println()

	application, err := app.New(profile)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Run()
	}()

	select {
	case <-sigChan:
		log.Println("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Application error: %v", err)
		}
	}
}

func migrate(host string, port int) error {
	db, err := migrations.Open(migrations.DSN(host, port, "default", "default", "devpassword", false))
	if err != nil {
		return err
	}
	defer db.Close()

	log.Println("Applying ClickHouse migrations...")
	return migrations.Up(db)
}
