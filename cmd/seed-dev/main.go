package main

import (
	"context"
	"log"
	"os"

	mongoTC "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"booksdb/internal/app"
)

func main() {
	ctx := context.Background()

	log.Println("Starting MongoDB testcontainer...")

	mongoContainer, err := mongoTC.Run(ctx,
		"mongo:7.0",
		mongoTC.WithUsername("root"),
		mongoTC.WithPassword("devpassword"),
	)
	if err != nil {
		log.Fatalf("Failed to start MongoDB container: %v", err)
	}

	defer func() {
		log.Println("Stopping MongoDB container...")
		if err := mongoContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("Failed to get connection string: %v", err)
	}
	log.Printf("MongoDB started at %s", uri)

	os.Setenv("MONGO_URI", uri)
	os.Setenv("USE_MOCK_DB", "false")
	if os.Getenv("MONGO_DATABASE") == "" {
		os.Setenv("MONGO_DATABASE", "booksdb")
	}
	if os.Getenv("SEED_ACCOUNT_PASSWORD") == "" {
		os.Setenv("SEED_ACCOUNT_PASSWORD", "devpassword")
	}
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}

	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	defer application.Shutdown() //nolint:errcheck

	// Seed twice and report status; the second run must change nothing
	for _, command := range []string{app.CommandUp, app.CommandUp, app.CommandStatus} {
		log.Printf("Running %s...", command)
		if err := application.Run(ctx, command); err != nil {
			log.Printf("Command %s failed: %v", command, err)
			return
		}
	}
}
