package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
)

// serials issues a batch of serial numbers and prints one per line
func main() {
	count := flag.Int("n", 10, "number of serials to generate")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := models.AutoMigrate(conn.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	serials, err := services.NewSerialRegistry(conn.DB).IssueBatch(context.Background(), *count)
	if err != nil {
		log.Fatalf("Failed to generate serials: %v", err)
	}

	for _, s := range serials {
		fmt.Println(s.Serial)
	}
	log.Printf("Generated %d serials", len(serials))
}
