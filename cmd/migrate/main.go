package main

import (
	"log"
	"os"

	"paraderos-agent/internal/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	var keys int
	if err := db.Get(&keys, "SELECT COUNT(*) FROM kv_store"); err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}
	log.Printf("Migration completed successfully, kv_store holds %d keys", keys)
}
