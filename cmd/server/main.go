package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/elite-business/case-tools-new-sub005/internal/config"
	"github.com/elite-business/case-tools-new-sub005/router"
)

func main() {
	log.Println("Starting CaseTools API server...")

	configPath := os.Getenv("CASETOOLS_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Keep all timestamp math in UTC
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set timezone to UTC: %v", err)
	}
	log.Println("Connected to database successfully")

	var redisClient *redis.Client
	if config.App.RedisURL != "" {
		opts, err := redis.ParseURL(config.App.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		log.Println("Redis client configured")
	} else {
		log.Println("REDIS_URL not set, running without Redis (cache and dedup fast path disabled)")
	}

	r := router.NewGinRouter(pg, redisClient)

	addr := ":" + config.App.Port
	log.Printf("Listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
