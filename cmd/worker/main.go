package main

import (
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/elite-business/case-tools-new-sub005/internal/config"
	"github.com/elite-business/case-tools-new-sub005/services"
	"github.com/elite-business/case-tools-new-sub005/workers"
)

func main() {
	log.Println("Starting CaseTools workers...")

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

	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set timezone to UTC: %v", err)
	}
	log.Println("Connected to database successfully")

	// Initialize services
	slaService := services.NewSLAService(pg)
	caseService := services.NewCaseService(pg, nil, slaService)
	notificationService := services.NewNotificationService(pg)
	reportService := services.NewReportService(pg, caseService)

	// Initialize workers
	notificationWorker := workers.NewNotificationWorker(pg, notificationService)
	slaWorker := workers.NewSLAWorker(pg, notificationService)
	reportScheduler := workers.NewReportScheduler(reportService)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		notificationWorker.StartNotificationWorker()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		slaWorker.StartSLAWorker()
	}()

	if err := reportScheduler.Start(); err != nil {
		log.Fatalf("Failed to start report scheduler: %v", err)
	}

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down workers...")
	reportScheduler.Stop()
	os.Exit(0)
}
