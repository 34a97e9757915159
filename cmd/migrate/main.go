package main

import (
	"log"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/model"
	"ai-chat-be/pkg/database"
)

func main() {
	cfg := config.Load()

	driver := database.DriverPostgres
	if cfg.App.Store == database.DriverSQLite {
		driver = database.DriverSQLite
	}
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.Open(driver, cfg.Database.Connection, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	if driver == database.DriverPostgres {
		log.Println("Step 1: Setting up extensions...")
		for _, sql := range model.SetupSQL {
			if err := db.Exec(sql).Error; err != nil {
				log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
			}
		}
	}

	log.Println("Step 2: Running AutoMigrate...")
	if err := db.AutoMigrate(&model.ChatSession{}, &model.ChatMessage{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	if driver == database.DriverPostgres {
		log.Println("Step 3: Applying defaults and constraints...")
		for _, sql := range model.PostMigrationSQL {
			if err := db.Exec(sql).Error; err != nil {
				log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
			}
		}
	}

	log.Println("Success: database migration completed")
}
