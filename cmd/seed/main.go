package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/NagallaThanvi/unilink/config"
	"github.com/NagallaThanvi/unilink/database"
)

func main() {
	if err := config.LoadENV(); err != nil {
		log.Println("Warning: .env file not loaded, using system environment variables")
	}

	store, err := database.StartGORM()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("UniLink - Database Seeding")
	fmt.Println(separator)
	fmt.Println()

	if err := database.RunSeeds(store.GetDB()); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	fmt.Println()
	fmt.Println(separator)
	fmt.Println("🎉 Seeding completed successfully!")
	fmt.Println(separator)
	fmt.Println()
	fmt.Println("Admin user created from ADMIN_EMAIL and ADMIN_PASSWORD environment variables.")
	fmt.Println("If not set, admin user creation is skipped.")
}
