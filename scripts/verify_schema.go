package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"emacross-core/pkg/db"
)

func main() {
	defaultPath := os.Getenv("DB_PATH")
	if defaultPath == "" {
		defaultPath = "./data/signals.db"
	}
	dbPath := flag.String("db", defaultPath, "sqlite database to verify")
	flag.Parse()
	fmt.Printf("Verifying database at: %s\n", *dbPath)

	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer database.Close()

	missing := 0
	for i, table := range []string{"candles", "analysis_runs", "signals"} {
		fmt.Printf("\n%d. Verifying %s table...\n", i+1, table)
		var name string
		err := database.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			fmt.Printf("❌ %s table MISSING\n", table)
			missing++
			continue
		}
		fmt.Printf("✓ %s table exists\n", table)
	}

	fmt.Println("\n4. Verifying strategy column in analysis_runs...")
	var sqlSchema string
	err = database.DB.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='analysis_runs'").Scan(&sqlSchema)
	if err == nil && strings.Contains(sqlSchema, "strategy") {
		fmt.Println("✓ strategy column exists")
	} else {
		fmt.Println("❌ strategy column MISSING")
		missing++
	}

	if missing > 0 {
		os.Exit(1)
	}
}
