package db

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath, migrationsDir string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	database, err := NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Print("Running migrations...")
		if err := database.MigrateUp(migrationsDir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Print("All migrations applied")

	case "down":
		if err := database.MigrateDown(migrationsDir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Print("Rolled back one migration")

	case "version":
		version, dirty, err := database.MigrateVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		state := "clean"
		if dirty {
			state = "dirty"
		}
		fmt.Printf("version %d (%s)\n", version, state)

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: ph-report migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version number %q: %v", args[1], err)
		}
		if err := database.MigrateForce(migrationsDir, version); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Forced migration version to %d", version)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Print(`Usage: ph-report [flags] migrate <action>

Actions:
  up               apply all pending migrations
  down             roll back the most recent migration
  version          print the current migration version
  force <version>  force the version after a dirty migration
  help             show this help
`)
}
