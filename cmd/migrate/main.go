// Command migrate applies the embedded warehouse schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/channel-warehouse/internal/config"
	"github.com/ignite/channel-warehouse/internal/repository/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	listOnly := flag.Bool("list", false, "list warehouse tables and views instead of migrating")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	if *listOnly {
		tables, err := postgres.WarehouseTables(ctx, db)
		if err != nil {
			log.Fatal(err)
		}
		for _, t := range tables {
			fmt.Println(" ", t)
		}
		fmt.Printf("Total: %d tables\n", len(tables))
		return
	}

	migrations, err := postgres.Migrations()
	if err != nil {
		log.Fatalf("read migrations: %v", err)
	}
	for _, m := range migrations {
		fmt.Printf("  %s\n", m.Name)
	}

	n, err := postgres.Migrate(ctx, db)
	if err != nil {
		log.Fatalf("migrate: %v (%d of %d applied)", err, n, len(migrations))
	}
	log.Printf("Done: %d migrations applied", n)
}
