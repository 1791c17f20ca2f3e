package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/adapters/memory"
	pg "sponsorhub/internal/adapters/postgres"
	"sponsorhub/internal/adapters/stripecsv"
	"sponsorhub/internal/config"
	"sponsorhub/internal/domain"
	"sponsorhub/internal/ports"
	"sponsorhub/internal/services/importer"
	"sponsorhub/internal/services/resolver"
	"sponsorhub/internal/services/unmapped"
	"sponsorhub/pkg/logger"
)

// Operator CLI: import a Stripe CSV export and print the summary. -dry-run
// runs the whole pipeline against an in-memory store, which is a cheap way to
// preview what a file would do before touching the database.
func main() {
	file := flag.String("file", "", "path to the Stripe CSV export")
	dryRun := flag.Bool("dry-run", false, "run against an in-memory store, write nothing")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil && !*dryRun {
		log.Printf("warning: %v", err)
	}

	ctx := logger.ToContext(context.Background(), logger.New(cfg.LogLevel, cfg.Env))

	var store ports.TxStore
	if *dryRun {
		store = memory.New()
	} else {
		if cfg.DatabaseURL == "" {
			log.Fatal("DATABASE_URL is required (or use -dry-run)")
		}
		if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate error: %v", err)
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer db.Close()
		store = db
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open export: %v", err)
	}
	defer f.Close()

	rows, rejects, err := stripecsv.ReadAll(f)
	if err != nil {
		log.Fatalf("read export: %v", err)
	}

	clock := clockwork.NewRealClock()
	res := resolver.New(clock)
	queue := unmapped.New(store, res, clock)
	svc := importer.New(store, queue, res, clock)
	queue.AttachImporter(svc)

	result := svc.ImportAll(ctx, rows)
	result.Failed += len(rejects)
	result.Errors = append(rejects, result.Errors...)

	printSummary(result, *dryRun)
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func printSummary(result domain.BatchResult, dryRun bool) {
	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	fmt.Printf("imported: %d  skipped: %d  queued: %d  failed: %d%s\n",
		result.Imported, result.Skipped, result.Queued, result.Failed, mode)
	for _, e := range result.Errors {
		fmt.Printf("  row %d: %s (%q, amount %d, txn %s)\n",
			e.Row, e.Message, e.Description, e.AmountMinor, e.TransactionID)
	}
}
