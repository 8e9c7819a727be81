// Command club-import loads a CSV export into the portal database without
// going through the HTTP API.
//
//	club-import -kind attendance -file training.csv [-dry-run]
//	club-import -kind roster -file mitglieder.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/intermernet/clubportal/internal/config"
	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/importer"
)

func main() {
	kind := flag.String("kind", "attendance", "what the file contains: attendance or roster")
	file := flag.String("file", "", "path to the CSV file")
	dryRun := flag.Bool("dry-run", false, "parse and match without writing anything")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *kind != "attendance" && *kind != "roster" {
		log.Fatalf("FATAL: unknown -kind %q, use attendance or roster", *kind)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found, using environment variables from the system.")
	}
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("FATAL: Failed to load application configuration: %v", err)
	}

	db, err := database.NewService(cfg.DbFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer f.Close()

	if err := run(context.Background(), cfg, db, *kind, f, filepath.Base(*file), *dryRun); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, db *database.Service, kind string, f *os.File, name string, dryRun bool) error {
	var dry *importer.DryRun
	if dryRun {
		dry = &importer.DryRun{Reads: db}
	}

	var (
		summary interface{}
		record  database.ImportRun
		errs    []error
	)
	switch kind {
	case "attendance":
		im := &importer.Importer{
			Store:           db,
			Location:        cfg.Location,
			DefaultLocation: cfg.Settings.ImportLocation,
			StartHour:       cfg.Settings.ImportStartHour,
		}
		if dry != nil {
			im.Store = dry
		}
		sum, err := im.Run(ctx, f)
		if err != nil {
			return err
		}
		summary, record, errs = sum, sum.Record(name), sum.Errs.WrappedErrors()
	case "roster":
		ri := &importer.RosterImporter{Store: db, Location: cfg.Location}
		if dry != nil {
			ri.Store = dry
		}
		sum, err := ri.Run(ctx, f)
		if err != nil {
			return err
		}
		summary, record, errs = sum, sum.Record(name), sum.Errs.WrappedErrors()
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	for _, err := range errs {
		fmt.Fprintln(os.Stderr, "error:", err)
	}

	if dry != nil {
		fmt.Fprintf(os.Stderr, "dry run: %d events and %d writes skipped\n", len(dry.Events), dry.Writes)
		return nil
	}
	return db.RecordImportRun(ctx, record)
}
