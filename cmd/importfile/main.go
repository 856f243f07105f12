package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/meterwerk/meter-import-worker/internal/anomaly"
	"github.com/meterwerk/meter-import-worker/internal/db"
	"github.com/meterwerk/meter-import-worker/internal/extract"
	"github.com/meterwerk/meter-import-worker/internal/importer"
	"github.com/meterwerk/meter-import-worker/internal/logging"
	"github.com/meterwerk/meter-import-worker/internal/repository"
)

func main() {
	filePath := flag.String("file", "", "CSV file to import (first row is the header)")
	importType := flag.String("type", "customers", "import type: customers or readings")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: importfile -file <path.csv> [-type customers|readings]")
		os.Exit(2)
	}

	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(2)
	}

	logger, err := logging.NewLogger("meter-import-file")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rows, err := readRows(*filePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read input:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to database:", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.NewRepository(pool)
	svc := importer.NewService(repo, repo, repo, anomaly.NewDetector(3.0, 3), logger)

	var outcomes []importer.Outcome
	switch *importType {
	case "customers", "kunden":
		outcomes = svc.RunCustomerImport(ctx, rows)
	case "readings", "verbrauch":
		outcomes = svc.RunReadingImport(ctx, rows)
	default:
		fmt.Fprintf(os.Stderr, "unknown import type %q\n", *importType)
		os.Exit(2)
	}

	errorCount := 0
	for i, o := range outcomes {
		fmt.Printf("%4d  %-24s %s\n", i+1, o.Kind, o.Message)
		if o.Kind == importer.KindError {
			errorCount++
		}
	}
	fmt.Printf("processed %d rows, %d errors\n", len(outcomes), errorCount)

	if errorCount > 0 {
		os.Exit(1)
	}
}

// readRows decodes a CSV file into the loosely-typed row sequence the
// pipelines consume. The first record supplies the column labels.
func readRows(path string) ([]extract.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	header := records[0]
	rows := make([]extract.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(extract.Row, len(header))
		for i, label := range header {
			if i < len(record) {
				row[label] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
