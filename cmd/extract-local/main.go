package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/financialentityflow/internal/services"
)

func main() {
	var opts services.LocalOptions
	flag.StringVar(&opts.InputPath, "in", "", "document to process (pdf, html or text)")
	flag.StringVar(&opts.GoldPath, "gold", "", "optional gold-standard JSON to evaluate against")
	flag.StringVar(&opts.DBPath, "db", "", "sqlite database path (a temporary one when empty)")
	flag.StringVar(&opts.TaxonomyPath, "taxonomy", "", "taxonomy YAML (the embedded dictionary when empty)")
	flag.BoolVar(&opts.Oracle, "oracle", false, "use the configured hosted providers")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	_ = godotenv.Load()

	if opts.InputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: extract-local -in <file> [-gold gold.json] [-db path] [-oracle]")
		os.Exit(2)
	}

	report, err := services.RunLocal(context.Background(), opts)
	if err != nil {
		slog.Error("Local run failed", "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("Failed to write report", "error", err)
		os.Exit(1)
	}
}
