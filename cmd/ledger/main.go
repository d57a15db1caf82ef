package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"catch-forecast/internal/common"
	"catch-forecast/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: ledger <command> [flags]

commands:
  import [-data DIR] [-source NAME] FILE        append a CSV export or saved history page
  export [-data DIR] [-o FILE]                  write the ledger as CSV
  batches [-data DIR]                           list import batches
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	dataPath := fs.String("data", os.Getenv(common.EnvDataPath), "Ledger data directory")
	sourceName := fs.String("source", "", "Batch source label (defaults to the file name)")
	output := fs.String("o", "", "Output file (defaults to stdout)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	if *dataPath == "" {
		log.Fatal().Msg("ledger data directory is required (-data or DATA_PATH)")
	}

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dataPath).Msg("Failed to open ledger")
	}
	defer store.Close()

	switch os.Args[1] {
	case "import":
		if fs.NArg() != 1 {
			log.Fatal().Msg("import takes exactly one file")
		}
		err = importFile(store, fs.Arg(0), *sourceName)
	case "export":
		err = exportCSV(store, *output)
	case "batches":
		err = listBatches(store, os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("Ledger command failed")
	}
}

// importFile appends a ledger CSV, or a saved history page when the file
// ends in .html or .htm.
func importFile(store *storage.Store, path, source string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	read := storage.ReadCSV
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		read = storage.ReadHistoryPage
	}
	raws, err := read(f)
	if err != nil {
		return err
	}
	if source == "" {
		source = filepath.Base(path)
	}

	batch, err := store.Append(source, raws, time.Now())
	if err != nil {
		return err
	}
	log.Info().
		Uint64("batch", batch.ID).
		Str("source", batch.Source).
		Int("rows", batch.Rows).
		Msg("Ledger rows imported")
	return nil
}

func exportCSV(store *storage.Store, output string) error {
	raws, err := store.LoadRaw(context.Background())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := storage.WriteCSV(w, raws); err != nil {
		return err
	}
	log.Info().Int("rows", len(raws)).Msg("Ledger exported")
	return nil
}

func listBatches(store *storage.Store, w io.Writer) error {
	batches, err := store.Batches()
	if err != nil {
		return err
	}
	total, err := store.Count()
	if err != nil {
		return err
	}
	for _, b := range batches {
		fmt.Fprintf(w, "%4d  %s  %5d rows  %s\n", b.ID, b.At.Format(time.RFC3339), b.Rows, b.Source)
	}
	fmt.Fprintf(w, "%d batches, %d rows\n", len(batches), total)
	return nil
}
