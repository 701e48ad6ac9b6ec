// Command riskhistory exports stored predictions for offline review. It opens
// the history database exclusively, so stop the server first.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riskform/internal/codebook"
	"riskform/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "./data", "Data directory holding riskform.db")
		outputPath = flag.String("output", "-", "Output file path (- for stdout)")
		format     = flag.String("format", "csv", "Output format: csv or jsonl")
		days       = flag.Int("days", 0, "Number of days to export (0 for all)")
		cbPath     = flag.String("codebook", "", "Codebook YAML for the column order (built-in when empty)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cb := codebook.Default()
	if *cbPath != "" {
		loaded, err := codebook.LoadFile(*cbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("codebook load failed")
		}
		cb = loaded
	}

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Str("data", *dataPath).Msg("failed to open history")
	}
	defer store.Close()

	total, err := store.Count()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to count records")
	}

	end := time.Now().UTC()
	start := time.Unix(0, 0).UTC()
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}
	records, err := store.Range(start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read history")
	}
	log.Info().Int("selected", len(records)).Int("total", total).Msg("exporting predictions")

	var out io.Writer = os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create output file")
		}
		defer f.Close()
		out = f
	}

	switch *format {
	case "csv":
		err = storage.WriteCSV(out, cb.Order(), records)
	case "jsonl":
		err = writeJSONL(out, records)
	default:
		err = fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("export failed")
	}

	if len(records) > 0 {
		modes := make(map[string]int)
		for _, r := range records {
			modes[r.Mode]++
		}
		log.Info().
			Time("from", records[0].CreatedAt).
			Time("to", records[len(records)-1].CreatedAt).
			Interface("by_mode", modes).
			Msg("export complete")
	}
}

// writeJSONL writes one record per line.
func writeJSONL(w io.Writer, records []storage.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
