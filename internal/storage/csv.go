package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"catch-forecast/internal/records"

	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog/log"
)

// headerAliases maps the column titles used by the hand-kept ledger
// spreadsheet onto RawRecord's csv tags.
var headerAliases = map[string]string{
	"日付":   "date",
	"天気":   "weather",
	"水温":   "water_temp",
	"潮":    "tide",
	"来場者数": "visitors",
	"魚種":   "species",
	"釣果数":  "catch_count",
	"サイズ":  "size",
	"釣り場":  "location",
	"コメント": "comment",
}

// ReadCSV decodes a ledger export. The header may use the Japanese column
// titles or the English field names. Unknown columns are ignored. Rows with
// the wrong number of fields are skipped with a warning.
func ReadCSV(r io.Reader) ([]records.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header = canonicalHeader(header)

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}

	var out []records.RawRecord
	skipped := 0
	for line := 2; ; line++ {
		var raw records.RawRecord
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, csvutil.ErrFieldCount) {
			skipped++
			log.Warn().Int("line", line).Int("fields", len(dec.Record())).Int("expected", len(header)).Msg("Skipping ledger row with wrong field count")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode csv line %d: %w", line, err)
		}
		out = append(out, raw)
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("rows", len(out)).Msg("Ledger CSV had malformed rows")
	}
	return out, nil
}

func canonicalHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		out[i] = strings.ToLower(h)
	}
	return out
}

// WriteCSV encodes rows with the English header.
func WriteCSV(w io.Writer, raws []records.RawRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(raws) == 0 {
		if err := enc.EncodeHeader(records.RawRecord{}); err != nil {
			return fmt.Errorf("encode csv header: %w", err)
		}
	}
	for _, raw := range raws {
		if err := enc.Encode(raw); err != nil {
			return fmt.Errorf("encode csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVSource reads the ledger from a CSV file on every call.
type CSVSource struct {
	Path string
}

func (s CSVSource) LoadRaw(ctx context.Context) ([]records.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}
