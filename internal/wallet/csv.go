package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// LoadLabeledCSV reads a labeled dataset from a CSV file.
func LoadLabeledCSV(filePath string) ([]Labeled, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := ReadLabeledCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	log.Info().
		Str("file", filePath).
		Int("rows", len(rows)).
		Msg("CSV dataset loaded")

	return rows, nil
}

// ReadLabeledCSV parses a CSV with one wallet per row and a target column.
// Every numeric record column must be present in the header; wallet_address
// is optional. Column order is free.
func ReadLabeledCSV(r io.Reader) ([]Labeled, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[col] = i
	}

	var missing []string
	for _, name := range NumericColumns() {
		if _, ok := indices[name]; !ok {
			missing = append(missing, name)
		}
	}
	targetIdx, ok := indices[TargetColumn]
	if !ok {
		missing = append(missing, TargetColumn)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("CSV header missing columns: %v", missing)
	}

	var out []Labeled
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var rec Record
		for _, c := range columns {
			idx, ok := indices[c.Name]
			if !ok {
				continue
			}
			if c.Kind == KindString {
				rec.WalletAddress = record[idx]
				continue
			}
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, c.Name, err)
			}
			if err := rec.Set(c.Name, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}

		target, err := parseTarget(record[targetIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, Labeled{Record: rec, Target: target})
	}

	return out, nil
}

func parseTarget(s string) (int, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid target %q: %w", s, err)
	}
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, fmt.Errorf("target must be 0 or 1, got %v", v)
}

// SaveLabeledCSV writes a labeled dataset to filePath.
func SaveLabeledCSV(filePath string, rows []Labeled) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := WriteLabeledCSV(file, rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteLabeledCSV writes rows with every record column followed by target.
func WriteLabeledCSV(w io.Writer, rows []Labeled) error {
	cw := csv.NewWriter(w)
	header := append(columnNames(), TargetColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		fields := append(formatRecord(&row.Record), strconv.Itoa(row.Target))
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecordsCSV writes unlabeled records, one per row.
func WriteRecordsCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columnNames()); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(formatRecord(&records[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func columnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func formatRecord(r *Record) []string {
	fields := make([]string, len(columns))
	for i, c := range columns {
		switch c.Kind {
		case KindString:
			fields[i] = r.WalletAddress
		case KindInteger:
			v, _ := r.Value(c.Name)
			fields[i] = strconv.FormatInt(int64(v), 10)
		default:
			v, _ := r.Value(c.Name)
			fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	return fields
}
