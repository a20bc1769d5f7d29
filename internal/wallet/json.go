package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

// ValidationError lists every field of a request that does not match the
// record schema.
type ValidationError struct {
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	Unknown []string `json:"unknown,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown fields: "+strings.Join(e.Unknown, ", "))
	}
	return "invalid wallet record: " + strings.Join(parts, "; ")
}

// DecodeStrict parses a single JSON object into a Record, requiring every
// field to be present and typed as declared: integers must be integral
// numbers, floats any finite number, wallet_address a string.
func DecodeStrict(data []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("invalid JSON object: %w", err)
	}

	verr := &ValidationError{}
	var rec Record
	for _, c := range columns {
		msg, ok := raw[c.Name]
		if !ok || bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			verr.Missing = append(verr.Missing, c.Name)
			continue
		}
		if c.Kind == KindString {
			if err := json.Unmarshal(msg, &rec.WalletAddress); err != nil {
				verr.Invalid = append(verr.Invalid, c.Name)
			}
			continue
		}

		var num json.Number
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		if err := dec.Decode(&num); err != nil {
			verr.Invalid = append(verr.Invalid, c.Name)
			continue
		}
		v, err := num.Float64()
		if err != nil || math.IsInf(v, 0) {
			verr.Invalid = append(verr.Invalid, c.Name)
			continue
		}
		if err := rec.Set(c.Name, v); err != nil {
			verr.Invalid = append(verr.Invalid, c.Name)
		}
	}

	for name := range raw {
		if _, ok := columnIndex[name]; !ok {
			verr.Unknown = append(verr.Unknown, name)
		}
	}
	sort.Strings(verr.Unknown)

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 || len(verr.Unknown) > 0 {
		return Record{}, verr
	}
	return rec, nil
}

// WriteSamplesJSON writes records as an indented JSON array of objects.
func WriteSamplesJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// LoadSamplesJSON reads a JSON array of records written by WriteSamplesJSON.
func LoadSamplesJSON(filePath string) ([]Record, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := DecodeStrict(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: sample %d: %w", filePath, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
