package features

import (
	"fmt"
	"sort"

	"wallet-risk/internal/wallet"
)

// Vector is a feature vector together with its column names.
type Vector struct {
	Names  []string
	Values []float64
}

// Selector projects raw and derived features onto a fixed schema.
type Selector struct {
	schema Schema
}

// NewSelector rejects empty schemas and duplicate column names.
func NewSelector(schema []string) (*Selector, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("feature schema is empty")
	}
	seen := make(map[string]bool, len(schema))
	for _, c := range schema {
		if c == "" {
			return nil, fmt.Errorf("feature schema contains an empty column name")
		}
		if seen[c] {
			return nil, fmt.Errorf("feature schema lists %s twice", c)
		}
		seen[c] = true
	}
	return &Selector{schema: append(Schema(nil), schema...)}, nil
}

// Schema returns a copy of the selector's column order.
func (s *Selector) Schema() Schema { return append(Schema(nil), s.schema...) }

// Len is the width of every selected vector.
func (s *Selector) Len() int { return len(s.schema) }

// Select returns the schema columns in order, taken from raw or derived.
// Missing columns are never defaulted.
func (s *Selector) Select(raw, derived wallet.Row) ([]float64, error) {
	out := make([]float64, len(s.schema))
	var missing []string
	for i, c := range s.schema {
		rv, inRaw := raw[c]
		dv, inDerived := derived[c]
		switch {
		case inRaw && inDerived:
			return nil, fmt.Errorf("%w: %s", ErrFeatureCollision, c)
		case inRaw:
			out[i] = rv
		case inDerived:
			out[i] = dv
		default:
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFeatureError{Columns: missing}
	}
	return out, nil
}

// SelectRow is Select with the column names attached.
func (s *Selector) SelectRow(raw, derived wallet.Row) (Vector, error) {
	values, err := s.Select(raw, derived)
	if err != nil {
		return Vector{}, err
	}
	return Vector{Names: s.Schema(), Values: values}, nil
}

// ValidateSchema checks, before any row is seen, that every schema column
// is produced by exactly one of the raw columns or the derived names.
func (s *Selector) ValidateSchema(rawColumns, derivedNames []string) error {
	raw := make(map[string]bool, len(rawColumns))
	for _, c := range rawColumns {
		raw[c] = true
	}
	var collisions []string
	derived := make(map[string]bool, len(derivedNames))
	for _, c := range derivedNames {
		derived[c] = true
		if raw[c] {
			collisions = append(collisions, c)
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return fmt.Errorf("%w: %v", ErrFeatureCollision, collisions)
	}

	var missing []string
	for _, c := range s.schema {
		if !raw[c] && !derived[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingFeatureError{Columns: missing}
	}
	return nil
}
