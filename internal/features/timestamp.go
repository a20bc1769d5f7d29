package features

import (
	"fmt"
	"math"
	"time"

	"wallet-risk/internal/wallet"
)

// Kind is one calendar or cyclical feature derived from a timestamp.
type Kind string

const (
	KindDay       Kind = "day"
	KindDayOfWeek Kind = "dayofweek"
	KindDayOfYear Kind = "dayofyear"
	KindWeek      Kind = "week"
	KindHour      Kind = "hour"
	KindMinute    Kind = "minute"
	KindSecond    Kind = "second"
	KindHourSin   Kind = "hour_sin"
	KindHourCos   Kind = "hour_cos"
)

// AllKinds lists every recognized kind in emission order.
var AllKinds = []Kind{
	KindDay, KindDayOfWeek, KindDayOfYear, KindWeek,
	KindHour, KindMinute, KindSecond, KindHourSin, KindHourCos,
}

// maxEpochSeconds is 9999-12-31T23:59:59Z.
const maxEpochSeconds = 253402300799

func (k Kind) valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TimestampSpec selects the derived features emitted for one timestamp column.
type TimestampSpec struct {
	Column string `yaml:"column" json:"column"`
	Kinds  []Kind `yaml:"features" json:"features"`
}

// DefaultTimestampSpecs returns the timestamp configuration the production
// model is trained with.
func DefaultTimestampSpecs() []TimestampSpec {
	return []TimestampSpec{
		{Column: "borrow_timestamp", Kinds: []Kind{KindDay, KindDayOfYear, KindWeek}},
		{Column: "first_tx_timestamp", Kinds: append([]Kind(nil), AllKinds...)},
		{Column: "last_tx_timestamp", Kinds: []Kind{KindWeek, KindDayOfYear}},
		{Column: "risky_first_tx_timestamp", Kinds: append([]Kind(nil), AllKinds...)},
		{Column: "risky_last_tx_timestamp", Kinds: []Kind{KindDayOfYear}},
	}
}

// TimestampExtractor decomposes epoch-second timestamps into the configured
// calendar features. It holds no mutable state.
type TimestampExtractor struct {
	specs []TimestampSpec
	kinds map[string][]Kind
}

// NewTimestampExtractor validates specs and normalizes each column's kinds to
// emission order. Unknown kinds and duplicate columns are rejected.
func NewTimestampExtractor(specs []TimestampSpec) (*TimestampExtractor, error) {
	e := &TimestampExtractor{kinds: make(map[string][]Kind, len(specs))}

	for _, spec := range specs {
		if spec.Column == "" {
			return nil, fmt.Errorf("timestamp spec with empty column name")
		}
		if _, dup := e.kinds[spec.Column]; dup {
			return nil, fmt.Errorf("timestamp column %s configured twice", spec.Column)
		}

		requested := make(map[Kind]bool, len(spec.Kinds))
		for _, k := range spec.Kinds {
			if !k.valid() {
				return nil, fmt.Errorf("timestamp column %s: unknown feature kind %q", spec.Column, k)
			}
			requested[k] = true
		}

		ordered := make([]Kind, 0, len(requested))
		for _, k := range AllKinds {
			if requested[k] {
				ordered = append(ordered, k)
			}
		}
		e.kinds[spec.Column] = ordered
		e.specs = append(e.specs, TimestampSpec{Column: spec.Column, Kinds: ordered})
	}

	return e, nil
}

// Specs returns the normalized configuration.
func (e *TimestampExtractor) Specs() []TimestampSpec {
	out := make([]TimestampSpec, len(e.specs))
	for i, s := range e.specs {
		out[i] = TimestampSpec{Column: s.Column, Kinds: append([]Kind(nil), s.Kinds...)}
	}
	return out
}

// Columns returns the configured timestamp columns in order.
func (e *TimestampExtractor) Columns() []string {
	cols := make([]string, len(e.specs))
	for i, s := range e.specs {
		cols[i] = s.Column
	}
	return cols
}

// OutputNames returns every emitted feature name in emission order.
func (e *TimestampExtractor) OutputNames() []string {
	var names []string
	for _, s := range e.specs {
		for _, k := range s.Kinds {
			names = append(names, FeatureName(s.Column, k))
		}
	}
	return names
}

// FeatureName is the derived column name for a timestamp column and kind.
func FeatureName(column string, k Kind) string {
	return column + "_" + string(k)
}

// Extract returns the configured features for one column's value.
func (e *TimestampExtractor) Extract(column string, epochSeconds float64) (wallet.Row, error) {
	out := make(wallet.Row, len(e.kinds[column]))
	if err := e.ExtractInto(out, column, epochSeconds); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractInto writes the configured features for one column's value into dst.
func (e *TimestampExtractor) ExtractInto(dst wallet.Row, column string, epochSeconds float64) error {
	kinds, ok := e.kinds[column]
	if !ok {
		return fmt.Errorf("timestamp column %s is not configured", column)
	}

	t, err := epochToUTC(epochSeconds)
	if err != nil {
		return &InvalidTimestampError{Column: column, Value: epochSeconds}
	}

	for _, k := range kinds {
		dst[FeatureName(column, k)] = kindValue(t, k)
	}
	return nil
}

func epochToUTC(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxEpochSeconds {
		return time.Time{}, ErrInvalidTimestamp
	}
	sec := math.Floor(v)
	nsec := math.Round((v - sec) * 1e9)
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

func kindValue(t time.Time, k Kind) float64 {
	switch k {
	case KindDay:
		return float64(t.Day())
	case KindDayOfWeek:
		// Monday is 0.
		return float64((int(t.Weekday()) + 6) % 7)
	case KindDayOfYear:
		return float64(t.YearDay())
	case KindWeek:
		_, week := t.ISOWeek()
		return float64(week)
	case KindHour:
		return float64(t.Hour())
	case KindMinute:
		return float64(t.Minute())
	case KindSecond:
		return float64(t.Second())
	case KindHourSin:
		return math.Sin(2 * math.Pi * float64(t.Hour()) / 24)
	case KindHourCos:
		return math.Cos(2 * math.Pi * float64(t.Hour()) / 24)
	}
	return 0
}
