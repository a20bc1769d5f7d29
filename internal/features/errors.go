package features

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFitted is returned when a transform is attempted before fit or load.
	ErrNotFitted = errors.New("preprocessor not fitted")
	// ErrInvalidTimestamp marks an epoch value that cannot be interpreted as a time.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrMissingFeature marks schema drift between input and the trained column set.
	ErrMissingFeature = errors.New("missing feature")
	// ErrFeatureCollision marks a name produced by both the raw row and the derived features.
	ErrFeatureCollision = errors.New("feature name collision")
	// ErrDegenerateColumn marks a training column that cannot be quantile-fitted.
	ErrDegenerateColumn = errors.New("degenerate column")
)

// InvalidTimestampError reports the column and value that failed to parse.
type InvalidTimestampError struct {
	Column string
	Value  float64
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp in %s: %v", e.Column, e.Value)
}

func (e *InvalidTimestampError) Is(target error) bool { return target == ErrInvalidTimestamp }

// MissingFeatureError lists every required column absent from the input.
type MissingFeatureError struct {
	Columns []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing feature(s): %s", strings.Join(e.Columns, ", "))
}

func (e *MissingFeatureError) Is(target error) bool { return target == ErrMissingFeature }
