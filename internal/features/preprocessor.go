// Package features builds the model's feature vectors from raw wallet rows:
// timestamp decomposition, per-column quantile normalization and projection
// onto the trained column schema.
//
// A fitted Preprocessor is immutable and may be shared by any number of
// goroutines. Its persisted form reloads into an instance that produces
// identical outputs, which is what keeps serving in step with training.
package features

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"wallet-risk/internal/wallet"

	"github.com/rs/zerolog/log"
)

// QuantileSuffix tags quantile-normalized output columns.
const QuantileSuffix = "_qt"

const preprocessorFormatVersion = 1

// PreprocessorConfig names the columns to decompose and to normalize.
type PreprocessorConfig struct {
	Timestamps     []TimestampSpec `yaml:"timestamps" json:"timestamps"`
	NumericColumns []string        `yaml:"numericColumns" json:"numeric_columns"`
	Quantile       QuantileConfig  `yaml:"quantile" json:"quantile"`
}

// DefaultPreprocessorConfig returns the configuration of the production model.
func DefaultPreprocessorConfig() PreprocessorConfig {
	return PreprocessorConfig{
		Timestamps:     DefaultTimestampSpecs(),
		NumericColumns: []string{"repay_amount_sum_eth"},
		Quantile:       DefaultQuantileConfig(),
	}
}

// Preprocessor turns raw rows into derived features. Fit must not run
// concurrently with Transform.
type Preprocessor struct {
	cfg       PreprocessorConfig
	extractor *TimestampExtractor
	columns   []string
	fitted    *fittedState
}

type fittedState struct {
	normalizers map[string]*QuantileNormalizer
	fingerprint string
}

// NewPreprocessor validates cfg and returns an unfitted preprocessor.
func NewPreprocessor(cfg PreprocessorConfig) (*Preprocessor, error) {
	extractor, err := NewTimestampExtractor(cfg.Timestamps)
	if err != nil {
		return nil, err
	}
	if err := cfg.Quantile.Validate(); err != nil {
		return nil, err
	}

	isTimestamp := make(map[string]bool)
	for _, c := range extractor.Columns() {
		isTimestamp[c] = true
	}
	seen := make(map[string]bool)
	var columns []string
	for _, c := range cfg.NumericColumns {
		if seen[c] {
			return nil, fmt.Errorf("numeric column %s configured twice", c)
		}
		seen[c] = true
		if isTimestamp[c] {
			log.Warn().Str("column", c).Msg("column configured for both timestamp and quantile features, skipping quantile")
			continue
		}
		columns = append(columns, c)
	}

	return &Preprocessor{
		cfg:       PreprocessorConfig{Timestamps: extractor.Specs(), NumericColumns: append([]string(nil), cfg.NumericColumns...), Quantile: cfg.Quantile},
		extractor: extractor,
		columns:   columns,
	}, nil
}

// Config returns the preprocessor's configuration.
func (p *Preprocessor) Config() PreprocessorConfig {
	return PreprocessorConfig{
		Timestamps:     p.extractor.Specs(),
		NumericColumns: append([]string(nil), p.cfg.NumericColumns...),
		Quantile:       p.cfg.Quantile,
	}
}

// Fitted reports whether the preprocessor holds fitted state.
func (p *Preprocessor) Fitted() bool { return p.fitted != nil }

// QuantileColumns returns the columns that receive a quantile transform.
func (p *Preprocessor) QuantileColumns() []string {
	return append([]string(nil), p.columns...)
}

// InputColumns returns every raw column Transform reads.
func (p *Preprocessor) InputColumns() []string {
	return append(p.QuantileColumns(), p.extractor.Columns()...)
}

// OutputNames returns every column Transform emits, in emission order.
func (p *Preprocessor) OutputNames() []string {
	names := make([]string, 0, len(p.columns))
	for _, c := range p.columns {
		names = append(names, c+QuantileSuffix)
	}
	return append(names, p.extractor.OutputNames()...)
}

// Fingerprint identifies the fitted state. It is empty before fit.
func (p *Preprocessor) Fingerprint() string {
	if p.fitted == nil {
		return ""
	}
	return p.fitted.fingerprint
}

// Fit learns one quantile normalizer per configured numeric column from the
// training rows. State is replaced only when every column fits; a re-fit
// yields a new fingerprint and must be treated as a new model version.
func (p *Preprocessor) Fit(rows []wallet.Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("fit: no training rows")
	}

	normalizers := make(map[string]*QuantileNormalizer, len(p.columns))
	for _, col := range p.columns {
		values := make([]float64, len(rows))
		for i, row := range rows {
			v, ok := row[col]
			if !ok {
				return fmt.Errorf("fit column %s row %d: %w", col, i, &MissingFeatureError{Columns: []string{col}})
			}
			values[i] = v
		}

		qn := NewQuantileNormalizer(p.cfg.Quantile)
		if err := qn.Fit(values); err != nil {
			return fmt.Errorf("fit column %s: %w", col, err)
		}
		normalizers[col] = qn
	}

	state := &fittedState{normalizers: normalizers}
	fp, err := p.fingerprintOf(state)
	if err != nil {
		return err
	}
	state.fingerprint = fp
	p.fitted = state

	log.Info().
		Int("rows", len(rows)).
		Strs("quantile_columns", p.columns).
		Strs("timestamp_columns", p.extractor.Columns()).
		Str("fingerprint", fp).
		Msg("Feature preprocessor fitted")

	return nil
}

// TransformRow derives the features of a single row. The input is not
// modified and raw columns are not copied to the output.
func (p *Preprocessor) TransformRow(row wallet.Row) (wallet.Row, error) {
	state := p.fitted
	if state == nil {
		return nil, ErrNotFitted
	}

	var missing []string
	for _, c := range p.InputColumns() {
		if _, ok := row[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFeatureError{Columns: missing}
	}

	out := make(wallet.Row, len(p.columns)+len(p.extractor.OutputNames()))
	for _, c := range p.columns {
		v, err := state.normalizers[c].Transform(row[c])
		if err != nil {
			return nil, fmt.Errorf("transform column %s: %w", c, err)
		}
		out[c+QuantileSuffix] = v
	}
	for _, c := range p.extractor.Columns() {
		if err := p.extractor.ExtractInto(out, c, row[c]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Transform derives features for every row, failing on the first bad row.
func (p *Preprocessor) Transform(rows []wallet.Row) ([]wallet.Row, error) {
	if p.fitted == nil {
		return nil, ErrNotFitted
	}
	out := make([]wallet.Row, len(rows))
	for i, row := range rows {
		derived, err := p.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = derived
	}
	return out, nil
}

type preprocessorArtifact struct {
	FormatVersion int                      `json:"format_version"`
	Config        PreprocessorConfig       `json:"config"`
	Normalizers   map[string]QuantileState `json:"normalizers"`
	Fingerprint   string                   `json:"fingerprint,omitempty"`
}

func (p *Preprocessor) artifact(state *fittedState) (preprocessorArtifact, error) {
	a := preprocessorArtifact{
		FormatVersion: preprocessorFormatVersion,
		Config:        p.Config(),
		Normalizers:   make(map[string]QuantileState, len(state.normalizers)),
	}
	for col, qn := range state.normalizers {
		s, err := qn.State()
		if err != nil {
			return a, err
		}
		a.Normalizers[col] = s
	}
	return a, nil
}

// fingerprintOf hashes the canonical JSON of the artifact without its
// fingerprint field. Map keys marshal sorted, so equal states hash equally.
func (p *Preprocessor) fingerprintOf(state *fittedState) (string, error) {
	a, err := p.artifact(state)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal preprocessor state: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes the fitted state as a single JSON artifact.
func (p *Preprocessor) Save(w io.Writer) error {
	if p.fitted == nil {
		return ErrNotFitted
	}
	a, err := p.artifact(p.fitted)
	if err != nil {
		return err
	}
	a.Fingerprint = p.fitted.fingerprint

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// MarshalArtifact returns the bytes Save would write.
func (p *Preprocessor) MarshalArtifact() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadPreprocessor reads an artifact written by Save. The stored fingerprint
// must match the recomputed one.
func LoadPreprocessor(r io.Reader) (*Preprocessor, error) {
	var a preprocessorArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode preprocessor artifact: %w", err)
	}
	if a.FormatVersion != preprocessorFormatVersion {
		return nil, fmt.Errorf("unsupported preprocessor format version %d", a.FormatVersion)
	}

	p, err := NewPreprocessor(a.Config)
	if err != nil {
		return nil, fmt.Errorf("preprocessor artifact config: %w", err)
	}

	normalizers := make(map[string]*QuantileNormalizer, len(p.columns))
	for _, col := range p.columns {
		s, ok := a.Normalizers[col]
		if !ok {
			return nil, fmt.Errorf("preprocessor artifact has no state for column %s: %w", col, ErrNotFitted)
		}
		qn, err := NewQuantileNormalizerFromState(s)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		normalizers[col] = qn
	}
	if len(a.Normalizers) != len(p.columns) {
		return nil, fmt.Errorf("preprocessor artifact has %d normalizers for %d columns", len(a.Normalizers), len(p.columns))
	}

	state := &fittedState{normalizers: normalizers}
	fp, err := p.fingerprintOf(state)
	if err != nil {
		return nil, err
	}
	if a.Fingerprint != "" && a.Fingerprint != fp {
		return nil, fmt.Errorf("preprocessor artifact fingerprint %s does not match content %s", a.Fingerprint, fp)
	}
	state.fingerprint = fp
	p.fitted = state
	return p, nil
}
