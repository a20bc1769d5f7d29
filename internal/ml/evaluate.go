package ml

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ConfusionMatrix counts binary outcomes.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

func confusion(yTrue, yPred []int) ConfusionMatrix {
	var c ConfusionMatrix
	for i, y := range yTrue {
		switch {
		case y == 1 && yPred[i] == 1:
			c.TP++
		case y == 1:
			c.FN++
		case yPred[i] == 1:
			c.FP++
		default:
			c.TN++
		}
	}
	return c
}

// ratio returns 0 when the denominator is zero.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c ConfusionMatrix) Total() int { return c.TN + c.FP + c.FN + c.TP }

func (c ConfusionMatrix) Accuracy() float64 { return ratio(c.TP+c.TN, c.Total()) }

func (c ConfusionMatrix) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

func (c ConfusionMatrix) Recall() float64 { return ratio(c.TP, c.TP+c.FN) }

func (c ConfusionMatrix) F1() float64 { return ratio(2*c.TP, 2*c.TP+c.FP+c.FN) }

// EvaluationReport holds holdout classification metrics.
type EvaluationReport struct {
	Accuracy  float64         `json:"accuracy"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1_score"`
	ROCAUC    float64         `json:"roc_auc"`
	Confusion ConfusionMatrix `json:"confusion_matrix"`
	Samples   int             `json:"samples"`
	Positives int             `json:"positives"`
}

// Evaluate scores predicted labels and probabilities against the truth.
// Metrics with a zero denominator are reported as 0.
func Evaluate(yTrue, yPred []int, proba []float64) (EvaluationReport, error) {
	if len(yTrue) == 0 {
		return EvaluationReport{}, fmt.Errorf("evaluate: no samples")
	}
	if len(yPred) != len(yTrue) || len(proba) != len(yTrue) {
		return EvaluationReport{}, fmt.Errorf("evaluate: got %d labels, %d predictions and %d probabilities",
			len(yTrue), len(yPred), len(proba))
	}
	for i := range yTrue {
		if !binary(yTrue[i]) || !binary(yPred[i]) {
			return EvaluationReport{}, fmt.Errorf("evaluate: row %d has non-binary label", i)
		}
		if math.IsNaN(proba[i]) || proba[i] < 0 || proba[i] > 1 {
			return EvaluationReport{}, fmt.Errorf("evaluate: row %d has probability %v outside [0, 1]", i, proba[i])
		}
	}

	c := confusion(yTrue, yPred)
	return EvaluationReport{
		Accuracy:  c.Accuracy(),
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
		ROCAUC:    ROCAUC(yTrue, proba),
		Confusion: c,
		Samples:   c.Total(),
		Positives: c.TP + c.FN,
	}, nil
}

// ROCAUC is the area under the ROC curve of proba against yTrue. It is 0
// when only one class is present.
func ROCAUC(yTrue []int, proba []float64) float64 {
	scores := append([]float64(nil), proba...)
	classes := make([]bool, len(yTrue))
	positives := 0
	for i, y := range yTrue {
		classes[i] = y == 1
		positives += y
	}
	if positives == 0 || positives == len(yTrue) {
		log.Warn().Int("samples", len(yTrue)).Int("positives", positives).Msg("ROC AUC undefined for a single class, reporting 0")
		return 0
	}

	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func binary(v int) bool { return v == 0 || v == 1 }

// ScoredRow is one line of a batch prediction result.
type ScoredRow struct {
	YTrue  int
	YPred  int
	YProba float64
}

var scoredHeader = []string{"y_true", "y_pred", "y_proba"}

// WriteScoredCSV writes batch prediction results with a header line.
func WriteScoredCSV(w io.Writer, rows []ScoredRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scoredHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.YTrue),
			strconv.Itoa(r.YPred),
			strconv.FormatFloat(r.YProba, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadScoredCSV reads rows written by WriteScoredCSV.
func ReadScoredCSV(r io.Reader) ([]ScoredRow, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, h := range scoredHeader {
		if _, ok := idx[h]; !ok {
			return nil, fmt.Errorf("missing column %s", h)
		}
	}

	var rows []ScoredRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		yTrue, err := strconv.Atoi(rec[idx["y_true"]])
		if err != nil {
			return nil, fmt.Errorf("line %d y_true: %w", line, err)
		}
		yPred, err := strconv.Atoi(rec[idx["y_pred"]])
		if err != nil {
			return nil, fmt.Errorf("line %d y_pred: %w", line, err)
		}
		yProba, err := strconv.ParseFloat(rec[idx["y_proba"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d y_proba: %w", line, err)
		}
		rows = append(rows, ScoredRow{YTrue: yTrue, YPred: yPred, YProba: yProba})
	}
	return rows, nil
}

// EvaluateScored evaluates batch prediction results.
func EvaluateScored(rows []ScoredRow) (EvaluationReport, error) {
	yTrue := make([]int, len(rows))
	yPred := make([]int, len(rows))
	proba := make([]float64, len(rows))
	for i, r := range rows {
		yTrue[i], yPred[i], proba[i] = r.YTrue, r.YPred, r.YProba
	}
	return Evaluate(yTrue, yPred, proba)
}
