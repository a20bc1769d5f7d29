package ml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_KnownValues(t *testing.T) {
	yTrue := []int{1, 1, 1, 0, 0, 0, 0, 1}
	yPred := []int{1, 1, 0, 0, 0, 1, 0, 1}
	proba := []float64{0.9, 0.8, 0.4, 0.1, 0.2, 0.7, 0.3, 0.6}

	r, err := Evaluate(yTrue, yPred, proba)
	require.NoError(t, err)

	assert.Equal(t, ConfusionMatrix{TN: 3, FP: 1, FN: 1, TP: 3}, r.Confusion)
	assert.InDelta(t, 0.75, r.Accuracy, 1e-12)
	assert.InDelta(t, 0.75, r.Precision, 1e-12)
	assert.InDelta(t, 0.75, r.Recall, 1e-12)
	assert.InDelta(t, 0.75, r.F1, 1e-12)
	// 14 of the 16 positive/negative pairs are ordered correctly.
	assert.InDelta(t, 14.0/16.0, r.ROCAUC, 1e-12)
	assert.Equal(t, 8, r.Samples)
	assert.Equal(t, 4, r.Positives)
}

func TestEvaluate_ZeroDivision(t *testing.T) {
	r, err := Evaluate([]int{0, 1}, []int{0, 0}, []float64{0.2, 0.4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Precision)
	assert.Equal(t, 0.0, r.Recall)
	assert.Equal(t, 0.0, r.F1)
	assert.Equal(t, 0.5, r.Accuracy)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []int
		yPred []int
		proba []float64
	}{
		{"empty", nil, nil, nil},
		{"length mismatch", []int{0, 1}, []int{0}, []float64{0.1, 0.2}},
		{"non-binary truth", []int{0, 2}, []int{0, 1}, []float64{0.1, 0.2}},
		{"non-binary prediction", []int{0, 1}, []int{0, -1}, []float64{0.1, 0.2}},
		{"probability above one", []int{0, 1}, []int{0, 1}, []float64{0.1, 1.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.yTrue, tt.yPred, tt.proba)
			assert.Error(t, err)
		})
	}
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		proba []float64
		want  float64
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"all tied", []int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"single class", []int{1, 1, 1}, []float64{0.2, 0.5, 0.9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ROCAUC(tt.y, tt.proba), 1e-12)
		})
	}
}

func TestROCAUC_DoesNotReorderInput(t *testing.T) {
	y := []int{1, 0, 1, 0}
	proba := []float64{0.9, 0.1, 0.6, 0.7}
	ROCAUC(y, proba)
	assert.Equal(t, []float64{0.9, 0.1, 0.6, 0.7}, proba)
	assert.Equal(t, []int{1, 0, 1, 0}, y)
}

func TestScoredCSV_RoundTrip(t *testing.T) {
	rows := []ScoredRow{
		{YTrue: 1, YPred: 1, YProba: 0.91},
		{YTrue: 0, YPred: 1, YProba: 0.5000001},
		{YTrue: 0, YPred: 0, YProba: 0.03},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteScoredCSV(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "y_true,y_pred,y_proba\n"))

	got, err := ReadScoredCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	r, err := EvaluateScored(got)
	require.NoError(t, err)
	assert.Equal(t, ConfusionMatrix{TN: 1, FP: 1, TP: 1}, r.Confusion)
}

func TestReadScoredCSV_Errors(t *testing.T) {
	_, err := ReadScoredCSV(strings.NewReader("y_true,y_pred\n1,1\n"))
	assert.ErrorContains(t, err, "missing column y_proba")

	_, err = ReadScoredCSV(strings.NewReader("y_true,y_pred,y_proba\n1,x,0.5\n"))
	assert.ErrorContains(t, err, "line 2 y_pred")
}
