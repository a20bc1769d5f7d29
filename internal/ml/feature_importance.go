package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
)

// FeatureScore is one feature's permutation importance: the drop in holdout
// ROC AUC when that column is shuffled across rows.
type FeatureScore struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// PermutationImportance scores every column of ds against model, most
// important first. Each column is shuffled with its own seeded generator,
// so the result depends only on the inputs.
func PermutationImportance(ctx context.Context, model Model, ds Dataset, seed int64) ([]FeatureScore, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if ds.Len() < 2 {
		return nil, fmt.Errorf("permutation importance needs at least 2 rows, got %d", ds.Len())
	}

	proba, err := model.PredictProba(ds.X)
	if err != nil {
		return nil, err
	}
	baseline := ROCAUC(ds.Y, proba)

	permuted := make([][]float64, ds.Len())
	for i, row := range ds.X {
		permuted[i] = append([]float64(nil), row...)
	}

	scores := make([]FeatureScore, len(ds.Names))
	order := make([]int, ds.Len())
	for f, name := range ds.Names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng := rand.New(rand.NewSource(seed + int64(f)))
		for i := range order {
			order[i] = i
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for i, j := range order {
			permuted[i][f] = ds.X[j][f]
		}

		p, err := model.PredictProba(permuted)
		if err != nil {
			return nil, err
		}
		scores[f] = FeatureScore{Name: name, Importance: baseline - ROCAUC(ds.Y, p)}

		for i := range permuted {
			permuted[i][f] = ds.X[i][f]
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Importance != scores[j].Importance {
			return scores[i].Importance > scores[j].Importance
		}
		return scores[i].Name < scores[j].Name
	})
	return scores, nil
}

// TopFeatures returns the names of the n highest scores.
func TopFeatures(scores []FeatureScore, n int) []string {
	n = min(n, len(scores))
	names := make([]string, n)
	for i := range names {
		names[i] = scores[i].Name
	}
	return names
}

// SaveFeatureImportance writes scores as indented JSON, replacing path
// atomically.
func SaveFeatureImportance(path string, scores []FeatureScore) error {
	data, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
