package ml

import (
	"fmt"
	"math"
	"math/rand"

	"wallet-risk/internal/wallet"
)

// StratifiedSplit divides data into train and test sets that keep the class
// ratio, using a fixed seed. Each class contributes round(testSize * count)
// rows to the test set, at least one and never all of them.
func StratifiedSplit(data []wallet.Labeled, testSize float64, seed int64) (train, test []wallet.Labeled, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}

	byClass := [2][]int{}
	for i, row := range data {
		if row.Target != 0 && row.Target != 1 {
			return nil, nil, fmt.Errorf("row %d has target %d, want 0 or 1", i, row.Target)
		}
		byClass[row.Target] = append(byClass[row.Target], i)
	}

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for class, idx := range byClass {
		if len(idx) == 0 {
			continue
		}
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("class %d has a single member and cannot be stratified", class)
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := int(math.Round(testSize * float64(len(idx))))
		n = max(1, min(n, len(idx)-1))
		testIdx = append(testIdx, idx[:n]...)
		trainIdx = append(trainIdx, idx[n:]...)
	}
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, nil, fmt.Errorf("cannot split %d rows", len(data))
	}

	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	train = make([]wallet.Labeled, len(trainIdx))
	for i, j := range trainIdx {
		train[i] = data[j]
	}
	test = make([]wallet.Labeled, len(testIdx))
	for i, j := range testIdx {
		test[i] = data[j]
	}
	return train, test, nil
}
