package ml

import (
	"testing"

	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labeledWallets(negatives, positives int) []wallet.Labeled {
	data := make([]wallet.Labeled, 0, negatives+positives)
	for i := 0; i < negatives+positives; i++ {
		target := 0
		if i >= negatives {
			target = 1
		}
		data = append(data, wallet.Labeled{
			Record: wallet.Record{BorrowBlockNumber: int64(i)},
			Target: target,
		})
	}
	return data
}

func positives(data []wallet.Labeled) int {
	n := 0
	for _, d := range data {
		n += d.Target
	}
	return n
}

func TestStratifiedSplit_KeepsClassRatio(t *testing.T) {
	data := labeledWallets(80, 20)
	train, test, err := StratifiedSplit(data, 0.2, 42)
	require.NoError(t, err)

	assert.Len(t, test, 20)
	assert.Len(t, train, 80)
	assert.Equal(t, 4, positives(test))
	assert.Equal(t, 16, positives(train))

	seen := make(map[int64]bool, len(data))
	for _, d := range append(append([]wallet.Labeled{}, train...), test...) {
		assert.False(t, seen[d.Record.BorrowBlockNumber], "row %d used twice", d.Record.BorrowBlockNumber)
		seen[d.Record.BorrowBlockNumber] = true
	}
	assert.Len(t, seen, len(data))
}

func TestStratifiedSplit_Deterministic(t *testing.T) {
	data := labeledWallets(50, 30)
	trainA, testA, err := StratifiedSplit(data, 0.25, 7)
	require.NoError(t, err)
	trainB, testB, err := StratifiedSplit(data, 0.25, 7)
	require.NoError(t, err)
	assert.Equal(t, trainA, trainB)
	assert.Equal(t, testA, testB)

	_, testC, err := StratifiedSplit(data, 0.25, 8)
	require.NoError(t, err)
	assert.NotEqual(t, testA, testC)
}

func TestStratifiedSplit_SmallClasses(t *testing.T) {
	// round(0.2 * 2) is 0, but every class still reaches the test set.
	train, test, err := StratifiedSplit(labeledWallets(10, 2), 0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, positives(test))
	assert.Equal(t, 1, positives(train))
}

func TestStratifiedSplit_Errors(t *testing.T) {
	_, _, err := StratifiedSplit(labeledWallets(10, 10), 0, 1)
	assert.Error(t, err)
	_, _, err = StratifiedSplit(labeledWallets(10, 10), 1, 1)
	assert.Error(t, err)
	_, _, err = StratifiedSplit(labeledWallets(10, 1), 0.2, 1)
	assert.ErrorContains(t, err, "single member")
	_, _, err = StratifiedSplit(nil, 0.2, 1)
	assert.Error(t, err)

	bad := labeledWallets(5, 5)
	bad[0].Target = 3
	_, _, err = StratifiedSplit(bad, 0.2, 1)
	assert.Error(t, err)
}
