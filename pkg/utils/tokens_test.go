package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 3, EstimateTokens("hello"))
	assert.Equal(t, 9, EstimateTokens("split the dataset"))
	assert.Equal(t, 6, EstimateTokens("  spaced   out  "))
}

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, tc.CountTokens(""))
	count := tc.CountTokens("Split the dataset into train and test sets.")
	assert.Greater(t, count, 0)
	assert.Less(t, count, 20)
}

func TestCountTokensFallback(t *testing.T) {
	tc := &TokenCounter{}
	assert.Equal(t, 2, tc.CountTokens("12345678"))
}

func TestTruncateToTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	short := "fits easily"
	assert.Equal(t, short, tc.TruncateToTokenLimit(short, 100))

	long := strings.Repeat("the dataset contains many variables and rows ", 200)
	truncated := tc.TruncateToTokenLimit(long, 50)
	assert.Less(t, len(truncated), len(long))
	assert.True(t, strings.HasSuffix(truncated, "..."))
	assert.LessOrEqual(t, tc.CountTokens(truncated), 60)
}
