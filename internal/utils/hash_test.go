package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashStable(t *testing.T) {
	a, err := ContentHash(map[string]any{"b": 2, "a": "x"})
	require.NoError(t, err)
	b, err := ContentHash(map[string]any{"a": "x", "b": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestContentHashDiffers(t *testing.T) {
	a, err := ContentHash(map[string]any{"input_id": "e1"})
	require.NoError(t, err)
	b, err := ContentHash(map[string]any{"input_id": "e2"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashStringToUint64Deterministic(t *testing.T) {
	assert.Equal(t, HashStringToUint64("msg-1"), HashStringToUint64("msg-1"))
}
