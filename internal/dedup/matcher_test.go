package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

func TestSimilarityCaseFolded(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Call with Dupont", "  call with dupont "))
	assert.Less(t, Similarity("Call with Dupont", "Email to Martin"), DefaultThreshold)
	assert.Equal(t, 0.0, Similarity("", "anything"))
}

func TestBestCollapsesSameTitleInsideWindow(t *testing.T) {
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	existing := []models.Interaction{
		{ID: 1, Title: "Call with Dupont", OccurredAt: at.Add(-90 * time.Minute)},
		{ID: 2, Title: "Email to Martin", OccurredAt: at},
	}

	m := New(0, 0)
	match, ok := m.Best("call with dupont", at, existing)
	require.True(t, ok)
	assert.Equal(t, int64(1), match.Interaction.ID)
	assert.Equal(t, 1.0, match.Score)
}

func TestBestIgnoresOutsideWindow(t *testing.T) {
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	existing := []models.Interaction{
		{ID: 1, Title: "Call with Dupont", OccurredAt: at.Add(-3 * time.Hour)},
	}

	_, ok := New(DefaultThreshold, DefaultWindow).Best("Call with Dupont", at, existing)
	assert.False(t, ok)
}

func TestBestNeverCollapsesDifferentTitles(t *testing.T) {
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	existing := []models.Interaction{
		{ID: 1, Title: "Call with Dupont", OccurredAt: at},
	}

	_, ok := New(DefaultThreshold, DefaultWindow).Best("Email to Martin", at, existing)
	assert.False(t, ok)
}

func TestBestPrefersClosestOnTie(t *testing.T) {
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	existing := []models.Interaction{
		{ID: 1, Title: "Intro", OccurredAt: at.Add(-time.Hour)},
		{ID: 2, Title: "intro", OccurredAt: at.Add(10 * time.Minute)},
	}

	match, ok := New(DefaultThreshold, DefaultWindow).Best("Intro", at, existing)
	require.True(t, ok)
	assert.Equal(t, int64(2), match.Interaction.ID)
}

func TestNewAppliesDefaults(t *testing.T) {
	m := New(1.5, -time.Second)
	assert.Equal(t, DefaultThreshold, m.Threshold)
	assert.Equal(t, DefaultWindow, m.Window)
}
