// Package dedup decides whether a candidate interaction duplicates one that is
// already recorded on the same organisation.
package dedup

import (
	"math"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

const (
	DefaultThreshold = 0.80
	DefaultWindow    = 2 * time.Hour
)

type Matcher struct {
	Threshold float64
	Window    time.Duration
}

// Match is the existing interaction a candidate collapsed into.
type Match struct {
	Interaction models.Interaction
	Score       float64
}

func New(threshold float64, window time.Duration) Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return Matcher{Threshold: threshold, Window: window}
}

// Bounds returns the inclusive occurred_at range searched around at.
func (m Matcher) Bounds(at time.Time) (time.Time, time.Time) {
	return at.Add(-m.Window), at.Add(m.Window)
}

func Normalize(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Similarity is a 0..1 ratio of the normalised titles' edit distance.
func Similarity(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}

// Best picks the most similar interaction inside the window whose score reaches
// the threshold. Ties go to the one closest in time, then the oldest id.
func (m Matcher) Best(title string, at time.Time, existing []models.Interaction) (Match, bool) {
	from, to := m.Bounds(at)
	var (
		best  Match
		found bool
	)
	for _, it := range existing {
		if it.OccurredAt.Before(from) || it.OccurredAt.After(to) {
			continue
		}
		score := Similarity(title, it.Title)
		if score < m.Threshold {
			continue
		}
		if !found || better(score, it, best, at) {
			best = Match{Interaction: it, Score: score}
			found = true
		}
	}
	return best, found
}

func better(score float64, it models.Interaction, cur Match, at time.Time) bool {
	if score != cur.Score {
		return score > cur.Score
	}
	d1 := math.Abs(float64(it.OccurredAt.Sub(at)))
	d2 := math.Abs(float64(cur.Interaction.OccurredAt.Sub(at)))
	if d1 != d2 {
		return d1 < d2
	}
	return it.ID < cur.Interaction.ID
}
