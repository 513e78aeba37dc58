package newsgeo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// longLocalText is over the minimum quote-check length and mentions a local
// official, but carries no syndication markers.
const longLocalText = "Mayor Dana Whitfield said the city council will take up the riverfront " +
	"budget at its next session, drawing a standing-room crowd of residents to the chamber."

func TestAssignWeightDecisionTable(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())

	tests := []struct {
		name    string
		article Article
		want    float64
	}{
		{
			name: "syndicated source",
			article: Article{
				Source: "apnews.com",
				Text:   longLocalText, // local signals are ignored once syndicated
			},
			want: WeightSyndicated,
		},
		{
			name: "syndication marker in text",
			article: Article{
				Source: "smalltownpaper.com",
				Text:   "WASHINGTON (AP) -- Federal regulators released new guidance on Tuesday.",
			},
			want: WeightSyndicated,
		},
		{
			name: "local outlet with official quote",
			article: Article{
				Source:   "sfchronicle.com",
				Location: "San Francisco, California",
				Text:     longLocalText,
			},
			want: WeightLocalWithQuotes,
		},
		{
			name: "location token in domain with official quote",
			article: Article{
				Source:   "springfieldgazette.com",
				Location: "Springfield, Illinois",
				Text:     longLocalText,
			},
			want: WeightLocalWithQuotes,
		},
		{
			name: "local outlet without quotes",
			article: Article{
				Source:   "springfieldgazette.com",
				Location: "Springfield, Illinois",
				Text:     "A new bakery opened downtown this weekend.",
			},
			want: WeightLocalOnly,
		},
		{
			name: "official quote without local outlet",
			article: Article{
				Source:   "example.org",
				Location: "Elsewhere",
				Text:     longLocalText,
			},
			want: WeightLocalOnly,
		},
		{
			name: "no signals",
			article: Article{
				Source:   "example.org",
				Location: "Elsewhere",
				Text:     "A new bakery opened downtown this weekend.",
			},
			want: WeightDefault,
		},
		{
			name:    "empty fields fall through to default",
			article: Article{},
			want:    WeightDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.AssignWeight(tt.article), 1e-12)
		})
	}
}

func TestDetectSyndicationMarkerWindow(t *testing.T) {
	cfg := DefaultClusterConfig()
	cfg.SyndicationTextWindow = 40
	c := NewWeightClassifier(cfg)

	padding := strings.Repeat("harvest festival preparations continue. ", 2)

	assert.True(t, c.DetectSyndication("paper-a.com", "(AP) -- "+padding, ""),
		"marker inside the leading window")
	assert.False(t, c.DetectSyndication("paper-b.com", padding+"(AP) -- wire copy follows", ""),
		"marker beyond the window is ignored")
}

func TestDetectSyndicationFormulaic(t *testing.T) {
	cfg := DefaultClusterConfig()
	c := NewWeightClassifier(cfg)

	phrases := "according to officials said in a statement press release "
	padding := strings.Repeat("council reviewed the annual parks plan in detail. ", 50)

	long := phrases + padding
	require.Greater(t, len(long), cfg.FormulaicMinTextLength)
	assert.True(t, c.DetectSyndication("paper-c.com", long, ""),
		"four distinct formulaic phrases over a long article")

	short := phrases + "brief item."
	assert.False(t, c.DetectSyndication("paper-d.com", short, ""),
		"short articles are exempt from the formulaic check")

	fewer := "according to officials said " + padding
	assert.False(t, c.DetectSyndication("paper-e.com", fewer, ""),
		"two distinct phrases are below the cutoff")
}

func TestDetectLocalNews(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())

	tests := []struct {
		source   string
		location string
		want     bool
	}{
		{"springfieldgazette.com", "Springfield, Illinois", true}, // location token
		{"sfchronicle.com", "San Francisco, California", true},    // city initialism
		{"latimes.com", "Los Angeles, California", true},
		{"dailycountynews.com", "Elsewhere", true}, // two lexical markers
		{"example.org", "Elsewhere", false},
		{"usatoday.com", "United States", false}, // generic country tokens excluded
		{"example.org", "", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.DetectLocalNews(tt.source, tt.location),
			"source %q location %q", tt.source, tt.location)
	}
}

func TestHasLocalQuotesMinLength(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())

	assert.False(t, c.HasLocalQuotes("mayor said"), "below minimum length")
	assert.True(t, c.HasLocalQuotes(longLocalText))
	assert.False(t, c.HasLocalQuotes(strings.Repeat("no officials here. ", 10)))
}

func TestAssignWeightsDeterministic(t *testing.T) {
	articles := []Article{
		{ID: "a", Source: "apnews.com", Text: "wire copy"},
		{ID: "b", Source: "springfieldgazette.com", Location: "Springfield, Illinois", Text: longLocalText},
		{ID: "c", Source: "example.org", Location: "Elsewhere", Text: "short item"},
	}

	first := NewWeightClassifier(DefaultClusterConfig()).AssignWeights(articles)
	second := NewWeightClassifier(DefaultClusterConfig()).AssignWeights(articles)
	require.Equal(t, first, second)

	// Repeated runs on one classifier hit the memoization caches and must
	// agree with the cold run.
	c := NewWeightClassifier(DefaultClusterConfig())
	warm := c.AssignWeights(articles)
	require.Equal(t, first, c.AssignWeights(articles))
	require.Equal(t, first, warm)
}

func TestAssignWeightsStats(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())
	articles := []Article{
		{ID: "a", Source: "apnews.com", Text: "wire copy"},
		{ID: "b", Source: "reuters.com", Text: "wire copy"},
		{ID: "c", Source: "springfieldgazette.com", Location: "Springfield, Illinois", Text: longLocalText},
		{ID: "d", Source: "springfieldgazette.com", Location: "Springfield, Illinois", Text: "brief"},
		{ID: "e", Source: "example.org", Text: "brief"},
	}

	c.AssignWeights(articles)
	stats := c.Stats()

	assert.Equal(t, 2, stats.Syndicated)
	assert.Equal(t, 1, stats.LocalWithQuotes)
	assert.Equal(t, 1, stats.LocalOnly)
	assert.Equal(t, 1, stats.Default)

	// A second batch resets the counters rather than accumulating.
	c.AssignWeights(articles[:1])
	assert.Equal(t, WeightStats{Syndicated: 1}, c.Stats())
}

func TestApplyDuplicateOverride(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())

	// Six identical embeddings plus one orthogonal outlier: every copy has
	// five near-duplicates, the outlier has none.
	embeddings := make([][]float64, 7)
	for i := 0; i < 6; i++ {
		embeddings[i] = []float64{1, 0}
	}
	embeddings[6] = []float64{0, 1}

	weights := []float64{0.15, 0.15, 0.25, 0.4, 0.15, 0.0, 0.15}

	overridden, err := c.ApplyDuplicateOverride(weights, embeddings)
	require.NoError(t, err)

	// Five of the six copies had non-zero weights; the outlier is untouched.
	assert.Equal(t, 5, overridden)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, WeightSyndicated, weights[i], 1e-12, "copy %d", i)
	}
	assert.InDelta(t, 0.15, weights[6], 1e-12)
	assert.Equal(t, 5, c.Stats().DedupOverrides)
}

func TestApplyDuplicateOverrideBelowThreshold(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())

	// Four copies: three duplicates each, below the five-duplicate cutoff.
	embeddings := [][]float64{{1, 0}, {1, 0}, {1, 0}, {1, 0}}
	weights := []float64{0.15, 0.15, 0.15, 0.15}

	overridden, err := c.ApplyDuplicateOverride(weights, embeddings)
	require.NoError(t, err)
	assert.Zero(t, overridden)
	assert.Equal(t, []float64{0.15, 0.15, 0.15, 0.15}, weights)
}

func TestApplyDuplicateOverrideLengthMismatch(t *testing.T) {
	c := NewWeightClassifier(DefaultClusterConfig())
	_, err := c.ApplyDuplicateOverride([]float64{0.15}, [][]float64{{1}, {0}})
	assert.Error(t, err)
}
