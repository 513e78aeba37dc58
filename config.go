package newsgeo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all environment variables
var Config struct {
	OpenAIAPIKey string
}

// Default file locations for pipeline stage artifacts.
const (
	ArticlesFile = "articles.json"
	WeightsFile  = "weights.json"
	EmbeddingsDB = "embeddings.db"
	ClustersDir  = "clusters"
	ConfigFile   = "newsgeo.yml"
)

// ClusterConfig holds the tunable parameters of the clustering pipeline.
// The syndication thresholds were tuned empirically on real article pulls
// and are deliberately configurable rather than hard constants.
type ClusterConfig struct {
	// SpatialWeight is the single global λ used in fixed mode.
	SpatialWeight float64 `yaml:"spatial_weight"`
	// DistanceThreshold stops agglomerative merging; lower values produce
	// more, smaller clusters.
	DistanceThreshold float64 `yaml:"distance_threshold"`
	// Linkage is one of average, complete, single.
	Linkage string `yaml:"linkage"`
	// MinClusterSize filters undersized clusters after labeling.
	// 0 means auto: max(5, n/10).
	MinClusterSize int `yaml:"min_cluster_size"`
	// SyndicationTextWindow is how many leading characters are scanned for
	// wire-service markers. Wide enough to catch markers after a dateline.
	SyndicationTextWindow int `yaml:"syndication_text_window"`
	// LocalQuoteMinTextLength is the minimum text length before the
	// local-official-quote check applies.
	LocalQuoteMinTextLength int `yaml:"local_quote_min_text_length"`
	// FormulaicMinTextLength gates the formulaic-phrase check to long
	// articles, avoiding false positives on short ones.
	FormulaicMinTextLength int `yaml:"formulaic_min_text_length"`
	// FormulaicPhraseCutoff is how many distinct formulaic phrases mark an
	// article as wire content.
	FormulaicPhraseCutoff int `yaml:"formulaic_phrase_cutoff"`
	// DedupSimilarity and DedupMinDuplicates drive the embedding-based
	// near-duplicate override: an article with at least DedupMinDuplicates
	// neighbours above DedupSimilarity is forced to λ=0.
	DedupSimilarity    float64 `yaml:"dedup_similarity"`
	DedupMinDuplicates int     `yaml:"dedup_min_duplicates"`
}

// DefaultClusterConfig returns the documented defaults.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		SpatialWeight:           0.15,
		DistanceThreshold:       0.5,
		Linkage:                 "average",
		MinClusterSize:          0,
		SyndicationTextWindow:   1500,
		LocalQuoteMinTextLength: 100,
		FormulaicMinTextLength:  2000,
		FormulaicPhraseCutoff:   4,
		DedupSimilarity:         0.95,
		DedupMinDuplicates:      5,
	}
}

// LoadClusterConfig reads a YAML config file, falling back to defaults when
// the file does not exist.
func LoadClusterConfig(path string) (ClusterConfig, error) {
	cfg := DefaultClusterConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.SpatialWeight < 0 || cfg.SpatialWeight > 1 {
		return cfg, fmt.Errorf("spatial_weight must be in [0,1], got %v", cfg.SpatialWeight)
	}
	if cfg.DistanceThreshold <= 0 {
		return cfg, fmt.Errorf("distance_threshold must be positive, got %v", cfg.DistanceThreshold)
	}
	if _, err := ParseLinkage(cfg.Linkage); err != nil {
		return cfg, err
	}

	return cfg, nil
}
