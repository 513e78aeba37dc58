package newsgeo

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

// NoiseLabel marks articles removed by small-cluster filtering.
const NoiseLabel = -1

// Linkage selects how the distance between two merged clusters is computed.
type Linkage string

const (
	// LinkageAverage is the default; a good general-purpose choice.
	LinkageAverage Linkage = "average"
	// LinkageComplete is recommended for adaptive weighting, where single
	// linkage tends to chain through intermediate-λ pairs.
	LinkageComplete Linkage = "complete"
	LinkageSingle   Linkage = "single"
)

// ParseLinkage validates a linkage name from config or flags.
func ParseLinkage(s string) (Linkage, error) {
	switch Linkage(s) {
	case LinkageAverage, LinkageComplete, LinkageSingle:
		return Linkage(s), nil
	}
	return "", fmt.Errorf("unknown linkage %q (want average, complete or single)", s)
}

// Cluster performs agglomerative clustering over a precomputed distance
// matrix. The cluster count is not fixed in advance: merging continues while
// the nearest pair of clusters is below threshold. Labels are contiguous
// from 0, ordered by each cluster's first member, and deterministic for
// identical inputs.
func Cluster(dist *mat.SymDense, threshold float64, linkage Linkage) ([]int, error) {
	if dist == nil || dist.SymmetricDim() == 0 {
		return nil, fmt.Errorf("empty distance matrix")
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("distance threshold must be positive, got %v", threshold)
	}

	n := dist.SymmetricDim()
	if n == 1 {
		return []int{0}, nil
	}

	// Working copy of cluster-to-cluster distances, updated per merge.
	work := make([][]float64, n)
	for i := range work {
		work[i] = make([]float64, n)
		for j := range work[i] {
			work[i][j] = dist.At(i, j)
		}
	}

	members := make([][]int, n)
	active := make([]bool, n)
	for i := range members {
		members[i] = []int{i}
		active[i] = true
	}
	remaining := n

	for remaining > 1 {
		// Nearest active pair; ties break on the lowest indices so runs
		// are reproducible.
		minDist := math.Inf(1)
		mergeI, mergeJ := -1, -1
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if work[i][j] < minDist {
					minDist = work[i][j]
					mergeI, mergeJ = i, j
				}
			}
		}

		if mergeI == -1 || minDist >= threshold {
			break
		}

		sizeI := float64(len(members[mergeI]))
		sizeJ := float64(len(members[mergeJ]))

		for k := 0; k < n; k++ {
			if !active[k] || k == mergeI || k == mergeJ {
				continue
			}
			var d float64
			switch linkage {
			case LinkageComplete:
				d = math.Max(work[mergeI][k], work[mergeJ][k])
			case LinkageSingle:
				d = math.Min(work[mergeI][k], work[mergeJ][k])
			default:
				d = (sizeI*work[mergeI][k] + sizeJ*work[mergeJ][k]) / (sizeI + sizeJ)
			}
			work[mergeI][k] = d
			work[k][mergeI] = d
		}

		members[mergeI] = append(members[mergeI], members[mergeJ]...)
		active[mergeJ] = false
		remaining--
	}

	labels := make([]int, n)
	next := 0
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		for _, idx := range members[i] {
			labels[idx] = next
		}
		next++
	}

	return labels, nil
}

// AutoMinClusterSize scales the small-cluster threshold with dataset size.
// A fixed constant either discards everything on small datasets or does
// nothing on huge ones.
func AutoMinClusterSize(n int) int {
	size := n / 10
	if size < 5 {
		return 5
	}
	return size
}

// FilterSmallClusters drops every cluster below minSize, marking its
// articles with NoiseLabel, and re-numbers survivors contiguously from 0
// with the largest cluster first. The input slice is not modified.
func FilterSmallClusters(labels []int, minSize int) []int {
	sizes := make(map[int]int)
	for _, l := range labels {
		if l >= 0 {
			sizes[l]++
		}
	}

	var survivors []int
	for id, size := range sizes {
		if size >= minSize {
			survivors = append(survivors, id)
		}
	}

	// Largest first; equal sizes keep their original id order.
	sort.Slice(survivors, func(i, j int) bool {
		if sizes[survivors[i]] != sizes[survivors[j]] {
			return sizes[survivors[i]] > sizes[survivors[j]]
		}
		return survivors[i] < survivors[j]
	})

	mapping := make(map[int]int, len(survivors))
	for newID, oldID := range survivors {
		mapping[oldID] = newID
	}

	filtered := make([]int, len(labels))
	for i, l := range labels {
		if newID, ok := mapping[l]; ok {
			filtered[i] = newID
		} else {
			filtered[i] = NoiseLabel
		}
	}

	return filtered
}

// ClusterSummary is a derived, read-only aggregate of one cluster.
type ClusterSummary struct {
	ClusterID   int      `json:"cluster_id"`
	Size        int      `json:"size"`
	CenterLat   float64  `json:"center_lat"`
	CenterLon   float64  `json:"center_lon"`
	RadiusKm    float64  `json:"radius_km"`
	Location    string   `json:"location"`
	SampleTexts []string `json:"sample_texts"`
}

// SummarizeClusters computes per-cluster aggregates: geographic centroid,
// radius (max haversine distance from centroid to any member), dominant
// location label and up to five sample texts in input order. Noise articles
// are skipped.
func SummarizeClusters(labels []int, articles []Article) ([]ClusterSummary, error) {
	if len(labels) != len(articles) {
		return nil, fmt.Errorf("label count %d does not match article count %d", len(labels), len(articles))
	}

	byCluster := make(map[int][]int)
	maxID := -1
	for i, l := range labels {
		if l < 0 {
			continue
		}
		byCluster[l] = append(byCluster[l], i)
		if l > maxID {
			maxID = l
		}
	}

	var summaries []ClusterSummary
	for id := 0; id <= maxID; id++ {
		indices := byCluster[id]
		if len(indices) == 0 {
			continue
		}

		centerLat, centerLon := 0.0, 0.0
		for _, idx := range indices {
			centerLat += articles[idx].Latitude
			centerLon += articles[idx].Longitude
		}
		centerLat /= float64(len(indices))
		centerLon /= float64(len(indices))

		radius := 0.0
		locationCounts := make(map[string]int)
		dominant := ""
		var samples []string

		for _, idx := range indices {
			a := articles[idx]

			if km := haversineKm(centerLat, centerLon, a.Latitude, a.Longitude); km > radius {
				radius = km
			}

			locationCounts[a.Location]++
			if dominant == "" || locationCounts[a.Location] > locationCounts[dominant] {
				dominant = a.Location
			}

			if len(samples) < 5 {
				samples = append(samples, a.Text)
			}
		}

		summaries = append(summaries, ClusterSummary{
			ClusterID:   id,
			Size:        len(indices),
			CenterLat:   centerLat,
			CenterLon:   centerLon,
			RadiusKm:    radius,
			Location:    dominant,
			SampleTexts: samples,
		})
	}

	return summaries, nil
}

// ClusterResult carries every artifact of one clustering run explicitly:
// embeddings, all three distance matrices, labels and summaries. Downstream
// consumers (evaluation, dedup) borrow these read-only.
type ClusterResult struct {
	Mode        string           `json:"mode"`
	ArticleIDs  []string         `json:"article_ids"`
	Labels      []int            `json:"labels"`
	Weights     []float64        `json:"weights"`
	Summaries   []ClusterSummary `json:"summaries"`
	GeneratedAt time.Time        `json:"generated_at"`

	Embeddings [][]float64  `json:"-"`
	Semantic   *mat.SymDense `json:"-"`
	Spatial    *mat.SymDense `json:"-"`
	Combined   *mat.SymDense `json:"-"`
}

// ClusterArticles runs the full distance-and-clustering stage over articles
// whose embeddings and weights are already computed. In adaptive mode the
// per-article weights drive the pairwise combination; in fixed mode a single
// global λ from the config does.
func ClusterArticles(articles []Article, embeddings [][]float64, weights []float64, cfg ClusterConfig, adaptive bool) (*ClusterResult, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("no articles to cluster")
	}
	if len(embeddings) != len(articles) {
		return nil, fmt.Errorf("embedding count %d does not match article count %d", len(embeddings), len(articles))
	}
	if adaptive && len(weights) != len(articles) {
		return nil, fmt.Errorf("weight count %d does not match article count %d", len(weights), len(articles))
	}

	linkage, err := ParseLinkage(cfg.Linkage)
	if err != nil {
		return nil, err
	}

	semantic, err := SemanticDistances(embeddings)
	if err != nil {
		return nil, fmt.Errorf("semantic distance stage failed: %w", err)
	}

	spatial, err := SpatialDistances(articles)
	if err != nil {
		return nil, fmt.Errorf("spatial distance stage failed: %w", err)
	}

	var combined *mat.SymDense
	mode := "fixed"
	if adaptive {
		mode = "adaptive"
		combined, err = CombineAdaptive(semantic, spatial, weights)
	} else {
		combined, err = CombineFixed(semantic, spatial, cfg.SpatialWeight)
	}
	if err != nil {
		return nil, fmt.Errorf("distance combination stage failed: %w", err)
	}

	labels, err := Cluster(combined, cfg.DistanceThreshold, linkage)
	if err != nil {
		return nil, fmt.Errorf("clustering stage failed: %w", err)
	}

	minSize := cfg.MinClusterSize
	if minSize <= 0 {
		minSize = AutoMinClusterSize(len(articles))
	}
	labels = FilterSmallClusters(labels, minSize)

	summaries, err := SummarizeClusters(labels, articles)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	return &ClusterResult{
		Mode:        mode,
		ArticleIDs:  ids,
		Labels:      labels,
		Weights:     weights,
		Summaries:   summaries,
		GeneratedAt: time.Now().UTC(),
		Embeddings:  embeddings,
		Semantic:    semantic,
		Spatial:     spatial,
		Combined:    combined,
	}, nil
}

var clusterMode string

var ClusterArticlesCmd = &cobra.Command{
	Use:   "cluster-articles",
	Short: "Cluster articles by combined semantic and spatial distance",
	Run: func(cmd *cobra.Command, args []string) {
		if err := clusterAllArticles(clusterMode); err != nil {
			log.Printf("Failed to cluster articles: %v", err)
			return
		}
		log.Println("Article clustering complete.")
	},
}

func init() {
	ClusterArticlesCmd.Flags().StringVar(&clusterMode, "mode", "adaptive", "weighting policy: fixed or adaptive")
}

// clusterAllArticles loads the prior stages' artifacts, applies the
// embedding-based duplicate override to the weights, clusters and persists
// the result.
func clusterAllArticles(mode string) error {
	adaptive, err := parseMode(mode)
	if err != nil {
		return err
	}

	cfg, err := LoadClusterConfig(ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	articles, err := LoadArticles(ArticlesFile)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}

	db, err := initEmbeddingDB(EmbeddingsDB)
	if err != nil {
		return fmt.Errorf("failed to open embeddings database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	embeddings, err := LoadEmbeddings(db, articles)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	embeddings = NormalizeEmbeddings(embeddings)

	var weights []float64
	if adaptive {
		artifact, err := loadWeights()
		if err != nil {
			return fmt.Errorf("failed to load weights (run classify-articles first): %w", err)
		}
		weights = artifact.Weights

		// Near-duplicate override needs embeddings, so it runs here rather
		// than in the classification stage.
		classifier := NewWeightClassifier(cfg)
		overridden, err := classifier.ApplyDuplicateOverride(weights, embeddings)
		if err != nil {
			return err
		}
		if overridden > 0 {
			log.Printf("🔍 Found %d additional syndicated articles via deduplication", overridden)
		}
	}

	log.Printf("🌍 Clustering %d articles (%s weighting)...", len(articles), mode)

	result, err := ClusterArticles(articles, embeddings, weights, cfg, adaptive)
	if err != nil {
		return err
	}

	clusterCount := 0
	noise := 0
	for _, l := range result.Labels {
		if l == NoiseLabel {
			noise++
		} else if l+1 > clusterCount {
			clusterCount = l + 1
		}
	}
	log.Printf("✓ Discovered %d clusters (%d articles filtered as noise)", clusterCount, noise)

	if err := os.MkdirAll(ClustersDir, 0755); err != nil {
		return fmt.Errorf("failed to create clusters directory: %w", err)
	}

	return saveClusterResult(result)
}

func parseMode(mode string) (bool, error) {
	switch mode {
	case "adaptive":
		return true, nil
	case "fixed":
		return false, nil
	}
	return false, fmt.Errorf("unknown mode %q (want fixed or adaptive)", mode)
}

func clusterResultPath(mode string) string {
	return filepath.Join(ClustersDir, "clusters_"+mode+".json")
}

func saveClusterResult(result *ClusterResult) error {
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cluster result: %w", err)
	}

	if err := os.WriteFile(clusterResultPath(result.Mode), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write cluster result: %w", err)
	}

	return nil
}

func loadClusterResult(mode string) (*ClusterResult, error) {
	data, err := os.ReadFile(clusterResultPath(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster result (run cluster-articles --mode %s first): %w", mode, err)
	}

	var result ClusterResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse cluster result: %w", err)
	}

	return &result, nil
}
