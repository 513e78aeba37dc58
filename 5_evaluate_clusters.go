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
	"github.com/viterin/vek"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ClusterQuality names one cluster together with its mean silhouette.
type ClusterQuality struct {
	ClusterID  int     `json:"cluster_id"`
	Silhouette float64 `json:"silhouette"`
}

// QualityReport scores one clustering result. Metrics that are undefined
// for the given labeling (a single cluster, say) are nil rather than zero,
// and an empty input produces a NoData report instead of nonsense values.
type QualityReport struct {
	NoData bool `json:"no_data,omitempty"`

	NumArticles int `json:"num_articles"`
	NumClusters int `json:"num_clusters"`
	NumNoise    int `json:"num_noise"`

	Silhouette       *float64 `json:"silhouette_score"`
	DaviesBouldin    *float64 `json:"davies_bouldin"`
	CalinskiHarabasz *float64 `json:"calinski_harabasz"`

	BalanceEntropy     float64 `json:"balance_entropy"`
	LargestClusterFrac float64 `json:"largest_cluster_pct"`
	MeanClusterSize    float64 `json:"avg_cluster_size"`
	MedianClusterSize  float64 `json:"median_cluster_size"`
	StdClusterSize     float64 `json:"std_cluster_size"`

	ClusterSilhouettes map[int]float64 `json:"silhouette_per_cluster,omitempty"`
	WorstCluster       *ClusterQuality `json:"worst_cluster,omitempty"`
	BestCluster        *ClusterQuality `json:"best_cluster,omitempty"`
}

// Evaluate computes quality metrics for a labeling from the embeddings and
// the precomputed semantic distance matrix. Noise-labeled articles are
// excluded from every metric.
func Evaluate(embeddings [][]float64, semantic *mat.SymDense, labels []int) (*QualityReport, error) {
	if len(embeddings) != len(labels) {
		return nil, fmt.Errorf("embedding count %d does not match label count %d", len(embeddings), len(labels))
	}
	if semantic != nil && semantic.SymmetricDim() != len(labels) {
		return nil, fmt.Errorf("distance matrix dimension %d does not match label count %d", semantic.SymmetricDim(), len(labels))
	}

	byCluster := make(map[int][]int)
	noise := 0
	for i, l := range labels {
		if l < 0 {
			noise++
			continue
		}
		byCluster[l] = append(byCluster[l], i)
	}

	if len(byCluster) == 0 {
		return &QualityReport{NoData: true, NumNoise: noise}, nil
	}

	report := &QualityReport{
		NumArticles: len(labels) - noise,
		NumClusters: len(byCluster),
		NumNoise:    noise,
	}

	clusterIDs := make([]int, 0, len(byCluster))
	for id := range byCluster {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	sizes := make([]float64, 0, len(clusterIDs))
	largest := 0.0
	for _, id := range clusterIDs {
		size := float64(len(byCluster[id]))
		sizes = append(sizes, size)
		if size > largest {
			largest = size
		}
	}

	report.MeanClusterSize = stat.Mean(sizes, nil)
	report.StdClusterSize = stat.StdDev(sizes, nil)
	if len(sizes) == 1 {
		report.StdClusterSize = 0
	}
	sorted := append([]float64(nil), sizes...)
	sort.Float64s(sorted)
	report.MedianClusterSize = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	report.LargestClusterFrac = largest / float64(report.NumArticles)

	probs := make([]float64, len(sizes))
	for i, s := range sizes {
		probs[i] = s / float64(report.NumArticles)
	}
	report.BalanceEntropy = stat.Entropy(probs)

	if len(byCluster) >= 2 && semantic != nil {
		overall, perCluster := silhouetteFromMatrix(semantic, labels, byCluster)
		report.Silhouette = &overall
		report.ClusterSilhouettes = perCluster

		for _, id := range clusterIDs {
			s := perCluster[id]
			if report.WorstCluster == nil || s < report.WorstCluster.Silhouette {
				report.WorstCluster = &ClusterQuality{ClusterID: id, Silhouette: s}
			}
			if report.BestCluster == nil || s > report.BestCluster.Silhouette {
				report.BestCluster = &ClusterQuality{ClusterID: id, Silhouette: s}
			}
		}
	}

	if len(byCluster) >= 2 {
		if db, ok := daviesBouldin(embeddings, clusterIDs, byCluster); ok {
			report.DaviesBouldin = &db
		}
		if ch, ok := calinskiHarabasz(embeddings, byCluster, report.NumArticles); ok {
			report.CalinskiHarabasz = &ch
		}
	}

	return report, nil
}

// silhouetteFromMatrix computes per-sample silhouettes from the precomputed
// semantic distance matrix, then the overall and per-cluster means. A point
// whose intra and nearest-other distances are both zero contributes zero.
func silhouetteFromMatrix(dist *mat.SymDense, labels []int, byCluster map[int][]int) (float64, map[int]float64) {
	perCluster := make(map[int]float64, len(byCluster))
	clusterCounts := make(map[int]int, len(byCluster))
	total := 0.0
	count := 0

	for i, label := range labels {
		if label < 0 {
			continue
		}

		a := 0.0
		own := byCluster[label]
		if len(own) > 1 {
			for _, j := range own {
				if j != i {
					a += dist.At(i, j)
				}
			}
			a /= float64(len(own) - 1)
		}

		b := math.Inf(1)
		for other, indices := range byCluster {
			if other == label {
				continue
			}
			avg := 0.0
			for _, j := range indices {
				avg += dist.At(i, j)
			}
			avg /= float64(len(indices))
			if avg < b {
				b = avg
			}
		}

		s := 0.0
		if math.Max(a, b) > 0 {
			s = (b - a) / math.Max(a, b)
		}

		perCluster[label] += s
		clusterCounts[label]++
		total += s
		count++
	}

	for id := range perCluster {
		perCluster[id] /= float64(clusterCounts[id])
	}

	return total / float64(count), perCluster
}

// daviesBouldin computes the compactness/separation ratio index using cosine
// distances, consistent with the embedding space. Lower is better.
func daviesBouldin(embeddings [][]float64, clusterIDs []int, byCluster map[int][]int) (float64, bool) {
	centroids := make(map[int][]float64, len(clusterIDs))
	scatter := make(map[int]float64, len(clusterIDs))

	for _, id := range clusterIDs {
		indices := byCluster[id]
		centroids[id] = meanVector(embeddings, indices)

		if len(indices) <= 1 {
			scatter[id] = 0
			continue
		}
		totalDist := 0.0
		pairs := 0
		for x, i := range indices {
			for _, j := range indices[x+1:] {
				totalDist += 1.0 - vek.CosineSimilarity(embeddings[i], embeddings[j])
				pairs++
			}
		}
		scatter[id] = totalDist / float64(pairs)
	}

	index := 0.0
	for _, i := range clusterIDs {
		maxRatio := 0.0
		for _, j := range clusterIDs {
			if i == j {
				continue
			}
			separation := 1.0 - vek.CosineSimilarity(centroids[i], centroids[j])
			if separation > 0 {
				ratio := (scatter[i] + scatter[j]) / separation
				if ratio > maxRatio {
					maxRatio = ratio
				}
			}
		}
		index += maxRatio
	}

	return index / float64(len(clusterIDs)), true
}

// calinskiHarabasz computes the variance-ratio criterion. Higher is better.
// Undefined when n <= k (the within-cluster degrees of freedom vanish).
func calinskiHarabasz(embeddings [][]float64, byCluster map[int][]int, n int) (float64, bool) {
	k := len(byCluster)
	if n <= k {
		return 0, false
	}

	var all []int
	for _, indices := range byCluster {
		all = append(all, indices...)
	}
	overall := meanVector(embeddings, all)

	bcss := 0.0
	wcss := 0.0
	for _, indices := range byCluster {
		centroid := meanVector(embeddings, indices)
		bcss += float64(len(indices)) * squaredDistance(centroid, overall)
		for _, i := range indices {
			wcss += squaredDistance(embeddings[i], centroid)
		}
	}

	if wcss == 0 {
		return math.Inf(1), true
	}

	return (bcss / float64(k-1)) / (wcss / float64(n-k)), true
}

func meanVector(embeddings [][]float64, indices []int) []float64 {
	if len(indices) == 0 {
		return nil
	}
	dim := len(embeddings[indices[0]])
	mean := make([]float64, dim)
	for _, i := range indices {
		for j, val := range embeddings[i] {
			mean[j] += val
		}
	}
	for j := range mean {
		mean[j] /= float64(len(indices))
	}
	return mean
}

func squaredDistance(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		diff := a[i] - b[i]
		total += diff * diff
	}
	return total
}

// MetricVerdict records one metric's values and winner in a comparison.
type MetricVerdict struct {
	Metric string   `json:"metric"`
	A      *float64 `json:"a"`
	B      *float64 `json:"b"`
	Winner string   `json:"winner,omitempty"`
}

// ComparisonSummary is the side-by-side verdict between two configurations.
type ComparisonSummary struct {
	NameA   string          `json:"name_a"`
	NameB   string          `json:"name_b"`
	Metrics []MetricVerdict `json:"metrics"`
	VotesA  int             `json:"votes_a"`
	VotesB  int             `json:"votes_b"`
	Winner  string          `json:"winner"`
}

// Compare determines per-metric winners between two reports: separation
// higher wins, compactness lower wins, largest-cluster fraction lower wins.
// A no-data report loses every metric the other side has.
func Compare(a, b *QualityReport, nameA, nameB string) *ComparisonSummary {
	summary := &ComparisonSummary{NameA: nameA, NameB: nameB}

	sep := MetricVerdict{Metric: "separation"}
	if a != nil && !a.NoData {
		sep.A = a.Silhouette
	}
	if b != nil && !b.NoData {
		sep.B = b.Silhouette
	}
	decide(&sep, summary, true)

	comp := MetricVerdict{Metric: "compactness"}
	if a != nil && !a.NoData {
		comp.A = a.DaviesBouldin
	}
	if b != nil && !b.NoData {
		comp.B = b.DaviesBouldin
	}
	decide(&comp, summary, false)

	bal := MetricVerdict{Metric: "balance"}
	if a != nil && !a.NoData {
		frac := a.LargestClusterFrac
		bal.A = &frac
	}
	if b != nil && !b.NoData {
		frac := b.LargestClusterFrac
		bal.B = &frac
	}
	decide(&bal, summary, false)

	switch {
	case summary.VotesA > summary.VotesB:
		summary.Winner = nameA
	case summary.VotesB > summary.VotesA:
		summary.Winner = nameB
	default:
		summary.Winner = "tie"
	}

	return summary
}

// decide fills in a verdict's winner and counts the vote. A side with no
// value for the metric automatically loses it.
func decide(v *MetricVerdict, summary *ComparisonSummary, higherWins bool) {
	defer func() { summary.Metrics = append(summary.Metrics, *v) }()

	switch {
	case v.A == nil && v.B == nil:
		return
	case v.A == nil:
		v.Winner = summary.NameB
		summary.VotesB++
		return
	case v.B == nil:
		v.Winner = summary.NameA
		summary.VotesA++
		return
	}

	aWins := *v.A > *v.B
	if !higherWins {
		aWins = *v.A < *v.B
	}
	if *v.A == *v.B {
		return
	}
	if aWins {
		v.Winner = summary.NameA
		summary.VotesA++
	} else {
		v.Winner = summary.NameB
		summary.VotesB++
	}
}

var evaluateMode string

var EvaluateClustersCmd = &cobra.Command{
	Use:   "evaluate-clusters",
	Short: "Score a clustering run's quality",
	Run: func(cmd *cobra.Command, args []string) {
		if err := evaluateClusterRun(evaluateMode); err != nil {
			log.Printf("Failed to evaluate clusters: %v", err)
			return
		}
		log.Println("Cluster evaluation complete.")
	},
}

var CompareMethodsCmd = &cobra.Command{
	Use:   "compare-methods",
	Short: "Compare the fixed and adaptive clustering runs side by side",
	Run: func(cmd *cobra.Command, args []string) {
		if err := compareMethodRuns(); err != nil {
			log.Printf("Failed to compare methods: %v", err)
			return
		}
		log.Println("Method comparison complete.")
	},
}

func init() {
	EvaluateClustersCmd.Flags().StringVar(&evaluateMode, "mode", "adaptive", "which run to evaluate: fixed or adaptive")
}

// evaluateStoredRun loads one persisted cluster run and scores it against
// the cached embeddings.
func evaluateStoredRun(mode string) (*QualityReport, error) {
	result, err := loadClusterResult(mode)
	if err != nil {
		return nil, err
	}

	articles, err := LoadArticles(ArticlesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	if len(articles) != len(result.Labels) {
		return nil, fmt.Errorf("cluster result has %d labels for %d articles; re-run cluster-articles", len(result.Labels), len(articles))
	}

	db, err := initEmbeddingDB(EmbeddingsDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open embeddings database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	embeddings, err := LoadEmbeddings(db, articles)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	embeddings = NormalizeEmbeddings(embeddings)

	semantic, err := SemanticDistances(embeddings)
	if err != nil {
		return nil, fmt.Errorf("semantic distance stage failed: %w", err)
	}

	report, err := Evaluate(embeddings, semantic, result.Labels)
	if err != nil {
		return nil, fmt.Errorf("evaluation stage failed: %w", err)
	}

	return report, nil
}

func evaluateClusterRun(mode string) error {
	if _, err := parseMode(mode); err != nil {
		return err
	}

	report, err := evaluateStoredRun(mode)
	if err != nil {
		return err
	}

	printQualityReport(mode, report)

	if err := os.MkdirAll(ClustersDir, 0755); err != nil {
		return fmt.Errorf("failed to create clusters directory: %w", err)
	}
	return saveJSON(filepath.Join(ClustersDir, "quality_"+mode+".json"), report)
}

// compareMethodRuns evaluates both stored runs concurrently and prints the
// per-metric verdicts.
func compareMethodRuns() error {
	var fixed, adaptive *QualityReport

	var g errgroup.Group
	g.Go(func() error {
		var err error
		fixed, err = evaluateStoredRun("fixed")
		return err
	})
	g.Go(func() error {
		var err error
		adaptive, err = evaluateStoredRun("adaptive")
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	summary := Compare(fixed, adaptive, "fixed λ=0.15", "adaptive λ")

	log.Println("=====================================")
	log.Println("    CLUSTERING METHOD COMPARISON")
	log.Println("=====================================")
	for _, verdict := range summary.Metrics {
		log.Printf("  %-12s %s vs %s → %s",
			verdict.Metric, formatMetric(verdict.A), formatMetric(verdict.B), orTie(verdict.Winner))
	}
	log.Printf("🏆 Overall: %s (%d/%d votes)", summary.Winner, maxInt(summary.VotesA, summary.VotesB), summary.VotesA+summary.VotesB)

	if err := os.MkdirAll(ClustersDir, 0755); err != nil {
		return fmt.Errorf("failed to create clusters directory: %w", err)
	}
	return saveJSON(filepath.Join(ClustersDir, "comparison.json"), comparisonArtifact{
		Fixed:       fixed,
		Adaptive:    adaptive,
		Comparison:  summary,
		GeneratedAt: time.Now().UTC(),
	})
}

type comparisonArtifact struct {
	Fixed       *QualityReport     `json:"fixed"`
	Adaptive    *QualityReport     `json:"adaptive"`
	Comparison  *ComparisonSummary `json:"comparison"`
	GeneratedAt time.Time          `json:"generated_at"`
}

func printQualityReport(mode string, report *QualityReport) {
	log.Println("=====================================")
	log.Printf("  CLUSTERING QUALITY REPORT (%s)", mode)
	log.Println("=====================================")

	if report.NoData {
		log.Println("❌ No clusters available for evaluation")
		return
	}

	log.Printf("📊 Articles: %d in %d clusters (%d noise)", report.NumArticles, report.NumClusters, report.NumNoise)
	log.Printf("📈 Silhouette: %s (higher better, range -1 to 1)", formatMetric(report.Silhouette))
	log.Printf("📉 Davies-Bouldin: %s (lower better)", formatMetric(report.DaviesBouldin))
	log.Printf("📐 Calinski-Harabasz: %s (higher better)", formatMetric(report.CalinskiHarabasz))
	log.Printf("⚖️  Balance entropy: %.3f, largest cluster %.1f%%", report.BalanceEntropy, report.LargestClusterFrac*100)
	log.Printf("📏 Sizes: mean %.1f, median %.0f, std %.1f", report.MeanClusterSize, report.MedianClusterSize, report.StdClusterSize)

	if report.WorstCluster != nil && report.BestCluster != nil {
		log.Printf("🔍 Best cluster %d (silhouette %.3f), worst cluster %d (silhouette %.3f)",
			report.BestCluster.ClusterID, report.BestCluster.Silhouette,
			report.WorstCluster.ClusterID, report.WorstCluster.Silhouette)
		if report.WorstCluster.Silhouette < 0 {
			log.Printf("⚠️  Cluster %d has negative silhouette and may need review", report.WorstCluster.ClusterID)
		}
	}
}

func formatMetric(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.3f", *v)
}

func orTie(winner string) string {
	if winner == "" {
		return "tie"
	}
	return winner
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func saveJSON(path string, v any) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
