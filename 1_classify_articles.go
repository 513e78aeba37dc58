package newsgeo

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/cobra"
	"github.com/viterin/vek"
)

// Spatial weights assigned by the classifier. Syndicated wire content gets
// pure semantic clustering; local reporting with local quotes gets the
// strongest geographic pull.
const (
	WeightSyndicated      = 0.0
	WeightDefault         = 0.15
	WeightLocalOnly       = 0.25
	WeightLocalWithQuotes = 0.4
)

// classifierCacheSize bounds the memoization caches. URL-keyed entries use a
// fixed-length prefix, so memory stays bounded even with unbounded query
// strings.
const classifierCacheSize = 4096

// urlCacheKeyLen is how much of the URL participates in the syndication
// cache key.
const urlCacheKeyLen = 50

// Known syndicated and wire-service source domains.
var syndicatedSources = []string{
	"ap.org", "apnews.com", "reuters.com", "bloomberg.com",
	"afp.com", "upi.com", "prnewswire.com", "businesswire.com",
	"marketwatch.com", "cnbc.com", "cnn.com", "foxnews.com",
	"nbcnews.com", "abcnews.go.com", "cbsnews.com",
}

// Syndication markers that appear in redistributed article text.
var syndicationMarkers = []string{
	"associated press", "ap reports", "(ap)", "(ap) --",
	"reuters reports", "(reuters)",
	"bloomberg news",
	"this story was originally published",
	"originally appeared on",
	"distributed by",
	"wire service report",
	"staff and wire reports",
	"staff report",
	"wire reports",
	"contributing:",
}

// Formulaic bureaucratic phrases common in wire copy.
var formulaicPhrases = []string{
	"according to", "officials said", "in a statement",
	"announced today", "reported that", "sources told",
	"spokesperson said", "press release", "issued a statement",
}

// Lexical markers of local news outlet names.
var localNewsIndicators = []string{
	"local", "city", "town", "county", "daily",
	"tribune", "gazette", "herald", "times",
	"post", "chronicle", "journal", "news",
	"observer", "sentinel", "dispatch",
}

// Titles of local officials whose presence suggests original local reporting.
var localOfficialTitles = []string{
	"mayor", "councilmember", "council member", "alderman",
	"supervisor", "commissioner", "local official",
	"city manager", "town manager", "selectman",
	"city council", "town council", "board of supervisors",
}

// Generic country/nationality tokens excluded from location matching.
var genericLocationTokens = map[string]struct{}{
	"united": {}, "states": {}, "america": {}, "american": {}, "americans": {},
}

// WeightStats tracks how many articles landed in each λ bucket.
type WeightStats struct {
	Syndicated      int `json:"syndicated"`
	LocalWithQuotes int `json:"local_with_quotes"`
	LocalOnly       int `json:"local_only"`
	Default         int `json:"default"`
	DedupOverrides  int `json:"dedup_overrides"`
}

// WeightClassifier assigns per-article spatial weights based on provenance
// heuristics. Caches are instance-scoped so concurrent runs stay isolated;
// discard the classifier at the end of a run.
type WeightClassifier struct {
	cfg ClusterConfig

	sourceMatcher    *ahocorasick.Matcher
	markerMatcher    *ahocorasick.Matcher
	formulaicMatcher *ahocorasick.Matcher
	indicatorMatcher *ahocorasick.Matcher
	titleMatcher     *ahocorasick.Matcher

	syndicationCache *lru.Cache[string, bool]
	localCache       *lru.Cache[string, bool]

	stats WeightStats
}

// NewWeightClassifier builds the marker matchers and memoization caches.
func NewWeightClassifier(cfg ClusterConfig) *WeightClassifier {
	syndicationCache, _ := lru.New[string, bool](classifierCacheSize)
	localCache, _ := lru.New[string, bool](classifierCacheSize)

	return &WeightClassifier{
		cfg:              cfg,
		sourceMatcher:    ahocorasick.NewStringMatcher(syndicatedSources),
		markerMatcher:    ahocorasick.NewStringMatcher(syndicationMarkers),
		formulaicMatcher: ahocorasick.NewStringMatcher(formulaicPhrases),
		indicatorMatcher: ahocorasick.NewStringMatcher(localNewsIndicators),
		titleMatcher:     ahocorasick.NewStringMatcher(localOfficialTitles),
		syndicationCache: syndicationCache,
		localCache:       localCache,
	}
}

// DetectSyndication reports whether an article is redistributed wire
// content. Checks source domain first, then text markers within the leading
// window, then formulaic-phrase density on long articles. Results are
// memoized per (source, URL prefix).
func (c *WeightClassifier) DetectSyndication(source, text, url string) bool {
	key := source + "|" + truncate(url, urlCacheKeyLen)
	if hit, ok := c.syndicationCache.Get(key); ok {
		return hit
	}

	result := c.detectSyndication(source, text)
	c.syndicationCache.Add(key, result)
	return result
}

func (c *WeightClassifier) detectSyndication(source, text string) bool {
	sourceLower := strings.ToLower(source)
	if len(c.sourceMatcher.Match([]byte(sourceLower))) > 0 {
		return true
	}

	window := strings.ToLower(truncate(text, c.cfg.SyndicationTextWindow))
	if len(c.markerMatcher.Match([]byte(window))) > 0 {
		return true
	}

	// Very formulaic language over a long article is itself wire evidence.
	// Short articles are exempt to avoid false positives.
	if len(text) > c.cfg.FormulaicMinTextLength {
		distinct := len(c.formulaicMatcher.Match([]byte(strings.ToLower(text))))
		if distinct >= c.cfg.FormulaicPhraseCutoff {
			return true
		}
	}

	return false
}

// DetectLocalNews reports whether the source looks like a local outlet for
// the given location: either a location token appears in the source domain,
// or the source name carries at least two local-news lexical markers.
// Memoized per (source, location).
func (c *WeightClassifier) DetectLocalNews(source, location string) bool {
	key := source + "|" + location
	if hit, ok := c.localCache.Get(key); ok {
		return hit
	}

	result := c.detectLocalNews(source, location)
	c.localCache.Add(key, result)
	return result
}

func (c *WeightClassifier) detectLocalNews(source, location string) bool {
	sourceLower := strings.ToLower(source)

	for _, token := range locationTokens(location) {
		if strings.Contains(sourceLower, token) {
			return true
		}
	}

	// US metro outlets often brand their domain with the city initialism
	// (sfchronicle.com, latimes.com). Require it as a prefix so a stray
	// two-letter sequence mid-domain does not count.
	if abbr := cityInitialism(location); len(abbr) >= 2 && strings.HasPrefix(sourceLower, abbr) {
		return true
	}

	return len(c.indicatorMatcher.Match([]byte(sourceLower))) >= 2
}

// cityInitialism returns the lowercased initials of the city part of a
// location, the segment before the first comma ("San Francisco, CA" -> "sf").
// Generic country words produce no initialism, so "United States" never
// matches usatoday.com.
func cityInitialism(location string) string {
	city, _, _ := strings.Cut(location, ",")
	var b strings.Builder
	for _, word := range strings.Fields(strings.ToLower(city)) {
		if _, generic := genericLocationTokens[word]; generic {
			return ""
		}
		b.WriteByte(word[0])
	}
	return b.String()
}

// locationTokens extracts candidate city/state tokens from a free-text
// location: longer than 4 characters and not a generic country word.
func locationTokens(location string) []string {
	var tokens []string
	cleaned := strings.ReplaceAll(strings.ToLower(location), ",", " ")
	for _, part := range strings.Fields(cleaned) {
		if len(part) <= 4 {
			continue
		}
		if _, generic := genericLocationTokens[part]; generic {
			continue
		}
		tokens = append(tokens, part)
	}
	return tokens
}

// HasLocalQuotes reports whether the text mentions a local official title,
// suggesting original on-the-ground reporting.
func (c *WeightClassifier) HasLocalQuotes(text string) bool {
	if len(text) < c.cfg.LocalQuoteMinTextLength {
		return false
	}
	return len(c.titleMatcher.Match([]byte(strings.ToLower(text)))) > 0
}

// AssignWeight computes the spatial weight for one article. Syndication
// dominates every other signal.
func (c *WeightClassifier) AssignWeight(a Article) float64 {
	if c.DetectSyndication(a.Source, a.Text, a.URL) {
		c.stats.Syndicated++
		return WeightSyndicated
	}

	isLocal := c.DetectLocalNews(a.Source, a.Location)
	hasQuotes := c.HasLocalQuotes(a.Text)

	switch {
	case isLocal && hasQuotes:
		c.stats.LocalWithQuotes++
		return WeightLocalWithQuotes
	case isLocal || hasQuotes:
		c.stats.LocalOnly++
		return WeightLocalOnly
	default:
		c.stats.Default++
		return WeightDefault
	}
}

// AssignWeights classifies the whole batch. Deterministic for identical
// input: no randomness, no network calls. Malformed rows fall through every
// boolean check and resolve to the default weight.
func (c *WeightClassifier) AssignWeights(articles []Article) []float64 {
	c.stats = WeightStats{}

	weights := make([]float64, len(articles))
	for i, a := range articles {
		weights[i] = c.AssignWeight(a)
	}
	return weights
}

// ApplyDuplicateOverride forces λ=0 on articles with many near-duplicate
// embeddings: identical copy appearing across many sources is strong
// syndication evidence even when the rule-based checks miss it. Runs after
// the embedding stage over the shared embeddings artifact. Returns how many
// weights were overridden.
func (c *WeightClassifier) ApplyDuplicateOverride(weights []float64, embeddings [][]float64) (int, error) {
	if len(weights) != len(embeddings) {
		return 0, fmt.Errorf("weight count %d does not match embedding count %d", len(weights), len(embeddings))
	}

	overridden := 0
	for i := range embeddings {
		duplicates := 0
		for j := range embeddings {
			if i == j {
				continue
			}
			if vek.CosineSimilarity(embeddings[i], embeddings[j]) > c.cfg.DedupSimilarity {
				duplicates++
			}
		}
		if duplicates >= c.cfg.DedupMinDuplicates && weights[i] != WeightSyndicated {
			weights[i] = WeightSyndicated
			overridden++
		}
	}

	c.stats.DedupOverrides = overridden
	return overridden, nil
}

// Stats returns the λ distribution accumulated by the last batch run.
func (c *WeightClassifier) Stats() WeightStats {
	return c.stats
}

func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// WeightsArtifact is the persisted output of the classification stage.
type WeightsArtifact struct {
	Weights     []float64   `json:"weights"`
	ArticleIDs  []string    `json:"article_ids"`
	Stats       WeightStats `json:"stats"`
	GeneratedAt time.Time   `json:"generated_at"`
}

var ClassifyArticlesCmd = &cobra.Command{
	Use:   "classify-articles",
	Short: "Assign per-article spatial weights from provenance heuristics",
	Run: func(cmd *cobra.Command, args []string) {
		if err := classifyAllArticles(); err != nil {
			log.Printf("Failed to classify articles: %v", err)
			return
		}
		log.Println("Article classification complete.")
	},
}

// classifyAllArticles runs the rule-based classifier over the input file and
// persists the weights. The embedding-based duplicate override happens later
// in the clustering stage, once embeddings exist.
func classifyAllArticles() error {
	cfg, err := LoadClusterConfig(ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	articles, err := LoadArticles(ArticlesFile)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}

	log.Printf("🔧 Calculating adaptive spatial weights for %d articles...", len(articles))

	classifier := NewWeightClassifier(cfg)
	weights := classifier.AssignWeights(articles)
	stats := classifier.Stats()

	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	artifact := WeightsArtifact{
		Weights:     weights,
		ArticleIDs:  ids,
		Stats:       stats,
		GeneratedAt: time.Now().UTC(),
	}

	if err := saveWeights(artifact); err != nil {
		return err
	}

	total := len(articles)
	log.Println("📊 Adaptive weight distribution:")
	logWeightBucket("syndicated", WeightSyndicated, stats.Syndicated, total)
	logWeightBucket("default", WeightDefault, stats.Default, total)
	logWeightBucket("local or quotes", WeightLocalOnly, stats.LocalOnly, total)
	logWeightBucket("local + quotes", WeightLocalWithQuotes, stats.LocalWithQuotes, total)

	return nil
}

func logWeightBucket(label string, weight float64, count, total int) {
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(count) / float64(total)
	}
	log.Printf("  λ = %.2f (%-15s): %3d articles (%5.1f%%)", weight, label, count, pct)
}

func saveWeights(artifact WeightsArtifact) error {
	jsonData, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}

	if err := os.WriteFile(WeightsFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write weights file: %w", err)
	}

	return nil
}

// loadWeights reads the classification stage's output back for clustering.
func loadWeights() (WeightsArtifact, error) {
	var artifact WeightsArtifact

	data, err := os.ReadFile(WeightsFile)
	if err != nil {
		return artifact, fmt.Errorf("failed to read weights file: %w", err)
	}

	if err := json.Unmarshal(data, &artifact); err != nil {
		return artifact, fmt.Errorf("failed to parse weights JSON: %w", err)
	}

	return artifact, nil
}
