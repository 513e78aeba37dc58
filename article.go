package newsgeo

import (
	"encoding/json"
	"fmt"
	"os"
)

// Article represents one input record from the data-acquisition pipeline.
// Text carries the single canonical clustering text (title or enriched full
// text); choosing the best available field is the producer's responsibility,
// not this package's.
type Article struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	URL       string  `json:"url"`
	Location  string  `json:"location_name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LoadArticles reads and validates the article input file.
func LoadArticles(path string) ([]Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read articles file: %w", err)
	}

	var articles []Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("failed to parse articles JSON: %w", err)
	}

	if err := ValidateArticles(articles); err != nil {
		return nil, err
	}

	return articles, nil
}

// ValidateArticles checks the input contract: every record has an id and
// in-range coordinates. Rows without coordinates must be filtered out by the
// caller before entering the pipeline.
func ValidateArticles(articles []Article) error {
	for i, a := range articles {
		if a.ID == "" {
			return fmt.Errorf("article %d has no id", i)
		}
		if a.Latitude < -90 || a.Latitude > 90 {
			return fmt.Errorf("article %s has invalid latitude %v", a.ID, a.Latitude)
		}
		if a.Longitude < -180 || a.Longitude > 180 {
			return fmt.Errorf("article %s has invalid longitude %v", a.ID, a.Longitude)
		}
	}
	return nil
}
