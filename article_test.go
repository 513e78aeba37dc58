package newsgeo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadArticles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "a1", "text": "city hall update", "source": "example.org",
		 "location_name": "Springfield", "latitude": 39.8, "longitude": -89.6}
	]`), 0644))

	articles, err := LoadArticles(path)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "a1", articles[0].ID)
	assert.Equal(t, "Springfield", articles[0].Location)
	assert.InDelta(t, 39.8, articles[0].Latitude, 1e-12)
}

func TestLoadArticlesErrors(t *testing.T) {
	_, err := LoadArticles(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "articles.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	_, err = LoadArticles(path)
	assert.Error(t, err)
}

func TestValidateArticles(t *testing.T) {
	valid := []Article{{ID: "a", Latitude: 45, Longitude: -122}}
	assert.NoError(t, ValidateArticles(valid))

	tests := []struct {
		name    string
		article Article
	}{
		{"missing id", Article{Latitude: 45, Longitude: -122}},
		{"latitude too high", Article{ID: "a", Latitude: 91}},
		{"latitude too low", Article{ID: "a", Latitude: -91}},
		{"longitude too high", Article{ID: "a", Longitude: 181}},
		{"longitude too low", Article{ID: "a", Longitude: -181}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateArticles([]Article{tt.article}))
		})
	}
}
