package newsgeo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticDistances(t *testing.T) {
	embeddings := [][]float64{
		{1, 0},
		{0, 1},
		{1, 0},
	}

	dist, err := SemanticDistances(embeddings)
	require.NoError(t, err)
	require.Equal(t, 3, dist.SymmetricDim())

	for i := 0; i < 3; i++ {
		assert.Zero(t, dist.At(i, i), "diagonal %d", i)
		for j := 0; j < 3; j++ {
			assert.Equal(t, dist.At(i, j), dist.At(j, i), "symmetry %d,%d", i, j)
		}
	}

	assert.InDelta(t, 1.0, dist.At(0, 1), 1e-9, "orthogonal vectors")
	assert.InDelta(t, 0.0, dist.At(0, 2), 1e-9, "identical vectors")
}

func TestSemanticDistancesDimensionMismatch(t *testing.T) {
	_, err := SemanticDistances([][]float64{{1, 0}, {1}})
	assert.Error(t, err)

	_, err = SemanticDistances(nil)
	assert.Error(t, err)
}

func TestHaversineKm(t *testing.T) {
	// Paris to London, a well-known reference distance.
	d := haversineKm(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343.5, d, 2.0)

	assert.Zero(t, haversineKm(40.0, -75.0, 40.0, -75.0))

	// Antipodal points sit at half the circumference.
	assert.InDelta(t, 20015, haversineKm(0, 0, 0, 180), 1.0)
}

func TestSpatialDistancesNormalized(t *testing.T) {
	articles := []Article{
		{ID: "a", Latitude: 48.8566, Longitude: 2.3522},   // Paris
		{ID: "b", Latitude: 51.5074, Longitude: -0.1278},  // London
		{ID: "c", Latitude: 52.5200, Longitude: 13.4050},  // Berlin
	}

	dist, err := SpatialDistances(articles)
	require.NoError(t, err)

	maxVal := 0.0
	for i := 0; i < 3; i++ {
		assert.Zero(t, dist.At(i, i))
		for j := i + 1; j < 3; j++ {
			v := dist.At(i, j)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			if v > maxVal {
				maxVal = v
			}
		}
	}

	// The farthest pair defines the scale.
	assert.InDelta(t, 1.0, maxVal, 1e-12)
}

func TestSpatialDistancesIdenticalCoordinates(t *testing.T) {
	articles := []Article{
		{ID: "a", Latitude: 40.0, Longitude: -75.0},
		{ID: "b", Latitude: 40.0, Longitude: -75.0},
		{ID: "c", Latitude: 40.0, Longitude: -75.0},
	}

	dist, err := SpatialDistances(articles)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Zero(t, dist.At(i, j), "all-identical coordinates stay zero")
		}
	}
}

func TestCombineFixed(t *testing.T) {
	embeddings := [][]float64{{1, 0}, {0, 1}, {0.6, 0.8}}
	semantic, err := SemanticDistances(embeddings)
	require.NoError(t, err)

	articles := []Article{
		{ID: "a", Latitude: 40.0, Longitude: -75.0},
		{ID: "b", Latitude: 34.0, Longitude: -118.0},
		{ID: "c", Latitude: 41.0, Longitude: -87.0},
	}
	spatial, err := SpatialDistances(articles)
	require.NoError(t, err)

	pureSemantic, err := CombineFixed(semantic, spatial, 0.0)
	require.NoError(t, err)
	pureSpatial, err := CombineFixed(semantic, spatial, 1.0)
	require.NoError(t, err)
	blended, err := CombineFixed(semantic, spatial, 0.5)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			assert.InDelta(t, semantic.At(i, j), pureSemantic.At(i, j), 1e-12)
			assert.InDelta(t, spatial.At(i, j), pureSpatial.At(i, j), 1e-12)
			assert.InDelta(t, (semantic.At(i, j)+spatial.At(i, j))/2, blended.At(i, j), 1e-12)
		}
	}
}

func TestCombineFixedValidation(t *testing.T) {
	m, err := SemanticDistances([][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)

	_, err = CombineFixed(m, m, -0.1)
	assert.Error(t, err)
	_, err = CombineFixed(m, m, 1.1)
	assert.Error(t, err)
	_, err = CombineFixed(nil, m, 0.5)
	assert.Error(t, err)

	small, err := SemanticDistances([][]float64{{1, 0}})
	require.NoError(t, err)
	_, err = CombineFixed(m, small, 0.5)
	assert.Error(t, err, "dimension mismatch")
}

func TestCombineAdaptive(t *testing.T) {
	embeddings := [][]float64{{1, 0}, {0, 1}, {0.6, 0.8}}
	semantic, err := SemanticDistances(embeddings)
	require.NoError(t, err)

	articles := []Article{
		{ID: "a", Latitude: 40.0, Longitude: -75.0},
		{ID: "b", Latitude: 34.0, Longitude: -118.0},
		{ID: "c", Latitude: 41.0, Longitude: -87.0},
	}
	spatial, err := SpatialDistances(articles)
	require.NoError(t, err)

	lambdas := []float64{0.0, 0.4, 0.15}
	combined, err := CombineAdaptive(semantic, spatial, lambdas)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			l := (lambdas[i] + lambdas[j]) / 2
			want := (1-l)*semantic.At(i, j) + l*spatial.At(i, j)
			assert.InDelta(t, want, combined.At(i, j), 1e-12, "pair %d,%d", i, j)

			// Every element stays inside the hull of its two inputs.
			lo := min(semantic.At(i, j), spatial.At(i, j))
			hi := max(semantic.At(i, j), spatial.At(i, j))
			assert.GreaterOrEqual(t, combined.At(i, j), lo-1e-12)
			assert.LessOrEqual(t, combined.At(i, j), hi+1e-12)
		}
	}
}

func TestCombineAdaptiveValidation(t *testing.T) {
	m, err := SemanticDistances([][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)

	_, err = CombineAdaptive(m, m, []float64{0.15})
	assert.Error(t, err, "weight count mismatch")

	_, err = CombineAdaptive(m, m, []float64{0.15, 1.5})
	assert.Error(t, err, "out-of-range weight")
}
