package newsgeo

import (
	"fmt"
	"math"
	"runtime"

	"github.com/viterin/vek"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const earthRadiusKm = 6371.0

// DistanceSet bundles the three matrices of one clustering run. All are
// symmetric with zero diagonal; Combined is derived from the other two and
// never mutated independently.
type DistanceSet struct {
	Semantic *mat.SymDense
	Spatial  *mat.SymDense
	Combined *mat.SymDense
}

// SemanticDistances computes the pairwise cosine-distance matrix. Rows are
// computed in parallel; every element depends only on its own pair of
// vectors, so parallel and sequential runs are bit-identical.
func SemanticDistances(embeddings [][]float64) (*mat.SymDense, error) {
	n := len(embeddings)
	if n == 0 {
		return nil, fmt.Errorf("no embeddings to compute distances for")
	}

	dim := len(embeddings[0])
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(e), dim)
		}
	}

	dist := mat.NewSymDense(n, nil)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < n; i++ {
		g.Go(func() error {
			for j := i + 1; j < n; j++ {
				dist.SetSym(i, j, 1.0-vek.CosineSimilarity(embeddings[i], embeddings[j]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dist, nil
}

// SpatialDistances computes pairwise haversine distances normalized into
// [0,1] by the run's own maximum. When all coordinates coincide the maximum
// is zero and the normalized matrix is defined as all-zero.
func SpatialDistances(articles []Article) (*mat.SymDense, error) {
	n := len(articles)
	if n == 0 {
		return nil, fmt.Errorf("no articles to compute distances for")
	}

	dist := mat.NewSymDense(n, nil)
	maxDist := 0.0

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			km := haversineKm(articles[i].Latitude, articles[i].Longitude,
				articles[j].Latitude, articles[j].Longitude)
			dist.SetSym(i, j, km)
			if km > maxDist {
				maxDist = km
			}
		}
	}

	if maxDist == 0 {
		return dist, nil
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, dist.At(i, j)/maxDist)
		}
	}

	return dist, nil
}

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// CombineFixed blends semantic and spatial distances with one global λ.
// This is the historical baseline policy.
func CombineFixed(semantic, spatial *mat.SymDense, lambda float64) (*mat.SymDense, error) {
	n, err := checkCombineDims(semantic, spatial)
	if err != nil {
		return nil, err
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("spatial weight must be in [0,1], got %v", lambda)
	}

	combined := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			combined.SetSym(i, j, (1-lambda)*semantic.At(i, j)+lambda*spatial.At(i, j))
		}
	}

	return combined, nil
}

// CombineAdaptive blends per pair using λ_ij = (λ_i + λ_j) / 2. Syndicated
// pairs cluster purely semantically, local pairs keep strong geographic
// separation, and mixed pairs get an intermediate blend. Every element stays
// within the convex hull of its semantic and spatial inputs.
func CombineAdaptive(semantic, spatial *mat.SymDense, lambdas []float64) (*mat.SymDense, error) {
	n, err := checkCombineDims(semantic, spatial)
	if err != nil {
		return nil, err
	}
	if len(lambdas) != n {
		return nil, fmt.Errorf("weight count %d does not match matrix dimension %d", len(lambdas), n)
	}
	for i, l := range lambdas {
		if l < 0 || l > 1 {
			return nil, fmt.Errorf("spatial weight %d must be in [0,1], got %v", i, l)
		}
	}

	combined := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			lambda := (lambdas[i] + lambdas[j]) / 2
			combined.SetSym(i, j, (1-lambda)*semantic.At(i, j)+lambda*spatial.At(i, j))
		}
	}

	return combined, nil
}

func checkCombineDims(semantic, spatial *mat.SymDense) (int, error) {
	if semantic == nil || spatial == nil {
		return 0, fmt.Errorf("both distance matrices are required")
	}
	n := semantic.SymmetricDim()
	if m := spatial.SymmetricDim(); m != n {
		return 0, fmt.Errorf("matrix dimensions do not match: semantic %d, spatial %d", n, m)
	}
	if n == 0 {
		return 0, fmt.Errorf("empty distance matrix")
	}
	return n, nil
}
