// Package estimate holds the pure geometry behind the reference tracking engine:
// homography fitting, camera intrinsics and projection, pose recovery and pose smoothing.
package estimate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when a point configuration cannot define a transform.
var ErrDegenerate = errors.New("degenerate point configuration")

// Point is a 2D image coordinate.
type Point struct {
	X, Y float64
}

// Mat3 is a 3x3 matrix stored row-major.
type Mat3 [9]float64

// Identity3 returns the 3x3 identity.
func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through the projective transform m.
func (m Mat3) Apply(p Point) Point {
	x := m[0]*p.X + m[1]*p.Y + m[2]
	y := m[3]*p.X + m[4]*p.Y + m[5]
	w := m[6]*p.X + m[7]*p.Y + m[8]
	if w == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{X: x / w, Y: y / w}
}

// Mul returns m * o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[r*3+k] * o[k*3+c]
			}
			out[r*3+c] = sum
		}
	}
	return out
}

// Inverse returns the inverse of m.
func (m Mat3) Inverse() (Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, m[:])); err != nil {
		return Mat3{}, fmt.Errorf("invert: %w", err)
	}
	var out Mat3
	copy(out[:], inv.RawMatrix().Data)
	return out, nil
}

// Normalized returns m scaled so its bottom-right element is 1.
func (m Mat3) Normalized() Mat3 {
	if m[8] == 0 {
		return m
	}
	var out Mat3
	for i := range m {
		out[i] = m[i] / m[8]
	}
	return out
}

// Homography fits the projective transform mapping src onto dst with the normalized
// direct linear transform. At least four correspondences are required.
//
// Parameters:
//   - src: points in the source plane
//   - dst: corresponding points in the destination plane
//
// Returns:
//   - Mat3: H with dst ~ H * src, normalized so H[8] == 1
//   - error: ErrDegenerate for too few or collinear points
func Homography(src, dst []Point) (Mat3, error) {
	if len(src) != len(dst) {
		return Mat3{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return Mat3{}, fmt.Errorf("need at least 4 points, got %d: %w", len(src), ErrDegenerate)
	}

	ts, ns, err := normalize(src)
	if err != nil {
		return Mat3{}, err
	}
	td, nd, err := normalize(dst)
	if err != nil {
		return Mat3{}, err
	}

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Mat3{}, fmt.Errorf("svd failed: %w", ErrDegenerate)
	}
	values := svd.Values(nil)
	if len(values) >= 8 && values[7] < 1e-10*values[0] {
		return Mat3{}, fmt.Errorf("rank deficient system: %w", ErrDegenerate)
	}
	var v mat.Dense
	svd.VTo(&v)
	var hn Mat3
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	tdInv, err := td.Inverse()
	if err != nil {
		return Mat3{}, err
	}
	h := tdInv.Mul(hn).Mul(ts)
	if h[8] == 0 {
		return Mat3{}, fmt.Errorf("homography at infinity: %w", ErrDegenerate)
	}
	return h.Normalized(), nil
}

// normalize translates points to their centroid and scales them to a mean distance of
// sqrt(2), returning the similarity transform used.
func normalize(pts []Point) (Mat3, []Point, error) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	if meanDist < 1e-12 {
		return Mat3{}, nil, fmt.Errorf("coincident points: %w", ErrDegenerate)
	}
	s := math.Sqrt2 / meanDist
	t := Mat3{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	return t, out, nil
}

// RansacOptions tunes RansacHomography.
type RansacOptions struct {
	// Iterations is the number of random minimal samples tried.
	Iterations int
	// Threshold is the maximum reprojection error in pixels for an inlier.
	Threshold float64
	// MinInliers is the smallest consensus set accepted.
	MinInliers int
	// Seed makes sampling reproducible.
	Seed uint64
}

// DefaultRansacOptions returns settings suited to ORB matches on camera frames.
func DefaultRansacOptions() RansacOptions {
	return RansacOptions{Iterations: 500, Threshold: 4, MinInliers: 8, Seed: 1}
}

// RansacHomography fits a homography robust to outlier correspondences: random
// four-point samples are scored by inlier count and the best consensus set is refit.
//
// Parameters:
//   - src: points in the source plane
//   - dst: corresponding points in the destination plane
//   - opts: sampling settings
//
// Returns:
//   - Mat3: the refit homography
//   - []int: indices of the inlier correspondences
//   - error: ErrDegenerate when no sample reaches MinInliers
func RansacHomography(src, dst []Point, opts RansacOptions) (Mat3, []int, error) {
	if len(src) != len(dst) {
		return Mat3{}, nil, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	minInliers := max(opts.MinInliers, 4)
	if len(src) < minInliers {
		return Mat3{}, nil, fmt.Errorf("need at least %d points, got %d: %w", minInliers, len(src), ErrDegenerate)
	}
	iterations := max(opts.Iterations, 1)
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 4
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	n := len(src)
	sample := make([]Point, 4)
	target := make([]Point, 4)
	var bestInliers []int

	for iter := 0; iter < iterations; iter++ {
		idx := sampleIndices(rng, n, 4)
		for i, j := range idx {
			sample[i] = src[j]
			target[i] = dst[j]
		}
		h, err := Homography(sample, target)
		if err != nil {
			continue
		}
		inliers := inliersOf(h, src, dst, threshold)
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			if len(bestInliers) == n {
				break
			}
		}
	}

	if len(bestInliers) < minInliers {
		return Mat3{}, nil, fmt.Errorf("best consensus %d below %d: %w", len(bestInliers), minInliers, ErrDegenerate)
	}

	inlierSrc := make([]Point, len(bestInliers))
	inlierDst := make([]Point, len(bestInliers))
	for i, j := range bestInliers {
		inlierSrc[i] = src[j]
		inlierDst[i] = dst[j]
	}
	h, err := Homography(inlierSrc, inlierDst)
	if err != nil {
		return Mat3{}, nil, err
	}
	return h, inliersOf(h, src, dst, threshold), nil
}

func inliersOf(h Mat3, src, dst []Point, threshold float64) []int {
	var out []int
	for i := range src {
		p := h.Apply(src[i])
		if math.Hypot(p.X-dst[i].X, p.Y-dst[i].Y) < threshold {
			out = append(out, i)
		}
	}
	return out
}

// sampleIndices draws k distinct indices from [0, n).
func sampleIndices(rng *rand.Rand, n, k int) []int {
	out := make([]int, 0, k)
	for len(out) < k {
		j := rng.IntN(n)
		dup := false
		for _, o := range out {
			if o == j {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, j)
		}
	}
	return out
}
