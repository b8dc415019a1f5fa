package estimate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testH = Mat3{
	1.2, 0.1, 30,
	-0.05, 0.9, 12,
	0.0004, -0.0002, 1,
}

func grid(n int, step float64) []Point {
	var pts []Point
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			pts = append(pts, Point{X: float64(x)*step + 3, Y: float64(y)*step + 7})
		}
	}
	return pts
}

func mapAll(h Mat3, pts []Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = h.Apply(p)
	}
	return out
}

func assertMat3InDelta(t *testing.T, want, got Mat3, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "element %d", i)
	}
}

func TestHomographyRecoversExactTransform(t *testing.T) {
	t.Parallel()
	src := grid(5, 40)
	h, err := Homography(src, mapAll(testH, src))
	require.NoError(t, err)
	assertMat3InDelta(t, testH.Normalized(), h.Normalized(), 1e-6)
}

func TestHomographyMinimalSample(t *testing.T) {
	t.Parallel()
	src := []Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	h, err := Homography(src, mapAll(testH, src))
	require.NoError(t, err)
	for _, p := range src {
		got, want := h.Apply(p), testH.Apply(p)
		assert.InDelta(t, want.X, got.X, 1e-6)
		assert.InDelta(t, want.Y, got.Y, 1e-6)
	}
}

func TestHomographyDegenerate(t *testing.T) {
	t.Parallel()
	collinear := []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}
	_, err := Homography(collinear, collinear)
	assert.True(t, errors.Is(err, ErrDegenerate))

	_, err = Homography([]Point{{0, 0}, {1, 0}, {0, 1}}, []Point{{0, 0}, {1, 0}, {0, 1}})
	assert.Error(t, err)
}

func TestMat3Inverse(t *testing.T) {
	t.Parallel()
	inv, err := testH.Inverse()
	require.NoError(t, err)
	assertMat3InDelta(t, Identity3(), testH.Mul(inv), 1e-9)

	_, err = Mat3{}.Inverse()
	assert.Error(t, err)
}

func TestRansacRejectsOutliers(t *testing.T) {
	t.Parallel()
	src := grid(7, 25)
	dst := mapAll(testH, src)
	outliers := map[int]bool{}
	for i := 0; i < len(src); i += 5 {
		dst[i] = Point{X: dst[i].X + 80 + float64(i), Y: dst[i].Y - 60}
		outliers[i] = true
	}

	h, inliers, err := RansacHomography(src, dst, DefaultRansacOptions())
	require.NoError(t, err)
	assert.Len(t, inliers, len(src)-len(outliers))
	for _, i := range inliers {
		assert.False(t, outliers[i], "outlier %d kept", i)
	}
	assertMat3InDelta(t, testH.Normalized(), h.Normalized(), 1e-6)
}

func TestRansacNeedsEnoughPoints(t *testing.T) {
	t.Parallel()
	src := grid(2, 10)
	_, _, err := RansacHomography(src, mapAll(testH, src), DefaultRansacOptions())
	assert.ErrorIs(t, err, ErrDegenerate)

	_, _, err = RansacHomography(src, src[:2], DefaultRansacOptions())
	assert.Error(t, err)
}

func TestNormalizedScalesToUnitCorner(t *testing.T) {
	t.Parallel()
	var m Mat3
	for i := range testH {
		m[i] = testH[i] * -4
	}
	n := m.Normalized()
	assert.InDelta(t, 1, n[8], 1e-12)
	assert.False(t, math.IsNaN(n[0]))
	assertMat3InDelta(t, testH, n, 1e-12)
}
