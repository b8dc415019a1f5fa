package estimate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rotation returns Rx(a) * Ry(b), row-major.
func rotation(a, b float64) [9]float64 {
	ca, sa := math.Cos(a), math.Sin(a)
	cb, sb := math.Cos(b), math.Sin(b)
	return [9]float64{
		cb, 0, sb,
		sa * sb, ca, -sa * cb,
		-ca * sb, sa, ca * cb,
	}
}

func poseHomography(k Mat3, r [9]float64, t [3]float64) Mat3 {
	rt := Mat3{
		r[0], r[1], t[0],
		r[3], r[4], t[1],
		r[6], r[7], t[2],
	}
	return k.Mul(rt)
}

func TestIntrinsics(t *testing.T) {
	t.Parallel()
	k := Intrinsics(640, 480)
	f := 240 / math.Tan(22.5*math.Pi/180)
	assert.InDelta(t, f, k[0], 1e-9)
	assert.InDelta(t, f, k[4], 1e-9)
	assert.Equal(t, 320.0, k[2])
	assert.Equal(t, 240.0, k[5])
	assert.Equal(t, 1.0, k[8])
}

func TestGLProjection(t *testing.T) {
	t.Parallel()
	k := Intrinsics(640, 480)
	p := GLProjection(k, 640, 480, DefaultNear, DefaultFar)

	assert.InDelta(t, 2*k[0]/640, p[0], 1e-4)
	assert.InDelta(t, 2*k[4]/480, p[5], 1e-4)
	assert.InDelta(t, 0, p[2], 1e-6)
	assert.InDelta(t, 0, p[6], 1e-6)
	assert.InDelta(t, -(DefaultFar+DefaultNear)/(DefaultFar-DefaultNear), p[10], 1e-6)
	assert.InDelta(t, -2*DefaultFar*DefaultNear/(DefaultFar-DefaultNear), p[11], 1e-3)
	assert.Equal(t, float32(-1), p[14])
	assert.Equal(t, float32(0), p[15])
}

func TestPoseFromHomographyRecoversPose(t *testing.T) {
	t.Parallel()
	k := Intrinsics(640, 480)
	r := rotation(0.3, -0.2)
	tr := [3]float64{-40, 25, 900}
	h := poseHomography(k, r, tr)

	for _, scale := range []float64{1, 0.01, -3} {
		var scaled Mat3
		for i := range h {
			scaled[i] = h[i] * scale
		}
		mv, err := PoseFromHomography(scaled, k)
		require.NoError(t, err)
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				assert.InDelta(t, r[row*3+col], mv.At(row, col), 1e-6, "r[%d][%d] scale %v", row, col, scale)
			}
			assert.InDelta(t, tr[row], mv.At(row, 3), 1e-4, "t[%d] scale %v", row, scale)
		}
	}
}

func TestPoseFromHomographyDegenerate(t *testing.T) {
	t.Parallel()
	_, err := PoseFromHomography(Mat3{0, 0, 1, 0, 0, 1, 0, 0, 1}, Intrinsics(640, 480))
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestProjectMarkerPointMatchesHomography(t *testing.T) {
	t.Parallel()
	k := Intrinsics(800, 600)
	h := poseHomography(k, rotation(-0.1, 0.4), [3]float64{10, -5, 1200})
	mv, err := PoseFromHomography(h, k)
	require.NoError(t, err)

	for _, p := range []Point{{0, 0}, {200, 0}, {200, 300}, {57, 121}} {
		want := h.Apply(p)
		got := ProjectMarkerPoint(mv, k, p)
		assert.InDelta(t, want.X, got.X, 1e-6)
		assert.InDelta(t, want.Y, got.Y, 1e-6)
	}
}

func TestWorldMatrixFlipsAxes(t *testing.T) {
	t.Parallel()
	mv := ModelView{
		1, 0, 0, 15,
		0, 1, 0, -8,
		0, 0, 1, 700,
	}
	w := WorldMatrix(mv, 100)
	want := [16]float32{
		1, 0, 0, 15,
		0, 1, 0, -92,
		0, 0, 1, -700,
		0, 0, 0, 1,
	}
	assert.Equal(t, want, w)

	// A rotation about z flips sign in the off-diagonal terms it touches.
	mv = ModelView{
		0, -1, 0, 0,
		1, 0, 0, 0,
		0, 0, 1, 500,
	}
	w = WorldMatrix(mv, 50)
	assert.Equal(t, float32(1), w[1])
	assert.Equal(t, float32(-1), w[4])
	assert.Equal(t, float32(-50), w[3])
	assert.Equal(t, float32(-500), w[11])
}
