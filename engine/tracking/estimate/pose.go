package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultFovY is the vertical field of view assumed for an uncalibrated camera.
	DefaultFovY = 45 * math.Pi / 180
	// DefaultNear and DefaultFar bound the projection in marker pixel units.
	DefaultNear = 10.0
	DefaultFar  = 100000.0
)

// ModelView is a 3x4 rigid transform from marker coordinates (marker image pixels,
// z = 0 on the marker plane) into camera coordinates (x right, y down, z forward),
// stored row-major.
type ModelView [12]float64

// At returns the element at row r, column c.
func (m ModelView) At(r, c int) float64 {
	return m[r*4+c]
}

// Intrinsics returns the pinhole camera matrix for a width x height image with the
// principal point at the center and DefaultFovY.
//
// Parameters:
//   - width, height: image size in pixels
//
// Returns:
//   - Mat3: the camera matrix K
func Intrinsics(width, height int) Mat3 {
	f := (float64(height) / 2) / math.Tan(DefaultFovY/2)
	return Mat3{
		f, 0, float64(width) / 2,
		0, f, float64(height) / 2,
		0, 0, 1,
	}
}

// GLProjection converts camera intrinsics into an OpenGL-style projection matrix.
//
// Parameters:
//   - k: the camera matrix
//   - width, height: image size in pixels
//   - near, far: clip distances
//
// Returns:
//   - [16]float32: the projection, row-major
func GLProjection(k Mat3, width, height int, near, far float64) [16]float32 {
	w, h := float64(width), float64(height)
	p := [16]float64{
		2 * k[0] / w, 0, -(2*k[2]/w - 1), 0,
		0, 2 * k[4] / h, -(2*k[5]/h - 1), 0,
		0, 0, -(far + near) / (far - near), -2 * far * near / (far - near),
		0, 0, -1, 0,
	}
	var out [16]float32
	for i, v := range p {
		out[i] = float32(v)
	}
	return out
}

// PoseFromHomography recovers the marker pose from a homography mapping marker
// coordinates to image pixels. The rotation is re-orthonormalized through SVD.
//
// Parameters:
//   - h: marker-to-image homography
//   - k: the camera matrix
//
// Returns:
//   - ModelView: the marker-to-camera transform
//   - error: ErrDegenerate if h does not describe a plane in front of the camera
func PoseFromHomography(h, k Mat3) (ModelView, error) {
	kInv, err := k.Inverse()
	if err != nil {
		return ModelView{}, err
	}
	b := kInv.Mul(h)
	col := func(c int) [3]float64 { return [3]float64{b[c], b[3+c], b[6+c]} }
	b1, b2, b3 := col(0), col(1), col(2)

	n1, n2 := norm(b1), norm(b2)
	if n1 < 1e-12 || n2 < 1e-12 {
		return ModelView{}, fmt.Errorf("null homography column: %w", ErrDegenerate)
	}
	lambda := 2 / (n1 + n2)
	if b3[2]*lambda < 0 {
		lambda = -lambda
	}

	r1 := scale(b1, lambda)
	r2 := scale(b2, lambda)
	r3 := cross(r1, r2)
	t := scale(b3, lambda)

	approx := mat.NewDense(3, 3, []float64{
		r1[0], r2[0], r3[0],
		r1[1], r2[1], r3[1],
		r1[2], r2[2], r3[2],
	})
	var svd mat.SVD
	if !svd.Factorize(approx, mat.SVDFull) {
		return ModelView{}, fmt.Errorf("rotation svd failed: %w", ErrDegenerate)
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Reflect the last singular direction to stay a proper rotation.
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	var mv ModelView
	for row := 0; row < 3; row++ {
		mv[row*4+0] = r.At(row, 0)
		mv[row*4+1] = r.At(row, 1)
		mv[row*4+2] = r.At(row, 2)
		mv[row*4+3] = t[row]
	}
	return mv, nil
}

// WorldMatrix converts a model-view transform into the world matrix of a marker-
// anchored object in a right-handed y-up scene whose camera looks down -z. The marker
// image's y axis is flipped so the object's origin sits at the marker's bottom-left
// corner.
//
// Parameters:
//   - mv: the marker-to-camera transform
//   - markerHeight: the marker height in marker pixels
//
// Returns:
//   - [16]float32: the world matrix, row-major
func WorldMatrix(mv ModelView, markerHeight float64) [16]float32 {
	m := mv.At
	hh := markerHeight
	w := [16]float64{
		m(0, 0), -m(0, 1), -m(0, 2), m(0, 1)*hh + m(0, 3),
		-m(1, 0), m(1, 1), m(1, 2), -(m(1, 1)*hh + m(1, 3)),
		-m(2, 0), m(2, 1), m(2, 2), -(m(2, 1)*hh + m(2, 3)),
		0, 0, 0, 1,
	}
	var out [16]float32
	for i, v := range w {
		out[i] = float32(v)
	}
	return out
}

// ProjectMarkerPoint maps a marker-plane point through the model-view and camera
// matrix to image pixels.
func ProjectMarkerPoint(mv ModelView, k Mat3, p Point) Point {
	x := mv[0]*p.X + mv[1]*p.Y + mv[3]
	y := mv[4]*p.X + mv[5]*p.Y + mv[7]
	z := mv[8]*p.X + mv[9]*p.Y + mv[11]
	return k.Apply(Point{X: x / z, Y: y / z})
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func scale(v [3]float64, s float64) [3]float64 {
	return [3]float64{v[0] * s, v[1] * s, v[2] * s}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
