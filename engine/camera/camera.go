package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
)

type cameraImpl struct {
	mu *sync.Mutex

	fov    float32
	aspect float32
	near   float32
	far    float32

	// external is set once a tracking engine has supplied the projection; from then on
	// perspective parameter changes no longer rebuild it.
	external bool

	viewMatrix              common.Mat4
	projectionMatrix        common.Mat4
	viewProjectionMatrix    common.Mat4
	inverseProjectionMatrix common.Mat4
}

// Camera defines the interface for the AR camera.
// The camera sits at the origin looking down -Z; only its projection changes. Until a
// tracking engine supplies a projection the camera builds its own perspective from
// fov, aspect, near and far.
type Camera interface {
	// Fov returns the field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// ViewMatrix returns the view matrix. The camera never moves, so this is identity.
	//
	// Returns:
	//   - common.Mat4: the view matrix (column-major)
	ViewMatrix() common.Mat4

	// ProjectionMatrix returns the current projection matrix.
	//
	// Returns:
	//   - common.Mat4: the projection matrix (column-major)
	ProjectionMatrix() common.Mat4

	// ViewProjectionMatrix returns the combined view-projection matrix.
	//
	// Returns:
	//   - common.Mat4: the combined matrix (column-major)
	ViewProjectionMatrix() common.Mat4

	// InverseProjectionMatrix returns the inverse of the current projection matrix.
	//
	// Returns:
	//   - common.Mat4: the inverse projection (column-major)
	InverseProjectionMatrix() common.Mat4

	// ExternalProjection reports whether the projection was supplied through
	// SetProjectionMatrix rather than built from the perspective parameters.
	//
	// Returns:
	//   - bool: true once SetProjectionMatrix has been called
	ExternalProjection() bool

	// SetFov sets the field of view in radians and recomputes matrices.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	// Non-positive values are ignored.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetNear sets the near clipping plane distance and recomputes matrices.
	//
	// Parameters:
	//   - near: near plane distance
	SetNear(near float32)

	// SetFar sets the far clipping plane distance and recomputes matrices.
	//
	// Parameters:
	//   - far: far plane distance
	SetFar(far float32)

	// SetProjectionMatrix replaces the projection with one computed by a tracking engine
	// and refreshes the inverse projection.
	//
	// Parameters:
	//   - m: the projection matrix (column-major)
	SetProjectionMatrix(m common.Mat4)

	// ResetProjection drops an externally supplied projection and rebuilds the
	// perspective from the camera's own parameters.
	ResetProjection()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		fov:        45.0 * (math.Pi / 180.0), // radians
		aspect:     1.0,
		near:       0.1,
		far:        100.0,
		viewMatrix: common.IdentityMat4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseProjectionMatrix
}

func (c *cameraImpl) ExternalProjection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.external
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.updateMatrices()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) SetProjectionMatrix(m common.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external = true
	c.projectionMatrix = m
	c.updateDerived()
}

func (c *cameraImpl) ResetProjection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external = false
	c.updateMatrices()
}

// updateMatrices rebuilds the perspective projection unless an external one is in use,
// then refreshes the derived matrices. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if !c.external {
		common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	}
	c.updateDerived()
}

// updateDerived refreshes view-projection and inverse projection. Caller must hold the mutex.
func (c *cameraImpl) updateDerived() {
	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
	if !common.Invert4(c.inverseProjectionMatrix[:], c.projectionMatrix[:]) {
		c.inverseProjectionMatrix = common.IdentityMat4()
	}
}
