package game_object

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-ar/common"
)

// nextID hands out object ids for objects built without WithID.
var nextID atomic.Uint64

type gameObject struct {
	mu *sync.RWMutex

	id               uint64
	name             string
	visible          atomic.Bool
	matrixAutoUpdate bool

	position [3]float32
	rotation [4]float32 // quaternion x, y, z, w
	scale    [3]float32
	matrix   common.Mat4

	parent   GameObject
	children []GameObject
}

// GameObject defines the interface for a scene node with a local transform, a
// visibility flag and attached children. The AR anchor is a GameObject whose matrix
// is written directly by the pose composer with matrix auto-update disabled; content
// attached beneath it follows the marker.
type GameObject interface {
	// ID returns the object's unique identifier.
	//
	// Returns:
	//   - uint64: the object ID
	ID() uint64

	// Name returns the object's display name.
	//
	// Returns:
	//   - string: the name, possibly empty
	Name() string

	// Visible returns whether this object and its children are drawn.
	//
	// Returns:
	//   - bool: true if visible
	Visible() bool

	// SetVisible sets the visibility flag.
	//
	// Parameters:
	//   - visible: true to show the object
	SetVisible(visible bool)

	// MatrixAutoUpdate reports whether the local matrix is rebuilt from position,
	// rotation and scale whenever one of them changes.
	//
	// Returns:
	//   - bool: true when the matrix is derived
	MatrixAutoUpdate() bool

	// SetMatrixAutoUpdate toggles derivation of the local matrix.
	//
	// Parameters:
	//   - auto: false to have SetMatrix be the only writer
	SetMatrixAutoUpdate(auto bool)

	// Matrix returns the local transform.
	//
	// Returns:
	//   - common.Mat4: the local matrix (column-major)
	Matrix() common.Mat4

	// SetMatrix replaces the local transform as a whole.
	//
	// Parameters:
	//   - m: the new local matrix (column-major)
	SetMatrix(m common.Mat4)

	// Position returns the local position.
	//
	// Returns:
	//   - x, y, z: position components
	Position() (x, y, z float32)

	// SetPosition sets the local position and rebuilds the matrix if auto-update is on.
	//
	// Parameters:
	//   - x, y, z: new position components
	SetPosition(x, y, z float32)

	// Scale returns the local scale.
	//
	// Returns:
	//   - sx, sy, sz: scale components
	Scale() (sx, sy, sz float32)

	// SetScale sets the local scale and rebuilds the matrix if auto-update is on.
	//
	// Parameters:
	//   - sx, sy, sz: new scale components
	SetScale(sx, sy, sz float32)

	// SetRotation sets the local rotation quaternion and rebuilds the matrix if auto-update is on.
	//
	// Parameters:
	//   - x, y, z, w: quaternion components
	SetRotation(x, y, z, w float32)

	// Parent returns the object this one is attached to, or nil.
	//
	// Returns:
	//   - GameObject: the parent or nil
	Parent() GameObject

	// Children returns a copy of the attached children.
	//
	// Returns:
	//   - []GameObject: the children in attach order
	Children() []GameObject

	// AddChild attaches child beneath this object, detaching it from any previous parent.
	//
	// Parameters:
	//   - child: the object to attach
	AddChild(child GameObject)

	// RemoveChild detaches child if it is attached to this object.
	//
	// Parameters:
	//   - child: the object to detach
	RemoveChild(child GameObject)

	// WorldMatrix returns the local matrix pre-multiplied by every ancestor's matrix.
	//
	// Returns:
	//   - common.Mat4: the world matrix (column-major)
	WorldMatrix() common.Mat4

	// WorldVisible reports whether this object and every ancestor are visible.
	//
	// Returns:
	//   - bool: true if the object would be drawn
	WorldVisible() bool

	setParent(parent GameObject)
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new GameObject at the origin with unit scale, visible and
// with matrix auto-update on.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		mu:               &sync.RWMutex{},
		id:               nextID.Add(1),
		matrixAutoUpdate: true,
		rotation:         [4]float32{0, 0, 0, 1},
		scale:            [3]float32{1, 1, 1},
		matrix:           common.IdentityMat4(),
	}
	obj.visible.Store(true)
	for _, option := range options {
		option(obj)
	}
	obj.rebuild()
	return obj
}

func (g *gameObject) ID() uint64 {
	return g.id
}

func (g *gameObject) Name() string {
	return g.name
}

func (g *gameObject) Visible() bool {
	return g.visible.Load()
}

func (g *gameObject) SetVisible(visible bool) {
	g.visible.Store(visible)
}

func (g *gameObject) MatrixAutoUpdate() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.matrixAutoUpdate
}

func (g *gameObject) SetMatrixAutoUpdate(auto bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.matrixAutoUpdate = auto
	g.rebuild()
}

func (g *gameObject) Matrix() common.Mat4 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.matrix
}

func (g *gameObject) SetMatrix(m common.Mat4) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.matrix = m
}

func (g *gameObject) Position() (x, y, z float32) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.position[0], g.position[1], g.position[2]
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position = [3]float32{x, y, z}
	g.rebuild()
}

func (g *gameObject) Scale() (sx, sy, sz float32) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scale[0], g.scale[1], g.scale[2]
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = [3]float32{sx, sy, sz}
	g.rebuild()
}

func (g *gameObject) SetRotation(x, y, z, w float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = [4]float32{x, y, z, w}
	g.rebuild()
}

func (g *gameObject) Parent() GameObject {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parent
}

func (g *gameObject) Children() []GameObject {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.children)
}

func (g *gameObject) AddChild(child GameObject) {
	if child == nil || child == GameObject(g) {
		return
	}
	if prev := child.Parent(); prev != nil {
		prev.RemoveChild(child)
	}
	g.mu.Lock()
	g.children = append(g.children, child)
	g.mu.Unlock()
	child.setParent(g)
}

func (g *gameObject) RemoveChild(child GameObject) {
	g.mu.Lock()
	idx := slices.Index(g.children, child)
	if idx < 0 {
		g.mu.Unlock()
		return
	}
	g.children = slices.Delete(g.children, idx, idx+1)
	g.mu.Unlock()
	child.setParent(nil)
}

func (g *gameObject) WorldMatrix() common.Mat4 {
	local := g.Matrix()
	parent := g.Parent()
	if parent == nil {
		return local
	}
	return parent.WorldMatrix().Mul(local)
}

func (g *gameObject) WorldVisible() bool {
	if !g.Visible() {
		return false
	}
	parent := g.Parent()
	return parent == nil || parent.WorldVisible()
}

func (g *gameObject) setParent(parent GameObject) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parent = parent
}

// rebuild recomposes the local matrix from position, rotation and scale when
// auto-update is on. Caller must hold the write lock or own the object exclusively.
func (g *gameObject) rebuild() {
	if !g.matrixAutoUpdate {
		return
	}
	g.matrix = common.Compose(g.position, g.rotation, g.scale)
}
