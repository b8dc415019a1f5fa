package game_object

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithName sets the display name of the GameObject.
//
// Parameters:
//   - name: the name used in logs
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the name
func WithName(name string) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.name = name
	}
}

// WithVisible sets the initial visibility of the GameObject.
//
// Parameters:
//   - visible: true to draw the object
//
// Returns:
//   - GameObjectBuilderOption: functional option to set visibility
func WithVisible(visible bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.visible.Store(visible)
	}
}

// WithPosition sets the initial local position of the GameObject.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.position = [3]float32{x, y, z}
	}
}

// WithScale sets the initial local scale of the GameObject.
//
// Parameters:
//   - sx, sy, sz: scale components
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the scale
func WithScale(sx, sy, sz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.scale = [3]float32{sx, sy, sz}
	}
}

// WithMatrixAutoUpdate sets whether the local matrix is derived from position,
// rotation and scale. Anchors are built with this off.
//
// Parameters:
//   - auto: true to derive the matrix
//
// Returns:
//   - GameObjectBuilderOption: functional option to set matrix auto-update
func WithMatrixAutoUpdate(auto bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.matrixAutoUpdate = auto
	}
}

// WithChild attaches child beneath the GameObject.
//
// Parameters:
//   - child: the object to attach
//
// Returns:
//   - GameObjectBuilderOption: functional option to attach a child
func WithChild(child GameObject) GameObjectBuilderOption {
	return func(obj *gameObject) {
		if child == nil {
			return
		}
		obj.children = append(obj.children, child)
		child.setParent(obj)
	}
}
