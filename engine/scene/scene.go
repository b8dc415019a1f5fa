package scene

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/camera"
	"github.com/Carmen-Shannon/oxy-ar/engine/game_object"
)

// Scene is the rendering collaborator of the tracking pipeline: a camera whose
// projection is supplied by the tracking engine and an anchor node whose matrix and
// visibility follow the tracked marker. Content added to the scene is attached beneath
// the anchor and kept in a registry for lookup by ID.
// Scenes can be hot-swapped via the Active flag.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Anchor returns the node driven by marker poses.
	Anchor() game_object.GameObject

	// Count returns the number of objects in the scene's registry.
	//
	// Returns:
	//   - int: count of registered objects
	Count() int

	// Add attaches obj beneath the anchor and registers it by ID.
	//
	// Parameters:
	//   - obj: the object to add
	Add(obj game_object.GameObject)

	// Remove detaches the object with the given ID from the anchor and the registry.
	//
	// Parameters:
	//   - id: the object ID
	//
	// Returns:
	//   - bool: true if an object was removed
	Remove(id uint64) bool

	// Get returns the registered object with the given ID.
	//
	// Parameters:
	//   - id: the object ID
	//
	// Returns:
	//   - game_object.GameObject: the object, or nil if not registered
	Get(id uint64) game_object.GameObject

	// Drawables returns every registered object that is visible through its ancestors
	// together with its world matrix, in ID order. Empty while the anchor is hidden.
	//
	// Returns:
	//   - []Drawable: the objects to draw this frame
	Drawables() []Drawable
}

// Drawable is a registered object resolved for one frame.
type Drawable struct {
	Object game_object.GameObject
	World  common.Mat4
}

type scene struct {
	mu *sync.RWMutex

	name     string
	active   bool
	cam      camera.Camera
	anchor   game_object.GameObject
	registry map[uint64]game_object.GameObject
}

var _ Scene = &scene{}

// NewScene creates a new Scene with a default camera and an anchor that starts hidden
// with matrix auto-update disabled.
//
// Parameters:
//   - name: the scene identifier
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:       &sync.RWMutex{},
		name:     name,
		active:   true,
		registry: make(map[uint64]game_object.GameObject),
	}
	for _, option := range options {
		option(s)
	}
	if s.cam == nil {
		s.cam = camera.NewCamera()
	}
	if s.anchor == nil {
		s.anchor = game_object.NewGameObject(
			game_object.WithName("anchor"),
			game_object.WithVisible(false),
			game_object.WithMatrixAutoUpdate(false),
		)
	}
	for _, obj := range s.registry {
		s.anchor.AddChild(obj)
	}
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Anchor() game_object.GameObject {
	return s.anchor
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) Add(obj game_object.GameObject) {
	if obj == nil {
		return
	}
	s.mu.Lock()
	s.registry[obj.ID()] = obj
	s.mu.Unlock()
	s.anchor.AddChild(obj)
}

func (s *scene) Remove(id uint64) bool {
	s.mu.Lock()
	obj, ok := s.registry[id]
	delete(s.registry, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	if p := obj.Parent(); p != nil {
		p.RemoveChild(obj)
	}
	return true
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry[id]
}

func (s *scene) Drawables() []Drawable {
	s.mu.RLock()
	objs := make([]game_object.GameObject, 0, len(s.registry))
	for _, obj := range s.registry {
		objs = append(objs, obj)
	}
	s.mu.RUnlock()

	slices.SortFunc(objs, func(a, b game_object.GameObject) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	out := make([]Drawable, 0, len(objs))
	for _, obj := range objs {
		if !obj.WorldVisible() {
			continue
		}
		out = append(out, Drawable{Object: obj, World: obj.WorldMatrix()})
	}
	return out
}
