package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/camera"
	"github.com/Carmen-Shannon/oxy-ar/engine/game_object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSceneDefaults(t *testing.T) {
	t.Parallel()
	s := NewScene("card")
	assert.Equal(t, "card", s.Name())
	assert.True(t, s.Active())
	require.NotNil(t, s.Camera())
	require.NotNil(t, s.Anchor())
	assert.False(t, s.Anchor().Visible())
	assert.False(t, s.Anchor().MatrixAutoUpdate())
	assert.Zero(t, s.Count())
	assert.Empty(t, s.Drawables())
}

func TestSceneOptions(t *testing.T) {
	t.Parallel()
	cam := camera.NewCamera()
	anchor := game_object.NewGameObject(game_object.WithName("custom"))
	obj := game_object.NewGameObject()
	s := NewScene("card",
		WithActive(false),
		WithCamera(cam),
		WithAnchor(anchor),
		WithObjects(obj, nil),
	)

	assert.False(t, s.Active())
	assert.Same(t, cam, s.Camera())
	assert.Equal(t, anchor, s.Anchor())
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, anchor, obj.Parent())
}

func TestDrawablesFollowAnchor(t *testing.T) {
	t.Parallel()
	s := NewScene("card")
	a := game_object.NewGameObject(game_object.WithPosition(1, 2, 3))
	b := game_object.NewGameObject(game_object.WithVisible(false))
	s.Add(a)
	s.Add(b)
	s.Add(nil)
	assert.Equal(t, 2, s.Count())

	assert.Empty(t, s.Drawables(), "hidden anchor hides its subtree")

	world := common.IdentityMat4()
	world[12], world[13], world[14] = 10, 20, -30
	s.Anchor().SetMatrix(world)
	s.Anchor().SetVisible(true)

	drawables := s.Drawables()
	require.Len(t, drawables, 1)
	assert.Equal(t, a, drawables[0].Object)
	x, y, z := drawables[0].World.Translation()
	assert.InDelta(t, 11, x, 1e-5)
	assert.InDelta(t, 22, y, 1e-5)
	assert.InDelta(t, -27, z, 1e-5)

	s.Anchor().SetVisible(false)
	assert.Empty(t, s.Drawables())
}

func TestRemoveAndGet(t *testing.T) {
	t.Parallel()
	s := NewScene("card")
	obj := game_object.NewGameObject()
	s.Add(obj)

	assert.Equal(t, obj, s.Get(obj.ID()))
	assert.True(t, s.Remove(obj.ID()))
	assert.False(t, s.Remove(obj.ID()))
	assert.Nil(t, s.Get(obj.ID()))
	assert.Nil(t, obj.Parent())
	assert.Empty(t, s.Anchor().Children())
}

func TestSetters(t *testing.T) {
	t.Parallel()
	s := NewScene("a")
	s.SetName("b")
	s.SetActive(false)
	cam := camera.NewCamera()
	s.SetCamera(cam)

	assert.Equal(t, "b", s.Name())
	assert.False(t, s.Active())
	assert.Same(t, cam, s.Camera())
}
