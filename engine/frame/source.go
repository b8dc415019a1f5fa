package frame

import (
	"image"

	"github.com/Carmen-Shannon/oxy-ar/common"
)

// Source is a live video source, typically a camera.
type Source interface {
	// NativeSize returns the intrinsic frame dimensions. Zero until ready.
	NativeSize() (width, height int)
	// Ready is closed once frames with known dimensions are available.
	Ready() <-chan struct{}
	// CurrentFrame returns the latest frame, or false if none is available.
	CurrentFrame() (image.Image, bool)
}

// IsReady reports whether src is non-nil and its Ready channel is closed.
func IsReady(src Source) bool {
	if src == nil {
		return false
	}
	select {
	case <-src.Ready():
		return true
	default:
		return false
	}
}

type imageSource struct {
	img   image.Image
	ready chan struct{}
}

// NewImageSource returns an already-ready Source that always yields img. Used for
// stills, replays and tests.
//
// Parameters:
//   - img: the frame to serve
//
// Returns:
//   - Source: the static source
func NewImageSource(img image.Image) Source {
	ready := make(chan struct{})
	close(ready)
	return &imageSource{img: img, ready: ready}
}

// NewFileSource loads a PNG or JPEG file into a static Source.
//
// Parameters:
//   - path: the image file
//
// Returns:
//   - Source: the static source
//   - error: error if the file cannot be decoded
func NewFileSource(path string) (Source, error) {
	img, err := common.LoadRGBA(path)
	if err != nil {
		return nil, err
	}
	return NewImageSource(img), nil
}

func (s *imageSource) NativeSize() (int, int) {
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *imageSource) Ready() <-chan struct{} {
	return s.ready
}

func (s *imageSource) CurrentFrame() (image.Image, bool) {
	return s.img, s.img != nil
}
