// Package capture feeds camera or video-file frames into the frame pipeline through
// OpenCV.
package capture

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-ar/engine/frame"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Camera is a frame.Source backed by an OpenCV capture.
type Camera interface {
	frame.Source

	// Close stops the reader and releases the device. Safe to call more than once.
	//
	// Returns:
	//   - error: error from releasing the capture
	Close() error

	// Err returns the error that stopped the reader, if any.
	//
	// Returns:
	//   - error: nil while running or after a clean Close
	Err() error
}

type camera struct {
	mu *sync.RWMutex

	device        string
	width, height int
	requestW      int
	requestH      int
	loop          bool
	frameInterval time.Duration

	capture *gocv.VideoCapture
	current *image.RGBA
	err     error

	ready     chan struct{}
	readyOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	log zerolog.Logger
}

var _ Camera = &camera{}

// Open starts capturing from device. A numeric device opens that camera index;
// anything else is opened as a video file.
//
// Parameters:
//   - device: camera index or file path
//   - options: functional options to configure the capture
//
// Returns:
//   - Camera: the running capture
//   - error: error if the device cannot be opened
func Open(device string, options ...CameraBuilderOption) (Camera, error) {
	c := &camera{
		mu:     &sync.RWMutex{},
		device: device,
		ready:  make(chan struct{}),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    logging.For("capture"),
	}
	for _, option := range options {
		option(c)
	}

	id, isIndex, err := parseDevice(device)
	if err != nil {
		return nil, err
	}
	if isIndex {
		c.capture, err = gocv.VideoCaptureDevice(id)
	} else {
		c.capture, err = gocv.VideoCaptureFile(device)
	}
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", device, err)
	}
	if c.requestW > 0 && c.requestH > 0 {
		c.capture.Set(gocv.VideoCaptureFrameWidth, float64(c.requestW))
		c.capture.Set(gocv.VideoCaptureFrameHeight, float64(c.requestH))
	}
	if !isIndex && c.frameInterval == 0 {
		if fps := c.capture.Get(gocv.VideoCaptureFPS); fps > 0 {
			c.frameInterval = time.Duration(float64(time.Second) / fps)
		}
	}

	go c.run(!isIndex)
	c.log.Info().Str("device", device).Msg("capture opened")
	return c, nil
}

// parseDevice reports whether device names a camera index.
func parseDevice(device string) (int, bool, error) {
	if device == "" {
		return 0, false, errors.New("empty capture device")
	}
	if id, err := strconv.Atoi(device); err == nil {
		if id < 0 {
			return 0, false, fmt.Errorf("invalid camera index %d", id)
		}
		return id, true, nil
	}
	if _, err := os.Stat(device); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

func (c *camera) run(isFile bool) {
	defer close(c.done)
	mat := gocv.NewMat()
	defer mat.Close()
	rgba := gocv.NewMat()
	defer rgba.Close()

	var pace *time.Ticker
	if isFile && c.frameInterval > 0 {
		pace = time.NewTicker(c.frameInterval)
		defer pace.Stop()
	}

	for {
		select {
		case <-c.quit:
			return
		default:
		}
		if pace != nil {
			select {
			case <-c.quit:
				return
			case <-pace.C:
			}
		}

		if ok := c.capture.Read(&mat); !ok || mat.Empty() {
			if isFile && c.loop {
				c.capture.Set(gocv.VideoCapturePosFrames, 0)
				continue
			}
			c.fail(errors.New("capture ended"))
			return
		}

		gocv.CvtColor(mat, &rgba, gocv.ColorBGRToRGBA)
		img := image.NewRGBA(image.Rect(0, 0, rgba.Cols(), rgba.Rows()))
		copy(img.Pix, rgba.ToBytes())

		c.mu.Lock()
		c.current = img
		c.width, c.height = img.Rect.Dx(), img.Rect.Dy()
		c.mu.Unlock()
		c.readyOnce.Do(func() {
			c.log.Info().Int("width", img.Rect.Dx()).Int("height", img.Rect.Dy()).Msg("capture ready")
			close(c.ready)
		})
	}
}

func (c *camera) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.log.Warn().Err(err).Str("device", c.device).Msg("capture stopped")
}

func (c *camera) NativeSize() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

func (c *camera) Ready() <-chan struct{} {
	return c.ready
}

// CurrentFrame returns the latest decoded frame. Frames are never mutated after
// publication, so callers may read them without copying.
func (c *camera) CurrentFrame() (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

func (c *camera) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *camera) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done
		c.closeErr = c.capture.Close()
		c.log.Info().Str("device", c.device).Msg("capture closed")
	})
	return c.closeErr
}
