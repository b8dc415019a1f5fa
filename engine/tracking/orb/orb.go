// Package orb is the reference tracking engine. Markers are described by ORB features
// of their reference images; each polled frame is matched against every marker in
// parallel and a pose is recovered from the RANSAC homography.
package orb

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking/estimate"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking/markers"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

var (
	ErrNoMarkers         = errors.New("no markers registered")
	ErrAlreadyProcessing = errors.New("continuous processing is running")
)

type target struct {
	mu     *sync.Mutex
	closed bool

	name        string
	width       int
	height      int
	points      []estimate.Point
	descriptors gocv.Mat
	matcher     gocv.BFMatcher

	// owned by the poll goroutine
	presence estimate.Presence
	filter   *estimate.OneEuroFilter
}

type engine struct {
	mu    *sync.Mutex
	detMu *sync.Mutex

	opts       tracking.Options
	width      int
	height     int
	k          estimate.Mat3
	projection [16]float32

	pollInterval time.Duration
	ratio        float64
	minMatches   int
	ransac       estimate.RansacOptions
	workers      int

	detector gocv.ORB
	targets  []*target
	pool     worker.DynamicWorkerPool

	stop     chan struct{}
	done     chan struct{}
	disposed atomic.Bool

	now func() time.Time
	log zerolog.Logger
}

var _ tracking.Engine = &engine{}

// NewEngine builds an ORB engine for frames of opts.InputWidth x opts.InputHeight.
//
// Parameters:
//   - opts: engine options from the lifecycle
//   - options: functional options tuning detection and matching
//
// Returns:
//   - tracking.Engine: the engine, with no markers registered
//   - error: if the input size is invalid
func NewEngine(opts tracking.Options, options ...EngineBuilderOption) (tracking.Engine, error) {
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", opts.InputWidth, opts.InputHeight)
	}
	e := &engine{
		mu:           &sync.Mutex{},
		detMu:        &sync.Mutex{},
		opts:         opts,
		width:        opts.InputWidth,
		height:       opts.InputHeight,
		pollInterval: 33 * time.Millisecond,
		ratio:        0.75,
		minMatches:   10,
		ransac:       estimate.DefaultRansacOptions(),
		workers:      4,
		now:          time.Now,
		log:          logging.For("orb"),
	}
	for _, option := range options {
		option(e)
	}
	if e.opts.MaxSimultaneousTargets < 1 {
		e.opts.MaxSimultaneousTargets = 1
	}

	e.k = estimate.Intrinsics(e.width, e.height)
	e.projection = estimate.GLProjection(e.k, e.width, e.height, estimate.DefaultNear, estimate.DefaultFar)
	e.detector = gocv.NewORB()
	e.pool = worker.NewDynamicWorkerPool(e.workers, 64, 1*time.Second)

	e.log.Debug().Int("width", e.width).Int("height", e.height).Msg("engine created")
	return e, nil
}

// NewFactory adapts NewEngine to the lifecycle's factory signature.
func NewFactory(options ...EngineBuilderOption) tracking.Factory {
	return func(opts tracking.Options) (tracking.Engine, error) {
		return NewEngine(opts, options...)
	}
}

func (e *engine) InputSize() (width, height int) {
	return e.width, e.height
}

func (e *engine) ProjectionMatrix() [16]float32 {
	return e.projection
}

func (e *engine) RegisterMarkerBundle(ctx context.Context, locator string) (tracking.MarkerGeometry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed.Load() {
		return nil, common.ErrDisposed
	}
	if e.stop != nil {
		return nil, ErrAlreadyProcessing
	}

	bundle, err := markers.Load(locator)
	if err != nil {
		return nil, err
	}

	targets := make([]*target, 0, len(bundle.Markers))
	fail := func(err error) (tracking.MarkerGeometry, error) {
		for _, t := range targets {
			t.close()
		}
		return nil, err
	}
	for _, m := range bundle.Markers {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		t, err := e.loadTarget(m)
		if err != nil {
			return fail(err)
		}
		targets = append(targets, t)
	}

	for _, t := range e.targets {
		t.close()
	}
	e.targets = targets

	geometry := make(tracking.MarkerGeometry, len(targets))
	for i, t := range targets {
		geometry[i] = tracking.MarkerDimensions{Width: float32(t.width), Height: float32(t.height)}
		e.log.Info().Str("marker", t.name).Int("index", i).Int("features", len(t.points)).Msg("marker registered")
	}
	return geometry, nil
}

func (e *engine) loadTarget(m markers.Entry) (*target, error) {
	img := gocv.IMRead(m.Image, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("marker %q: cannot read %s", m.Name, m.Image)
	}

	e.detMu.Lock()
	mask := gocv.NewMat()
	kps, desc := e.detector.DetectAndCompute(img, mask)
	mask.Close()
	e.detMu.Unlock()

	if len(kps) < e.minMatches {
		desc.Close()
		return nil, fmt.Errorf("marker %q: %d features, need %d", m.Name, len(kps), e.minMatches)
	}
	points := make([]estimate.Point, len(kps))
	for i, kp := range kps {
		points[i] = estimate.Point{X: kp.X, Y: kp.Y}
	}
	return &target{
		mu:          &sync.Mutex{},
		name:        m.Name,
		width:       img.Cols(),
		height:      img.Rows(),
		points:      points,
		descriptors: desc,
		matcher:     gocv.NewBFMatcherWithParams(gocv.NormHamming, false),
		filter:      estimate.NewOneEuroFilter(e.opts.FilterMinCutoff, e.opts.FilterBeta),
	}, nil
}

func (e *engine) Warmup(frame image.Image) error {
	_, err := e.DetectOnce(context.Background(), frame)
	return err
}

func (e *engine) DetectOnce(ctx context.Context, frame image.Image) ([]tracking.FeaturePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	gray, err := toGray(frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()
	return e.detect(gray)
}

func (e *engine) detect(gray gocv.Mat) ([]tracking.FeaturePoint, error) {
	e.detMu.Lock()
	defer e.detMu.Unlock()
	if e.disposed.Load() {
		return nil, common.ErrDisposed
	}

	mask := gocv.NewMat()
	defer mask.Close()
	kps, desc := e.detector.DetectAndCompute(gray, mask)
	defer desc.Close()

	raw := desc.ToBytes()
	cols := desc.Cols()
	points := make([]tracking.FeaturePoint, 0, len(kps))
	for i, kp := range kps {
		p := tracking.FeaturePoint{X: kp.X, Y: kp.Y, Size: kp.Size, Angle: kp.Angle, Response: kp.Response}
		if (i+1)*cols <= len(raw) {
			p.Descriptor = append([]byte(nil), raw[i*cols:(i+1)*cols]...)
		}
		points = append(points, p)
	}
	return points, nil
}

func (e *engine) MatchOnce(ctx context.Context, points []tracking.FeaturePoint, markerIndex int) (tracking.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return tracking.MatchResult{}, err
	}
	e.mu.Lock()
	if e.disposed.Load() {
		e.mu.Unlock()
		return tracking.MatchResult{}, common.ErrDisposed
	}
	if markerIndex < 0 || markerIndex >= len(e.targets) {
		n := len(e.targets)
		e.mu.Unlock()
		return tracking.MatchResult{}, fmt.Errorf("marker index %d out of range [0,%d)", markerIndex, n)
	}
	t := e.targets[markerIndex]
	e.mu.Unlock()
	return e.match(markerIndex, t, points), nil
}

func (e *engine) match(idx int, t *target, points []tracking.FeaturePoint) tracking.MatchResult {
	res := tracking.MatchResult{MarkerIndex: idx}
	query, ok := descriptorMat(points)
	if !ok {
		return res
	}
	defer query.Close()

	t.mu.Lock()
	if t.closed || t.descriptors.Empty() {
		t.mu.Unlock()
		return res
	}
	pairs := t.matcher.KnnMatch(query, t.descriptors, 2)
	t.mu.Unlock()

	var src, dst []estimate.Point
	for _, pair := range pairs {
		if len(pair) < 2 || pair[0].Distance >= e.ratio*pair[1].Distance {
			continue
		}
		m := pair[0]
		if m.TrainIdx < 0 || m.TrainIdx >= len(t.points) || m.QueryIdx < 0 || m.QueryIdx >= len(points) {
			continue
		}
		src = append(src, t.points[m.TrainIdx])
		dst = append(dst, estimate.Point{X: points[m.QueryIdx].X, Y: points[m.QueryIdx].Y})
	}
	res.Matches = len(src)
	if res.Matches < e.minMatches {
		return res
	}

	h, inliers, err := estimate.RansacHomography(src, dst, e.ransac)
	if err != nil {
		return res
	}
	res.Inliers = len(inliers)
	if res.Inliers < e.minMatches {
		return res
	}
	mv, err := estimate.PoseFromHomography(h, e.k)
	if err != nil {
		return res
	}
	pose := [12]float64(mv)
	res.ModelView = &pose
	return res
}

func (e *engine) BeginContinuousProcessing(buf tracking.FrameBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed.Load() {
		return common.ErrDisposed
	}
	if buf == nil {
		return errors.New("nil frame buffer")
	}
	if len(e.targets) == 0 {
		return ErrNoMarkers
	}
	if e.stop != nil {
		return nil
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(buf, e.targets, e.stop, e.done)
	return nil
}

func (e *engine) EndContinuousProcessing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endLocked()
}

func (e *engine) endLocked() {
	if e.stop == nil {
		return
	}
	close(e.stop)
	<-e.done
	e.stop, e.done = nil, nil
	for _, t := range e.targets {
		t.presence.Reset()
		t.filter.Reset()
	}
}

func (e *engine) run(buf tracking.FrameBuffer, targets []*target, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		frame, ok := buf.Snapshot()
		if !ok {
			continue
		}
		e.processFrame(frame, targets)
	}
}

func (e *engine) processFrame(frame image.Image, targets []*target) {
	gray, err := toGray(frame)
	if err != nil {
		e.log.Debug().Err(err).Msg("frame conversion failed")
		return
	}
	points, err := e.detect(gray)
	gray.Close()
	if err != nil {
		return
	}

	results := make([]tracking.MatchResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		e.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				results[i] = e.match(i, t, points)
				return nil, nil
			},
		})
	}
	wg.Wait()

	tMs := float64(e.now().UnixNano()) / 1e6
	shown := 0
	for _, t := range targets {
		if t.presence.Shown() {
			shown++
		}
	}

	for i, t := range targets {
		res := results[i]
		if e.opts.DebugMode {
			e.log.Debug().Int("marker", i).Int("features", len(points)).Int("matches", res.Matches).Int("inliers", res.Inliers).Msg("match")
		}
		if !res.Found() {
			if t.presence.Miss() {
				shown--
				t.filter.Reset()
				e.emit(i, nil)
			}
			continue
		}
		if !t.presence.Shown() && shown >= e.opts.MaxSimultaneousTargets {
			continue
		}
		if t.presence.Hit() {
			shown++
			t.filter.Reset()
		}
		if !t.presence.Shown() {
			continue
		}
		world := estimate.WorldMatrix(estimate.ModelView(*res.ModelView), float64(t.height))
		raw := make([]float64, 16)
		for j, v := range world {
			raw[j] = float64(v)
		}
		smoothed := t.filter.Filter(tMs, raw)
		var out [16]float32
		for j, v := range smoothed {
			out[j] = float32(v)
		}
		e.emit(i, &out)
	}
}

func (e *engine) emit(idx int, world *[16]float32) {
	if e.opts.OnPoseUpdate == nil {
		return
	}
	e.opts.OnPoseUpdate(tracking.PoseEvent{MarkerIndex: idx, WorldTransform: world})
}

func (e *engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed.Load() {
		return nil
	}
	e.endLocked()
	e.disposed.Store(true)

	var errs []error
	for _, t := range e.targets {
		errs = append(errs, t.close())
	}
	e.targets = nil

	e.detMu.Lock()
	errs = append(errs, e.detector.Close())
	e.detMu.Unlock()

	e.log.Debug().Msg("engine disposed")
	return errors.Join(errs...)
}

func (t *target) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return errors.Join(t.descriptors.Close(), t.matcher.Close())
}

// toGray converts img into a single-channel Mat. The caller closes it.
func toGray(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	if b.Empty() {
		return gocv.NewMat(), errors.New("empty frame")
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer m.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}

// descriptorMat packs point descriptors into one Mat row per point.
func descriptorMat(points []tracking.FeaturePoint) (gocv.Mat, bool) {
	if len(points) < 2 || len(points[0].Descriptor) == 0 {
		return gocv.Mat{}, false
	}
	cols := len(points[0].Descriptor)
	flat := make([]byte, 0, cols*len(points))
	for _, p := range points {
		if len(p.Descriptor) != cols {
			return gocv.Mat{}, false
		}
		flat = append(flat, p.Descriptor...)
	}
	m, err := gocv.NewMatFromBytes(len(points), cols, gocv.MatTypeCV8U, flat)
	if err != nil {
		return gocv.Mat{}, false
	}
	return m, true
}
