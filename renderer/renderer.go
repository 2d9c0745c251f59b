package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/device"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/shading"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

type Renderer interface {
	// Render frame.
	Render(ctx context.Context) (*image.RGBA, error)

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}

// A renderer that accumulates Options.Frames instant radiosity frames on a
// CPU device.
type defaultRenderer struct {
	logger log.Logger

	scene  *scene.Scene
	opts   Options
	tracer *tracer.Tracer
	rng    *rand.Rand

	// Internal render dims; the frame dims times the supersample factor.
	renderW uint32
	renderH uint32

	stats FrameStats
}

// Create a renderer for sc. The camera projection is set up for the frame
// aspect ratio.
func NewDefault(sc *scene.Scene, opts Options) (Renderer, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return nil, ErrCameraNotDefined
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := &defaultRenderer{
		logger:  log.New("renderer"),
		scene:   sc,
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		renderW: opts.FrameW * opts.Supersample,
		renderH: opts.FrameH * opts.Supersample,
	}
	sc.Camera.SetupProjection(float32(opts.FrameW) / float32(opts.FrameH))

	start := time.Now()
	r.tracer = tracer.NewTracer("cpu", device.NewDevice("cpu", opts.Lanes), nil)
	if err := r.tracer.UploadScene(sc, opts.CandidateVPLs, opts.ResampledVPLs); err != nil {
		r.Close()
		if errors.Is(err, tracer.ErrNoSceneData) {
			return nil, fmt.Errorf("%w: %v", ErrSceneNotDefined, err)
		}
		return nil, err
	}
	if err := r.tracer.Setup(r.renderW, r.renderH); err != nil {
		r.Close()
		return nil, err
	}
	r.logger.Infof("setup tracer on %d lanes in %d ms", r.tracer.Device().Lanes(), time.Since(start).Nanoseconds()/1e6)

	return r, nil
}

// Render the frame. Cancelling ctx aborts rendering at the next pipeline
// phase boundary with ErrInterrupted.
func (r *defaultRenderer) Render(ctx context.Context) (*image.RGBA, error) {
	r.stats = FrameStats{}
	start := time.Now()

	req := &tracer.FrameRequest{
		Shading: shading.Config{
			ClampDistance:  r.opts.ClampDistance,
			DirectLighting: r.opts.DirectLighting,
		},
		Exposure:      r.opts.Exposure,
		Gamma:         r.opts.Gamma,
		LocalWorkSize: r.opts.LocalWorkSize,
	}

	for frame := uint32(0); frame < r.opts.Frames; frame++ {
		req.FrameCount = frame
		req.Uniform = NewUniformBlock(r.scene.Camera, r.rng, int(r.opts.RandomSamples))

		trStats, err := r.tracer.Trace(ctx, req)
		if err != nil {
			if errors.Is(err, tracer.ErrInterrupted) {
				return nil, fmt.Errorf("%w after %d of %d frames", ErrInterrupted, frame, r.opts.Frames)
			}
			return nil, err
		}

		for _, phase := range trStats.Phases {
			r.stats.addPhase(phase.Name, phase.Time)
		}
		r.stats.Frames++
		r.stats.ValidCandidates = trStats.ValidCandidates
		r.stats.DistinctSources = trStats.Resample.DistinctSources
		r.stats.PoolPower = trStats.Resample.TotalWeight
		r.logger.Debugf("frame %d: %d valid candidates, %d distinct sources in %s", frame, trStats.ValidCandidates, trStats.Resample.DistinctSources, trStats.FrameTime)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(r.renderW), int(r.renderH)))
	if err := r.tracer.ReadFrame(img.Pix); err != nil {
		return nil, err
	}
	if r.opts.Supersample > 1 {
		img = Downscale(img, int(r.opts.FrameW), int(r.opts.FrameH))
	}

	r.stats.RenderTime = time.Since(start)
	return img, nil
}

// Shutdown the renderer and its tracer.
func (r *defaultRenderer) Close() {
	if r.tracer != nil {
		r.tracer.Close()
		r.tracer = nil
	}
}

// Get render statistics.
func (r *defaultRenderer) Stats() FrameStats {
	return r.stats
}

// Build the uniform block for a frame: camera transforms and position, the
// per-frame random scalar and a table of n random 2D coordinates.
func NewUniformBlock(camera *scene.Camera, rng *rand.Rand, n int) *scene.UniformBlock {
	if n < 0 {
		n = 0
	}
	block := &scene.UniformBlock{
		Model:        types.Ident4(),
		View:         camera.ViewMat,
		Proj:         camera.ProjMat,
		CameraPos:    camera.Position.Vec4(1),
		RandomNumber: types.Vec4{rng.Float32(), 0, 0, 0},
		RandomXY:     make([]types.Vec4, n),
	}
	for i := range block.RandomXY {
		block.RandomXY[i] = types.Vec4{rng.Float32(), rng.Float32(), 0, 0}
	}
	return block
}
