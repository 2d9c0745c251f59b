// Package tracer runs the per-frame instant radiosity pipeline on a compute
// device: candidate VPL generation, power-weighted resampling and shading.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/device"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/shading"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/vpl"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

var (
	ErrNoSceneData   = errors.New("tracer: no scene data uploaded")
	ErrNoFrameBuffer = errors.New("tracer: frame buffers not allocated")
	ErrInterrupted   = errors.New("tracer: frame interrupted")
	ErrFrameSize     = errors.New("tracer: unsupported frame size")
)

// The largest frame, in pixels, that Setup accepts (8192x8192).
const MaxFramePixels = 1 << 26

// Device buffer names.
const (
	bufBvhNodes      = "bvhNodes"
	bufMeshes        = "meshes"
	bufVertices      = "vertices"
	bufIndices       = "indices"
	bufEmitters      = "emitters"
	bufCandidateVPLs = "candidateVPLs"
	bufResampledVPLs = "resampledVPLs"
	bufAccumulator   = "accumulator"
	bufFrameBuffer   = "frameBuffer"
)

// A unit of work processed by the tracer.
type FrameRequest struct {
	// The uniform block for this frame.
	Uniform *scene.UniformBlock

	// Shading options.
	Shading shading.Config

	// Number of frames already accumulated. A value of 0 resets the
	// accumulator before shading.
	FrameCount uint32

	// Tone-mapping parameters.
	Exposure float32
	Gamma    float32

	// Workgroup size for 1D dispatches and the side of 2D workgroups.
	// 0 selects the device defaults.
	LocalWorkSize int
}

// Timing for a single pipeline phase.
type PhaseStats struct {
	Name string
	Time time.Duration
}

// Frame statistics.
type FrameStats struct {
	Phases []PhaseStats

	// Number of valid entries in the candidate pool.
	ValidCandidates int

	// Statistics of the resampling phase.
	Resample vpl.ResampleStats

	// Total time for the frame.
	FrameTime time.Duration
}

// The Tracer owns the device buffers of a scene and runs the pipeline
// stages for each frame request.
type Tracer struct {
	sync.Mutex

	logger log.Logger

	id       string
	device   *device.Device
	pipeline *Pipeline

	// A view of the scene whose slices alias the device buffers.
	sceneData *scene.Scene

	generator *vpl.Generator
	resampler *vpl.Resampler

	frameW uint32
	frameH uint32

	// Stats collected while processing the last frame.
	stats FrameStats
}

// Create a tracer that executes pipeline on dev. If pipeline is nil then
// DefaultPipeline() is used.
func NewTracer(id string, dev *device.Device, pipeline *Pipeline) *Tracer {
	if pipeline == nil {
		pipeline = DefaultPipeline()
	}
	return &Tracer{
		logger:   log.New(fmt.Sprintf("tracer (%s)", id)),
		id:       id,
		device:   dev,
		pipeline: pipeline,
	}
}

// Get tracer id.
func (tr *Tracer) Id() string {
	return tr.id
}

// Get the device associated with the tracer.
func (tr *Tracer) Device() *device.Device {
	return tr.device
}

// Upload the scene geometry into read-only device buffers and allocate the
// candidate and resampled VPL pools.
func (tr *Tracer) UploadScene(sc *scene.Scene, candidates, resampled uint32) error {
	tr.Lock()
	defer tr.Unlock()

	if sc == nil || len(sc.BvhNodeList) == 0 {
		return ErrNoSceneData
	}
	if err := bvh.Validate(sc.BvhNodeList, len(sc.MeshList)); err != nil {
		return fmt.Errorf("tracer (%s): %w", tr.id, err)
	}

	start := time.Now()
	uploads := []struct {
		name string
		data interface{}
	}{
		{bufBvhNodes, sc.BvhNodeList},
		{bufMeshes, sc.MeshList},
		{bufVertices, sc.VertexList},
		{bufIndices, sc.IndexList},
		{bufEmitters, sc.Emitters},
	}
	for _, upload := range uploads {
		if err := tr.device.Buffer(upload.name).AllocateAndWriteData(upload.data, device.MemReadOnly); err != nil {
			return fmt.Errorf("tracer (%s): could not upload %s: %w", tr.id, upload.name, err)
		}
	}

	if err := tr.device.Buffer(bufCandidateVPLs).AllocateToFitData(make([]scene.VPL, candidates), device.MemReadWrite); err != nil {
		return err
	}
	if err := tr.device.Buffer(bufResampledVPLs).AllocateToFitData(make([]scene.VPL, resampled), device.MemReadWrite); err != nil {
		return err
	}

	tr.sceneData = &scene.Scene{
		BvhNodeList: tr.device.Buffer(bufBvhNodes).Data().([]scene.BvhNode),
		MeshList:    tr.device.Buffer(bufMeshes).Data().([]scene.MeshRecord),
		VertexList:  tr.device.Buffer(bufVertices).Data().([]scene.ComputeVertex),
		IndexList:   tr.device.Buffer(bufIndices).Data().([]uint32),
		Emitters:    tr.device.Buffer(bufEmitters).Data().([]scene.Emitter),
		Camera:      sc.Camera,
	}
	tr.generator = vpl.NewGenerator(tr.sceneData, tr.sceneData.BvhNodeList, candidates)
	tr.resampler = vpl.NewResampler(resampled)

	if tr.generator.TotalPower() <= 0 {
		tr.logger.Warning("scene emitters carry no power; indirect lighting will be black")
	}
	tr.logger.Debugf("uploaded scene data in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Allocate the frame buffers for a frameW x frameH frame. Frames larger than
// MaxFramePixels are rejected.
func (tr *Tracer) Setup(frameW, frameH uint32) error {
	tr.Lock()
	defer tr.Unlock()

	total := uint64(frameW) * uint64(frameH)
	if total == 0 || total > MaxFramePixels {
		return fmt.Errorf("%w: %dx%d (limit %d pixels)", ErrFrameSize, frameW, frameH, uint64(MaxFramePixels))
	}
	pixels := int(total)
	if err := tr.device.Buffer(bufAccumulator).AllocateToFitData(make([]types.Vec3, pixels), device.MemReadWrite); err != nil {
		return err
	}
	if err := tr.device.Buffer(bufFrameBuffer).AllocateToFitData(make([]uint8, pixels*4), device.MemReadWrite); err != nil {
		return err
	}
	tr.frameW = frameW
	tr.frameH = frameH
	return nil
}

// Get the frame dimensions.
func (tr *Tracer) FrameDims() (uint32, uint32) {
	return tr.frameW, tr.frameH
}

// Process a frame request. The context is checked between pipeline phases;
// if it is cancelled Trace returns ErrInterrupted and the buffers hold the
// output of the last completed phase.
func (tr *Tracer) Trace(ctx context.Context, req *FrameRequest) (*FrameStats, error) {
	tr.Lock()
	defer tr.Unlock()

	if tr.sceneData == nil {
		return nil, ErrNoSceneData
	}
	if tr.frameW == 0 || tr.frameH == 0 {
		return nil, ErrNoFrameBuffer
	}

	tr.stats = FrameStats{}
	start := time.Now()
	for _, stage := range tr.pipeline.stages(req) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tracer (%s): %w: %v", tr.id, ErrInterrupted, ctx.Err())
		default:
		}

		elapsed, err := stage.fn(tr, req)
		if err != nil {
			return nil, fmt.Errorf("tracer (%s): %s: %w", tr.id, stage.name, err)
		}
		tr.stats.Phases = append(tr.stats.Phases, PhaseStats{Name: stage.name, Time: elapsed})
	}
	tr.stats.FrameTime = time.Since(start)

	stats := tr.stats
	return &stats, nil
}

// Get the candidate VPL pool of the last frame.
func (tr *Tracer) CandidateVPLs() []scene.VPL {
	return tr.readVPLs(bufCandidateVPLs)
}

// Get the resampled VPLs of the last frame.
func (tr *Tracer) ResampledVPLs() []scene.VPL {
	return tr.readVPLs(bufResampledVPLs)
}

// Copy the accumulated radiance into dst.
func (tr *Tracer) ReadAccumulator(dst []types.Vec3) error {
	return tr.device.Buffer(bufAccumulator).ReadData(0, 0, 0, dst)
}

// Copy the tone-mapped RGBA frame into dst.
func (tr *Tracer) ReadFrame(dst []uint8) error {
	return tr.device.Buffer(bufFrameBuffer).ReadData(0, 0, 0, dst)
}

// Get the uploaded BVH nodes as packed little-endian records in the
// layout documented on scene.BvhNode.
func (tr *Tracer) NodeBlock() ([]byte, error) {
	tr.Lock()
	defer tr.Unlock()

	if tr.sceneData == nil {
		return nil, ErrNoSceneData
	}
	return tr.device.Buffer(bufBvhNodes).Bytes()
}

// Release device buffers.
func (tr *Tracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	tr.device.Close()
	tr.sceneData = nil
	tr.generator = nil
	tr.resampler = nil
	tr.frameW, tr.frameH = 0, 0
}

func (tr *Tracer) readVPLs(name string) []scene.VPL {
	buf := tr.device.Buffer(name)
	out := make([]scene.VPL, buf.Len())
	if err := buf.ReadData(0, 0, 0, out); err != nil {
		tr.logger.Warningf("could not read %s: %v", name, err)
		return nil
	}
	return out
}
