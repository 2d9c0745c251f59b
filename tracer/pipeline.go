package tracer

import (
	"math"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/shading"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// An alias for functions that can be used as part of the rendering pipeline.
type PipelineStage func(tr *Tracer, req *FrameRequest) (time.Duration, error)

// The list of pluggable stages that are used to render a frame. Stages run
// strictly in sequence and each one returns only after its dispatch has
// completed on all device lanes.
type Pipeline struct {
	// Reset the accumulator. This stage runs when the request frame count
	// is 0.
	Reset PipelineStage

	// Fill the candidate VPL pool.
	Generate PipelineStage

	// Reduce the candidate pool to the resampled VPL set.
	Resample PipelineStage

	// Shade every pixel and add its radiance to the accumulator.
	Shade PipelineStage

	// A set of post-processing stages that are executed prior to
	// rendering the final frame.
	PostProcess []PipelineStage
}

type namedStage struct {
	name string
	fn   PipelineStage
}

func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Reset:    ClearAccumulator(),
		Generate: GenerateVPLs(),
		Resample: ResampleVPLs(),
		Shade:    GatherVPLs(),
		PostProcess: []PipelineStage{
			TonemapSimpleReinhard(),
		},
	}
}

// Get the non-nil stages that apply to a request in execution order.
func (p *Pipeline) stages(req *FrameRequest) []namedStage {
	out := make([]namedStage, 0, 4+len(p.PostProcess))
	if req.FrameCount == 0 && p.Reset != nil {
		out = append(out, namedStage{"reset", p.Reset})
	}
	for _, stage := range []namedStage{
		{"generate", p.Generate},
		{"resample", p.Resample},
		{"shade", p.Shade},
	} {
		if stage.fn != nil {
			out = append(out, stage)
		}
	}
	for _, stage := range p.PostProcess {
		if stage != nil {
			out = append(out, namedStage{"post-process", stage})
		}
	}
	return out
}

// Clear the accumulator buffer.
func ClearAccumulator() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		accum := tr.device.Buffer(bufAccumulator).Data().([]types.Vec3)
		kernel := tr.device.Kernel("clearAccumulator", func(x, _ int) {
			accum[x] = types.Vec3{}
		})
		return kernel.Exec1D(0, len(accum), req.LocalWorkSize)
	}
}

// Trace one light path segment per candidate slot.
func GenerateVPLs() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		candidates := tr.device.Buffer(bufCandidateVPLs).Data().([]scene.VPL)
		kernel := tr.device.Kernel("generateVPLs", func(x, _ int) {
			candidates[x] = tr.generator.GenerateSlot(uint32(x), req.Uniform)
		})
		elapsed, err := kernel.Exec1D(0, len(candidates), req.LocalWorkSize)
		if err != nil {
			return elapsed, err
		}

		tr.stats.ValidCandidates = 0
		for index := range candidates {
			if candidates[index].Valid() {
				tr.stats.ValidCandidates++
			}
		}
		return elapsed, nil
	}
}

// Select the resampled VPL set from the candidate pool. The weight CDF is
// built serially; output slots are then filled in parallel.
func ResampleVPLs() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		start := time.Now()
		candidates := tr.device.Buffer(bufCandidateVPLs).Data().([]scene.VPL)
		resampled := tr.device.Buffer(bufResampledVPLs).Data().([]scene.VPL)

		tr.stats.Resample = tr.resampler.Prepare(candidates, req.Uniform)
		if tr.stats.Resample.TotalWeight <= 0 {
			tr.logger.Debug("candidate pool carries no power")
		}

		kernel := tr.device.Kernel("resampleVPLs", func(x, _ int) {
			resampled[x] = tr.resampler.Slot(uint32(x))
		})
		if _, err := kernel.Exec1D(0, len(resampled), req.LocalWorkSize); err != nil {
			return time.Since(start), err
		}

		sources := make(map[int]struct{})
		for j := range resampled {
			if src := tr.resampler.Source(uint32(j)); src >= 0 {
				sources[src] = struct{}{}
			}
		}
		tr.stats.Resample.DistinctSources = len(sources)
		return time.Since(start), nil
	}
}

// Shade every pixel using the resampled VPLs and add the result to the
// accumulator.
func GatherVPLs() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		vpls := tr.device.Buffer(bufResampledVPLs).Data().([]scene.VPL)
		accum := tr.device.Buffer(bufAccumulator).Data().([]types.Vec3)

		shader := shading.NewShader(tr.sceneData, tr.sceneData.BvhNodeList, vpls, req.Uniform, tr.frameW, tr.frameH, req.Shading)
		w := int(tr.frameW)
		kernel := tr.device.Kernel("shade", func(x, y int) {
			offset := y*w + x
			accum[offset] = accum[offset].Add(shader.ShadePixel(uint32(x), uint32(y)))
		})
		return kernel.Exec2D(0, 0, w, int(tr.frameH), req.LocalWorkSize, req.LocalWorkSize)
	}
}

// Apply simple Reinhard tone-mapping and gamma correction to the averaged
// accumulator and write the result into the RGBA frame buffer.
func TonemapSimpleReinhard() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		accum := tr.device.Buffer(bufAccumulator).Data().([]types.Vec3)
		frame := tr.device.Buffer(bufFrameBuffer).Data().([]uint8)

		scale := req.Exposure / float32(req.FrameCount+1)
		invGamma := 1.0
		if req.Gamma > 0 {
			invGamma = 1.0 / float64(req.Gamma)
		}
		kernel := tr.device.Kernel("tonemapSimpleReinhard", func(x, _ int) {
			c := accum[x].Mul(scale)
			out := frame[x*4 : x*4+4]
			for i := 0; i < 3; i++ {
				out[i] = toByte(Reinhard(c[i], invGamma))
			}
			out[3] = 255
		})
		return kernel.Exec1D(0, len(accum), req.LocalWorkSize)
	}
}

// Map an HDR value to [0, 1] with the simple Reinhard operator followed by
// gamma correction.
func Reinhard(v float32, invGamma float64) float32 {
	if !(v > 0) {
		return 0
	}
	return float32(math.Pow(float64(v/(1+v)), invGamma))
}

func toByte(v float32) uint8 {
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
