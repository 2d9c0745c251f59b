package renderer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer"
)

type Options struct {
	// Frame dims.
	FrameW uint32 `json:"width"`
	FrameH uint32 `json:"height"`

	// Number of accumulated frames. Each frame draws a new VPL set.
	Frames uint32 `json:"frames"`

	// Candidate pool size, resampled VPL count and random table size.
	CandidateVPLs uint32 `json:"candidate_vpls"`
	ResampledVPLs uint32 `json:"resampled_vpls"`
	RandomSamples uint32 `json:"random_samples"`

	// Seed for the per-frame uniform block.
	Seed int64 `json:"seed"`

	// Tone-mapping.
	Exposure float32 `json:"exposure"`
	Gamma    float32 `json:"gamma"`

	// Lower bound for the VPL distance used by the gather step.
	ClampDistance float32 `json:"clamp_distance"`

	DirectLighting bool `json:"direct_lighting"`

	// Render at Supersample times the frame dims and downscale.
	Supersample uint32 `json:"supersample"`

	// Device lanes (0 = one per CPU) and workgroup size (0 = device default).
	Lanes         int `json:"lanes"`
	LocalWorkSize int `json:"local_work_size"`
}

// Get the default render options.
func DefaultOptions() Options {
	return Options{
		FrameW:         512,
		FrameH:         512,
		Frames:         1,
		CandidateVPLs:  scene.DefaultCandidateVPLs,
		ResampledVPLs:  scene.DefaultResampledVPLs,
		RandomSamples:  scene.DefaultRandomSamples,
		Seed:           1,
		Exposure:       1.0,
		Gamma:          2.2,
		ClampDistance:  0.1,
		DirectLighting: true,
		Supersample:    1,
	}
}

// Load options from a JSON file. Fields missing from the file keep their
// default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err = json.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("renderer: could not parse options file %s: %w", path, err)
	}
	return opts, opts.Validate()
}

// Check that the options describe a renderable frame.
func (o *Options) Validate() error {
	switch {
	case o.FrameW == 0 || o.FrameH == 0:
		return fmt.Errorf("%w: frame dims must be positive; got %dx%d", ErrInvalidOptions, o.FrameW, o.FrameH)
	case o.Frames == 0:
		return fmt.Errorf("%w: at least one frame is required", ErrInvalidOptions)
	case o.CandidateVPLs == 0 || o.ResampledVPLs == 0:
		return fmt.Errorf("%w: VPL counts must be positive; got %d candidates and %d resampled", ErrInvalidOptions, o.CandidateVPLs, o.ResampledVPLs)
	case o.RandomSamples < 3:
		return fmt.Errorf("%w: the random table needs at least 3 entries; got %d", ErrInvalidOptions, o.RandomSamples)
	case o.Supersample == 0:
		return fmt.Errorf("%w: supersample factor must be positive", ErrInvalidOptions)
	case o.renderPixels() > tracer.MaxFramePixels:
		return fmt.Errorf(
			"%w: %dx%d frame at %dx supersampling exceeds %d pixels",
			ErrInvalidOptions, o.FrameW, o.FrameH, o.Supersample, uint64(tracer.MaxFramePixels),
		)
	case o.Exposure < 0 || o.Gamma < 0 || o.ClampDistance < 0:
		return fmt.Errorf("%w: exposure, gamma and clamp distance must not be negative", ErrInvalidOptions)
	case o.Lanes < 0:
		return fmt.Errorf("%w: lane count must not be negative; got %d", ErrInvalidOptions, o.Lanes)
	case o.LocalWorkSize < 0:
		return fmt.Errorf("%w: local work size must not be negative; got %d", ErrInvalidOptions, o.LocalWorkSize)
	}
	return nil
}

// Pixel count of the supersampled render target, computed without wrapping.
func (o *Options) renderPixels() uint64 {
	s := uint64(o.Supersample)
	w, h := uint64(o.FrameW)*s, uint64(o.FrameH)*s
	if w > tracer.MaxFramePixels || h > tracer.MaxFramePixels {
		return math.MaxUint64
	}
	return w * h
}
