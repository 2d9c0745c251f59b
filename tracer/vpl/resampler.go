package vpl

import (
	"math"
	"sort"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/sampler"
)

// Resampling statistics.
type ResampleStats struct {
	// Sum of candidate weights.
	TotalWeight float64

	// Number of candidates with a positive weight.
	WeightedCandidates int

	// Number of distinct candidates picked.
	DistinctSources int
}

// A Resampler reduces a candidate pool to a fixed number of VPLs. Each
// candidate is picked with probability proportional to its power using
// systematic resampling, so a candidate with weight w is selected
// M * w / W times on average.
//
// Resampling is split into a serial Prepare step that builds the weight CDF
// and a per-slot Slot step that may run in parallel.
type Resampler struct {
	count uint32

	candidates []scene.VPL
	cdf        []float64
	total      float64
	lastValid  int
	xi         float64
}

// Create a resampler producing count VPLs.
func NewResampler(count uint32) *Resampler {
	return &Resampler{count: count, lastValid: -1}
}

// Get the number of output slots.
func (r *Resampler) Count() uint32 {
	return r.count
}

// Build the weight CDF for the candidate pool.
func (r *Resampler) Prepare(candidates []scene.VPL, uniform *scene.UniformBlock) ResampleStats {
	r.candidates = candidates
	if cap(r.cdf) < len(candidates) {
		r.cdf = make([]float64, len(candidates))
	}
	r.cdf = r.cdf[:len(candidates)]
	r.total = 0
	r.lastValid = -1

	var stats ResampleStats
	for index := range candidates {
		w := weight(&candidates[index])
		if w > 0 {
			r.lastValid = index
			stats.WeightedCandidates++
		}
		r.total += w
		r.cdf[index] = r.total
	}
	stats.TotalWeight = r.total

	r.xi = float64(uniform.RandomNumber[0])
	if r.xi < 0 || r.xi >= 1 {
		r.xi -= math.Floor(r.xi)
	}
	return stats
}

// Get the candidate index feeding output slot j or -1 if the pool carries
// no power.
func (r *Resampler) Source(j uint32) int {
	if r.total <= 0 || r.lastValid < 0 || r.count == 0 {
		return -1
	}

	u := float64(sampler.Hammersley(j, r.count)[0]) + r.xi/float64(r.count)
	u -= math.Floor(u)
	target := u * r.total

	index := sort.Search(len(r.cdf), func(i int) bool { return r.cdf[i] > target })
	if index > r.lastValid {
		index = r.lastValid
	}
	return index
}

// Produce the VPL for output slot j. The selected candidate's irradiance is
// rescaled so that every output carries an equal share (W / M) of the pool
// power; its usage count is the number of slots that picked it.
func (r *Resampler) Slot(j uint32) scene.VPL {
	src := r.Source(j)
	if src < 0 {
		return scene.VPL{}
	}

	usage := uint32(0)
	for k := uint32(0); k < r.count; k++ {
		if r.Source(k) == src {
			usage++
		}
	}

	out := r.candidates[src]
	share := r.total / float64(r.count)
	scale := float32(share / weight(&out))
	out.Irradiance = out.Irradiance.Vec3().Mul(scale).Vec4(0)
	out.PowerUsagePdf[0] = float32(share)
	out.SetUsageCount(usage)
	return out
}

// Prepare and fill dst serially. Only the first Count() entries of dst are
// written; the remaining ones are reset to the zero VPL.
func (r *Resampler) Resample(candidates, dst []scene.VPL, uniform *scene.UniformBlock) ResampleStats {
	stats := r.Prepare(candidates, uniform)

	sources := make(map[int]struct{})
	for j := range dst {
		if uint32(j) >= r.count {
			dst[j] = scene.VPL{}
			continue
		}
		dst[j] = r.Slot(uint32(j))
		if src := r.Source(uint32(j)); src >= 0 {
			sources[src] = struct{}{}
		}
	}
	stats.DistinctSources = len(sources)
	return stats
}

// Negative, NaN and infinite powers carry no weight.
func weight(v *scene.VPL) float64 {
	p := float64(v.Power())
	if p > 0 && !math.IsInf(p, 1) {
		return p
	}
	return 0
}
