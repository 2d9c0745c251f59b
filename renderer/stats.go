package renderer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
)

type PhaseStat struct {
	// The pipeline phase name.
	Name string

	// Accumulated time over all frames.
	Time time.Duration
}

type FrameStats struct {
	// Per phase timings in execution order.
	Phases []PhaseStat

	// Number of accumulated frames.
	Frames uint32

	// Valid candidates and distinct resampled sources of the last frame.
	ValidCandidates int
	DistinctSources int

	// Total candidate pool power of the last frame.
	PoolPower float64

	// Total render time for entire frame.
	RenderTime time.Duration
}

// Add a phase timing, merging it with an existing entry of the same name.
func (s *FrameStats) addPhase(name string, elapsed time.Duration) {
	for i := range s.Phases {
		if s.Phases[i].Name == name {
			s.Phases[i].Time += elapsed
			return
		}
	}
	s.Phases = append(s.Phases, PhaseStat{Name: name, Time: elapsed})
}

// Render the stats as a text table.
func (s FrameStats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Phase", "Time", "% of frame"})
	for _, phase := range s.Phases {
		var pct float64
		if s.RenderTime > 0 {
			pct = 100 * float64(phase.Time) / float64(s.RenderTime)
		}
		table.Append([]string{
			phase.Name,
			phase.Time.String(),
			fmt.Sprintf("%02.1f %%", pct),
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("%d frame(s), %d VPL candidates, %d sources", s.Frames, s.ValidCandidates, s.DistinctSources),
		"TOTAL",
		s.RenderTime.String(),
	})
	table.Render()
	return buf.String()
}
