package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene/reader"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/renderer"
	"github.com/urfave/cli"
)

// Build render options. Values are layered: defaults, then the optional
// --config file, then any flag explicitly set on the command line.
func renderOptions(ctx *cli.Context) (renderer.Options, error) {
	opts := renderer.DefaultOptions()
	if cfgFile := ctx.String("config"); cfgFile != "" {
		var err error
		if opts, err = renderer.LoadOptions(cfgFile); err != nil {
			return opts, err
		}
	}

	uintFlags := []struct {
		name string
		dst  *uint32
	}{
		{"width", &opts.FrameW},
		{"height", &opts.FrameH},
		{"frames", &opts.Frames},
		{"vpls", &opts.CandidateVPLs},
		{"resampled", &opts.ResampledVPLs},
		{"random", &opts.RandomSamples},
		{"supersample", &opts.Supersample},
	}
	for _, flag := range uintFlags {
		if !ctx.IsSet(flag.name) {
			continue
		}
		v, err := uintFlag(ctx, flag.name)
		if err != nil {
			return opts, err
		}
		*flag.dst = v
	}
	if ctx.IsSet("seed") {
		opts.Seed = ctx.Int64("seed")
	}
	if ctx.IsSet("exposure") {
		opts.Exposure = float32(ctx.Float64("exposure"))
	}
	if ctx.IsSet("gamma") {
		opts.Gamma = float32(ctx.Float64("gamma"))
	}
	if ctx.IsSet("clamp") {
		opts.ClampDistance = float32(ctx.Float64("clamp"))
	}
	if ctx.Bool("no-direct") {
		opts.DirectLighting = false
	}
	if ctx.IsSet("lanes") {
		if opts.Lanes = ctx.Int("lanes"); opts.Lanes < 0 {
			return opts, fmt.Errorf("--lanes must not be negative; got %d", opts.Lanes)
		}
	}

	return opts, opts.Validate()
}

// Read an integer flag that must fit in a uint32.
func uintFlag(ctx *cli.Context, name string) (uint32, error) {
	v := ctx.Int(name)
	if v < 0 || int64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("--%s must be between 0 and %d; got %d", name, uint32(math.MaxUint32), v)
	}
	return uint32(v), nil
}

// Render a still frame.
func RenderFrame(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	// Load scene
	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}
	compileOpts, err := compilerOptions(ctx)
	if err != nil {
		return err
	}

	sc, err := reader.ReadScene(ctx.Args().First(), compileOpts...)
	if err != nil {
		return err
	}

	r, err := renderer.NewDefault(sc, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	renderCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Noticef(
		"rendering %dx%d frame (%d frames, %d candidate VPLs, %d resampled)",
		opts.FrameW, opts.FrameH, opts.Frames, opts.CandidateVPLs, opts.ResampledVPLs,
	)
	start := time.Now()
	img, err := r.Render(renderCtx)
	if err != nil {
		return err
	}

	stats := r.Stats()
	logger.Noticef("frame statistics\n%s", stats.Table())
	logger.Noticef(
		"%d valid candidates, %d distinct resampled sources, pool power %.4f",
		stats.ValidCandidates, stats.DistinctSources, stats.PoolPower,
	)

	imgFile := ctx.String("out")
	if err = renderer.SaveImage(img, imgFile); err != nil {
		return err
	}
	logger.Noticef("wrote frame to %s in %d ms", imgFile, time.Since(start).Nanoseconds()/1e6)

	return nil
}
