package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene/reader"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene/writer"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/device"
	"github.com/urfave/cli"
)

// Map the --leaf-policy and --split flags to scene compiler options.
func compilerOptions(ctx *cli.Context) ([]compiler.Option, error) {
	var opts []compiler.Option

	switch policy := ctx.String("leaf-policy"); policy {
	case "", bvh.SplitLeaves.String():
		opts = append(opts, compiler.WithLeafPolicy(bvh.SplitLeaves))
	case bvh.KeepFirstMesh.String():
		opts = append(opts, compiler.WithLeafPolicy(bvh.KeepFirstMesh))
	default:
		return nil, fmt.Errorf("unknown leaf policy %q; expected %q or %q", policy, bvh.SplitLeaves, bvh.KeepFirstMesh)
	}

	switch split := ctx.String("split"); split {
	case "", "sah":
		opts = append(opts, compiler.WithScoreStrategy(bvh.SurfaceAreaHeuristic))
	case "median":
		opts = append(opts, compiler.WithScoreStrategy(bvh.SpatialMedian))
	default:
		return nil, fmt.Errorf("unknown split strategy %q; expected \"sah\" or \"median\"", split)
	}

	return opts, nil
}

// Compile scene to binary format.
func CompileScene(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}
	if ctx.NArg() == 0 {
		return errors.New("missing scene file argument")
	}

	opts, err := compilerOptions(ctx)
	if err != nil {
		return err
	}

	for idx := 0; idx < ctx.NArg(); idx++ {
		sceneFile := ctx.Args().Get(idx)
		if !strings.HasSuffix(sceneFile, ".obj") {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		logger.Noticef("parsing and compiling scene: %s", sceneFile)
		sc, err := reader.ReadScene(sceneFile, opts...)
		if err != nil {
			return err
		}

		// Display compiled scene info
		logger.Noticef("scene information:\n%s", sc.Stats())

		zipFile := strings.TrimSuffix(sceneFile, ".obj") + ".zip"
		if err = writer.WriteScene(sc, zipFile); err != nil {
			return err
		}
	}

	return nil
}

// Display scene info. Wavefront scenes are compiled on the fly.
func ShowSceneInfo(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	opts, err := compilerOptions(ctx)
	if err != nil {
		return err
	}

	sc, err := reader.ReadScene(ctx.Args().First(), opts...)
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", sc.Stats())
	if sc.Camera != nil {
		logger.Noticef("camera: %s", sc.Camera)
	}

	if dumpFile := ctx.String("dump-nodes"); dumpFile != "" {
		return dumpNodes(sc, dumpFile)
	}
	return nil
}

// Upload the scene to a CPU device and write its BVH node buffer to
// dumpFile as raw 36-byte records.
func dumpNodes(sc *scene.Scene, dumpFile string) error {
	tr := tracer.NewTracer("info", device.NewDevice("cpu", 1), nil)
	defer tr.Close()

	if err := tr.UploadScene(sc, 1, 1); err != nil {
		return err
	}
	data, err := tr.NodeBlock()
	if err != nil {
		return err
	}
	if err = os.WriteFile(dumpFile, data, 0644); err != nil {
		return fmt.Errorf("could not write node dump: %w", err)
	}

	logger.Noticef("wrote %d BVH nodes (%d bytes) to %s", len(sc.BvhNodeList), len(data), dumpFile)
	return nil
}
