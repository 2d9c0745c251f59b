package main

import (
	"fmt"
	"os"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/cmd"
	"github.com/urfave/cli"
)

var compilerFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "leaf-policy",
		Value: "split-leaves",
		Usage: "flattening of two-mesh BVH leaves: split-leaves or keep-first",
	},
	cli.StringFlag{
		Name:  "split",
		Value: "sah",
		Usage: "BVH split strategy: sah or median",
	},
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "bir"
	app.Usage = "render scenes using bidirectional instant radiosity"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "set log level (debug, info, notice, warning, error)",
		},
		cli.StringSliceFlag{
			Name:  "log-module",
			Usage: "override the level of one logger, e.g. device=debug (repeatable)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile text scene representation into a binary compressed format",
			Description: `
Parse a scene definition from a wavefront obj file, build a BVH tree to optimize
ray intersection tests and package the scene in a fixed-layout format.

The optimized scene data is then written to a zip archive which can be supplied
as an argument to the render command.`,
			ArgsUsage: "scene_file1.obj scene_file2.obj ...",
			Flags:     compilerFlags,
			Action:    cmd.CompileScene,
		},
		{
			Name:      "info",
			Usage:     "print scene statistics",
			ArgsUsage: "scene_file.{obj,zip}",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "dump-nodes",
					Usage: "write the device BVH node buffer to this file",
				},
			}, compilerFlags...),
			Action: cmd.ShowSceneInfo,
		},
		{
			Name:  "render",
			Usage: "render a still frame",
			Description: `
Generate candidate virtual point lights from the scene emitters and from the
camera, resample them by power and gather their contribution at each pixel.
Frames are accumulated progressively; each one draws a new set of VPLs.

Options are read from the defaults, then from the optional --config JSON file
and finally from any flag set on the command line.`,
			ArgsUsage: "scene_file.{obj,zip}",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Usage: "load render options from a JSON file",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "frames",
					Value: 1,
					Usage: "number of accumulated frames",
				},
				cli.IntFlag{
					Name:  "vpls",
					Value: 1024,
					Usage: "candidate VPL pool size",
				},
				cli.IntFlag{
					Name:  "resampled",
					Value: 128,
					Usage: "number of resampled VPLs used for shading",
				},
				cli.IntFlag{
					Name:  "random",
					Value: 128,
					Usage: "size of the per-frame random table",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "random seed",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "camera exposure for tone-mapping",
				},
				cli.Float64Flag{
					Name:  "gamma",
					Value: 2.2,
					Usage: "display gamma",
				},
				cli.Float64Flag{
					Name:  "clamp",
					Value: 0.1,
					Usage: "lower bound for the shading point to VPL distance",
				},
				cli.BoolFlag{
					Name:  "no-direct",
					Usage: "skip direct lighting from the scene emitters",
				},
				cli.IntFlag{
					Name:  "supersample",
					Value: 1,
					Usage: "render at a multiple of the frame size and downscale",
				},
				cli.IntFlag{
					Name:  "lanes",
					Usage: "number of worker lanes (0 = one per CPU)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame (.png or .webp)",
				},
			}, compilerFlags...),
			Action: cmd.RenderFrame,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
