package cmd

import (
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
	"github.com/urfave/cli"
)

var logger = log.New("bir")

// Apply the global logging flags. An explicit --log-level takes precedence
// over -v and -vv; --log-module overrides single modules.
func setupLogging(ctx *cli.Context) error {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}

	if name := ctx.GlobalString("log-level"); name != "" {
		level, err := log.ParseLevel(name)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}

	for _, spec := range ctx.GlobalStringSlice("log-module") {
		module, level, err := log.ParseModuleLevel(spec)
		if err != nil {
			return err
		}
		log.SetModuleLevel(module, level)
	}
	return nil
}
