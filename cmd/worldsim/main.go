package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Run     RunCmd           `cmd:"" help:"Run a population simulation"`
	Sample  SampleCmd        `cmd:"" help:"Print sample draws for a seed"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("worldsim"),
		kong.Description("Deterministic synthetic population generator"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
