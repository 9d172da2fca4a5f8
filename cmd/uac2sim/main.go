// Command uac2sim runs the UAC2 speaker driver against a simulated OTG_FS
// core. A scripted host enumerates the device the way Linux does, selects
// the streaming interface, and feeds it audio packets while the driver
// services interrupts from its own event loop.
//
// Usage:
//
//	uac2sim run --frames=1000 --listen=localhost:9548
//	uac2sim enumerate
//	uac2sim descriptors --hex
//
// Flags may also come from uac2sim.yaml or uac2sim.toml in the working
// directory, the user configuration directory, or --config; flags and
// UAC2SIM_* environment variables override file values.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/ardnew/uac2speaker/pkg"
)

const description = "Simulator for the UAC2 speaker device controller."

func newParser(cli *CLI, yamlPaths, tomlPaths []string, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("uac2sim"),
		kong.Description(description),
		kong.UsageOnError(),
		// Flags and environment override configuration files.
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	}, opts...)
	return kong.New(cli, opts...)
}

// setupLogger installs the logger selected by cfg for every component and
// returns it.
func setupLogger(cfg Log, w io.Writer) *slog.Logger {
	pkg.SetLogLevel(pkg.ParseLevel(cfg.Level))
	return pkg.SetLogFormat(w, pkg.ParseLogFormat(cfg.Format))
}

func main() {
	var cli CLI
	yamlPaths, tomlPaths := configPaths(findConfig(os.Args[1:]))
	parser, err := newParser(&cli, yamlPaths, tomlPaths)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger := setupLogger(cli.Log, os.Stderr)
	ctx.Bind(logger)
	ctx.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil))
	ctx.FatalIfErrorf(ctx.Run())
}
