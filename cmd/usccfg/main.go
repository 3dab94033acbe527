package main

import (
	"context"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/convert"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

func main() {
	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse shader programs and print them back",
		Action:      parseAct,
		Args:        cli.Args{},
	}

	buildCmd := &cli.Command{
		Name:        "build",
		Description: "build control-flow graphs of shader programs",
		Action:      buildAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("scratch-pred", input.NumPredicates, "predicate register for synthesized comparisons"),
			cli.NewFlag("temp-base", 0, "first temp register for synthesized values (0 is after the highest used)"),
		},
	}

	app := &cli.Command{
		Name:        "usccfg",
		Description: "usccfg builds control-flow graphs of USC shader assembly",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("log", "stderr?console=dm", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
			cli.FlagfileFlag,
		},
		Commands: []*cli.Command{
			parseCmd,
			buildCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	tlog.DefaultLogger = tlog.New(w)

	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func parseAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		p, err := input.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		_, err = os.Stdout.Write(p.Format(nil))
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func buildAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	conf := convert.Config{
		ScratchPred: c.Int("scratch-pred"),
		TempBase:    c.Int("temp-base"),
	}

	for _, a := range c.Args {
		res, err := compiler.CompileFile(ctx, a, conf)
		if err != nil {
			return errors.Wrap(err, "build %v", a)
		}

		_, err = os.Stdout.Write(compiler.Dump(nil, res))
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}
