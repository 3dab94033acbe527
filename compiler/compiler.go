package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/convert"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

func CompileFile(ctx context.Context, name string, c convert.Config) (res *convert.Result, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, c)
}

// Compile parses a shader program and builds the control-flow graph
// of its main function and every function it calls.
// Any error is fatal, no partial graph is returned.
func Compile(ctx context.Context, name string, text []byte, c convert.Config) (res *convert.Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name)
	defer tr.Finish("err", &err)

	p, err := input.Parse(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	res, err = convert.Build(ctx, p, c)
	if err != nil {
		return nil, errors.Wrap(err, "build cfg")
	}

	tr.Printw("built", "funcs", len(res.Funcs), "flags", res.Flags)

	return res, nil
}

// Dump prints every function of the result.
func Dump(b []byte, res *convert.Result) []byte {
	for i, f := range res.Funcs {
		if i != 0 {
			b = append(b, '\n')
		}

		b = f.Format(b)
	}

	return b
}
