package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/convert"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

func TestCompileFile(t *testing.T) {
	ctx := context.Background()

	res, err := CompileFile(ctx, "testdata/shader.usc", convert.Config{})
	require.NoError(t, err)

	t.Logf("cfg:\n%s", Dump(nil, res))

	require.Len(t, res.Funcs, 3)

	main, f1, f2 := res.Funcs[0], res.Funcs[1], res.Funcs[2]

	assert.Equal(t, []int{2, 1, 0}, []int{main.Depth, f1.Depth, f2.Depth})
	assert.Equal(t, input.KillsPixels|input.SamplesTexture|input.WritesDepth, res.Flags)

	assert.True(t, f1.UsesIndex)
	assert.False(t, f2.UsesIndex)

	for _, f := range res.Funcs {
		assert.Equal(t, cfg.Done, f.Status, f.Name())
		assert.NoError(t, f.Verify(), f.Name())
	}

	out := string(Dump(nil, res))

	assert.Contains(t, out, "func main depth 2")
	assert.Contains(t, out, "call label1")
	assert.Contains(t, out, "call label2")
	assert.Contains(t, out, "static")
}

func TestCompileErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Compile(ctx, "bad", []byte("MOV r0.x\n"), convert.Config{})
	assert.ErrorContains(t, err, "parse text")

	_, err = Compile(ctx, "rec", []byte("CALL 1\nLABEL 1\nCALL 1\nRET\n"), convert.Config{})

	var re convert.RecursionError
	assert.ErrorAs(t, err, &re)

	_, err = CompileFile(ctx, "testdata/missing.usc", convert.Config{})
	assert.Error(t, err)
}
