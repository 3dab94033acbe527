package cfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

func TestCondDegradesToJump(t *testing.T) {
	f := NewFunc(0, true)

	a := f.NewBlock()

	f.SetCond(f.Entry, input.Predicate{Num: 1}, a, a, false)

	assert.Equal(t, Jump{To: a}, f.Block(f.Entry).Term)
}

func TestEmptySwitchIsJump(t *testing.T) {
	f := NewFunc(0, true)

	f.SetSwitch(f.Entry, input.Operand{Type: input.RegTemp}, nil, f.Exit)

	assert.Equal(t, Jump{To: f.Exit}, f.Block(f.Entry).Term)
}

func TestDoubleTerminate(t *testing.T) {
	f := NewFunc(0, true)

	f.SetJump(f.Entry, f.Exit)

	assert.Panics(t, func() {
		f.SetJump(f.Entry, f.Exit)
	})
}

func TestFree(t *testing.T) {
	f := NewFunc(0, true)

	a := f.NewBlock()
	b := f.NewBlock()

	f.SetJump(f.Entry, a)

	err := f.Free(a)
	require.Error(t, err)

	err = f.Free(b)
	require.NoError(t, err)
	assert.True(t, f.Block(b).Freed)

	err = f.Free(f.Exit)
	require.Error(t, err)

	_, ok := f.FindLabel(3)
	assert.False(t, ok)
}

func TestPruneAndVerify(t *testing.T) {
	ctx := context.Background()

	f := NewFunc(1, false)

	a := f.NewBlock()
	dead := f.NewLabeledBlock(9)
	orphan := f.NewBlock()

	f.SetCond(f.Entry, input.Predicate{Num: 0}, a, f.Exit, false)
	f.SetJump(a, f.Exit)
	f.SetJump(dead, a)

	require.Error(t, f.Verify(), "open block")

	removed := f.Prune(ctx)
	assert.Equal(t, 2, removed)
	assert.True(t, f.Block(dead).Freed)
	assert.True(t, f.Block(orphan).Freed)

	require.NoError(t, f.Verify())

	seen := f.Reachable()
	assert.True(t, seen.IsSet(f.Exit))
	assert.Equal(t, 3, seen.Size())

	assert.Len(t, f.Live(), 3)
}

func TestFormat(t *testing.T) {
	f := NewFunc(0, true)

	a := f.NewLabeledBlock(4)

	f.Block(f.Entry).Code = append(f.Block(f.Entry).Code, &input.Instruction{
		Op:  input.MOV,
		Dst: []input.Operand{{Type: input.RegTemp, Num: 1}},
		Src: []input.Operand{{Type: input.RegImm, Imm: 2}},
	})

	f.SetSwitch(f.Entry, input.Operand{Type: input.RegTemp, Num: 0}, []Case{{Value: 1, Target: a}}, f.Exit)
	f.SetJump(a, f.Exit)

	out := string(f.Format(nil))

	assert.Contains(t, out, "func main depth 0")
	assert.Contains(t, out, "MOV r1.x, 2")
	assert.Contains(t, out, "switch r0.x [1: b2] default b1")
	assert.Contains(t, out, "b2: label 4")
	assert.Contains(t, out, "\tret\n")
}
