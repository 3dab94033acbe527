package input

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstruction(t *testing.T) {
	for _, s := range []string{
		"MOV r0.x, c1.y",
		"ADD r0.w, -r1.x, abs(c2.z)",
		"MAD r0.x, r1.x, r2.x, -abs(r3.w)",
		"MOV r1.x, c[aL+3].x",
		"MOV r1.x, c[a2+0].y",
		"MOV oDepth, r0.x",
		"MOV lr, r4.x",
		"MOV a1, aL",
		"SETP.lt p0.x, r0.x, 1.5",
		"(p1.y) SETP.ge p0.z, r0.x, -2",
		"(!p3.w) RET",
		"IFC.eq r1.x, r1.x",
		"IFP !p0.x",
		"IF b0.x",
		"IF -vFace",
		"CALLNZ 3, b1.x",
		"CALL 7",
		"LABEL 7",
		"JUMP 12",
		"BLOCK 12",
		"LOOP i0.x",
		"REP.gt r0.x, 0",
		"GLSLENDLOOP p1.x",
		"GLSLENDLOOP",
		"SWITCH r0.x",
		"CASE 1",
		"DEFAULT",
		"DEF c0, 1, 2, 3, 4",
		"DEFI i1, 0, 5, 1, 0",
		"DEFB b2, 1",
		"TEXLD r0.x, v0.x, s0",
		"TEXKILL r1.x",
	} {
		in, err := ParseInstruction(s)
		require.NoError(t, err, s)
		require.NotNil(t, in, s)

		assert.Equal(t, s, in.String())
	}
}

func TestParseInstructionTabs(t *testing.T) {
	in, err := ParseInstruction("MOV\tr0.x,\tr1.x")
	require.NoError(t, err)
	assert.Equal(t, "MOV r0.x, r1.x", in.String())

	in, err = ParseInstruction("(p0.x)\tSETP.lt\tp1.x, r0.x, r1.x")
	require.NoError(t, err)
	assert.Equal(t, "(p0.x) SETP.lt p1.x, r0.x, r1.x", in.String())

	in, err = ParseInstruction("RET\t")
	require.NoError(t, err)
	assert.Equal(t, "RET", in.String())
}

func TestParseOperand(t *testing.T) {
	o, err := parseOperand("-abs(c[aL+5].w)")
	require.NoError(t, err)
	assert.Equal(t, Operand{Type: RegConst, Num: 5, Chan: 3, Neg: true, Abs: true, Rel: true, Index: -1}, o)

	o, err = parseOperand("!p2.y")
	require.NoError(t, err)
	assert.Equal(t, Predicate{Num: 2, Chan: 1, Neg: true}, o.AsPredicate())

	o, err = parseOperand("-.25")
	require.NoError(t, err)
	assert.Equal(t, Operand{Type: RegImm, Imm: -0.25}, o)

	for _, s := range []string{"", "r0.q", "r0.xy", "x1", "p4.x", "r[aL+1].x", "c[b0+1].x", "rr.x"} {
		_, err := parseOperand(s)
		assert.Error(t, err, "%q", s)
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{
		"FOO r0.x",
		"MOV r0.x",
		"MOV r0.x, r1.x, r2.x",
		"IFC r0.x, r1.x",
		"IFC.xx r0.x, r1.x",
		"MOV.eq r0.x, r1.x",
		"CALL",
		"CALL x",
		"(r0.x) RET",
		"(p0.x RET",
	} {
		_, err := ParseInstruction(s)
		assert.Error(t, err, "%q", s)
	}

	_, err := Parse(context.Background(), []byte("MOV r0.x, r1.x\n\nBAD\n"))
	assert.ErrorContains(t, err, "line 3")
}

func TestParseProgram(t *testing.T) {
	p, err := Parse(context.Background(), []byte(`
# comment
DEF c0, 1, 2, 3, 4 ; trailing
DEFB b1, 1
MOV r0.x, c0.z
CALL 2
RET
LABEL 2
RET
LABEL 2
`))
	require.NoError(t, err)
	require.Len(t, p.Code, 8)

	assert.Equal(t, 3, p.Code[0].Line)
	assert.Equal(t, map[Label]int{2: 5}, p.Labels())

	v, ok := p.Value(Operand{Type: RegConst, Num: 0, Chan: 2})
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	v, ok = p.Value(Operand{Type: RegBool, Num: 1})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = p.Value(Operand{Type: RegConst, Num: 1})
	assert.False(t, ok)

	_, ok = p.Value(Operand{Type: RegConst, Num: 0, Rel: true})
	assert.False(t, ok)

	_, ok = p.Value(Operand{Type: RegTemp, Num: 0})
	assert.False(t, ok)
}

func TestFormatProgram(t *testing.T) {
	p, err := Parse(context.Background(), []byte("IFC.lt r0.x, r1.x\nMOV r2.x, 1\nELSE\nMOV r2.x, 2\nENDIF\nRET\nLABEL 1\nRET"))
	require.NoError(t, err)

	exp := "IFC.lt r0.x, r1.x\n\tMOV r2.x, 1\nELSE\n\tMOV r2.x, 2\nENDIF\nRET\n\nLABEL 1\nRET\n"

	assert.Equal(t, exp, string(p.Format(nil)))
}

func TestEffects(t *testing.T) {
	for _, tc := range []struct {
		s string
		f Flag
	}{
		{s: "TEXKILL r0.x", f: KillsPixels},
		{s: "TEXLD r0.x, v0.x, s0", f: SamplesTexture},
		{s: "MOV oDepth, r0.x", f: WritesDepth},
		{s: "MOV r0.x, r1.x"},
	} {
		in, err := ParseInstruction(tc.s)
		require.NoError(t, err)

		assert.Equal(t, tc.f, in.Effects(), tc.s)
	}
}

func TestCmp(t *testing.T) {
	assert.True(t, CmpLE.Eval(1, 1))
	assert.False(t, CmpGT.Eval(1, 1))
	assert.True(t, CmpGE.Same())
	assert.False(t, CmpNE.Same())

	assert.True(t, IF.IsFlow())
	assert.False(t, SETP.IsFlow())
	assert.True(t, LABEL.ClosesBlock())
	assert.False(t, IF.ClosesBlock())
}
