package convert

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

type (
	CondKind   int
	ResultKind int

	Condition struct {
		Kind CondKind

		Cmp  input.Cmp
		A, B input.Operand

		Pred input.Predicate
	}

	CondResult struct {
		Kind ResultKind

		// Pred is the predicate to branch on for Dynamic results.
		Pred   input.Predicate
		Static bool
	}
)

const (
	CondCompare CondKind = iota
	CondPredicate
	CondBool
	CondNZBit
)

const (
	Dynamic ResultKind = iota
	StaticTrue
	StaticFalse
)

func (k ResultKind) String() string {
	switch k {
	case Dynamic:
		return "dynamic"
	case StaticTrue:
		return "static_true"
	case StaticFalse:
		return "static_false"
	}

	return "result?"
}

// conditionOf extracts the branch condition of a marker.
// ok is false for unconditional forms.
func conditionOf(in *input.Instruction) (c Condition, ok bool, err error) {
	switch in.Op {
	case input.IFC, input.BREAKC, input.CONTINUEC, input.REP:
		c = Condition{Kind: CondCompare, Cmp: in.Cmp, A: in.Src[0], B: in.Src[1]}
	case input.IFP, input.BREAKP, input.CONTINUEP, input.CALLP:
		if in.Src[0].Type != input.RegPred {
			return c, false, errors.New("%v: predicate expected, got %v", in.Op, in.Src[0])
		}

		c = Condition{Kind: CondPredicate, Pred: in.Src[0].AsPredicate()}
	case input.IF, input.CALLNZ:
		switch in.Src[0].Type {
		case input.RegBool, input.RegFrontFace:
		default:
			return c, false, errors.New("%v: boolean constant expected, got %v", in.Op, in.Src[0])
		}

		c = Condition{Kind: CondBool, A: in.Src[0]}
	case input.IFNZBIT, input.BREAKNZBIT, input.CONTINUENZBIT, input.CALLNZBIT:
		c = Condition{Kind: CondNZBit, A: in.Src[0]}
	case input.GLSLENDLOOP:
		if len(in.Src) == 0 {
			return predicated(in)
		}

		if in.Src[0].Type != input.RegPred {
			return c, false, errors.New("%v: predicate expected, got %v", in.Op, in.Src[0])
		}

		c = Condition{Kind: CondPredicate, Pred: in.Src[0].AsPredicate()}
	case input.BREAK, input.CONTINUE, input.RET, input.CALL:
		return predicated(in)
	default:
		return c, false, errors.New("internal: %v has no condition", in.Op)
	}

	if in.Pred != nil {
		return c, false, errors.New("%v: predicated conditional branch", in.Op)
	}

	return c, true, nil
}

func predicated(in *input.Instruction) (Condition, bool, error) {
	if in.Pred == nil {
		return Condition{}, false, nil
	}

	return Condition{Kind: CondPredicate, Pred: *in.Pred}, true, nil
}

// Evaluate decides a branch condition at position at of the program.
// Dynamic results that need a runtime comparison come with the SETP
// to place before the branch; it writes the scratch predicate.
func Evaluate(p *input.Program, at int, c Condition, scratch int) (r CondResult, setp *input.Instruction, err error) {
	switch c.Kind {
	case CondBool:
		a := c.A
		a.Neg = false

		r = CondResult{
			Kind:   Dynamic,
			Pred:   input.Predicate{Num: scratch},
			Static: a.Type == input.RegBool,
		}

		setp = newSetp(scratch, input.CmpNE, a, imm(0))

		return negate(r, c.A.Neg), setp, nil
	case CondNZBit:
		a := c.A
		a.Neg = false

		if v, ok := p.Value(a); ok {
			return negate(static(v != 0), c.A.Neg), nil, nil
		}

		r = CondResult{Kind: Dynamic, Pred: input.Predicate{Num: scratch}}
		setp = newSetp(scratch, input.CmpNE, a, imm(0))

		return negate(r, c.A.Neg), setp, nil
	case CondCompare:
		if v, ok := foldCompare(p, c.Cmp, c.A, c.B); ok {
			return static(v), nil, nil
		}

		r = CondResult{Kind: Dynamic, Pred: input.Predicate{Num: scratch}}
		setp = newSetp(scratch, c.Cmp, c.A, c.B)

		return r, setp, nil
	case CondPredicate:
		r = evalPredicate(p, at, c.Pred)

		return negate(r, c.Pred.Neg), nil, nil
	}

	return r, nil, errors.New("internal: unsupported condition kind %d", c.Kind)
}

// FindSetp looks back from at for the SETP that last wrote predicate pr.
// The scan stops at control-flow markers and at any other write to the predicate.
func FindSetp(code []*input.Instruction, at int, pr input.Predicate) (int, bool) {
	for i := at - 1; i >= 0; i-- {
		in := code[i]

		if in.Op.IsFlow() {
			return -1, false
		}

		for _, d := range in.Dst {
			if d.Type != input.RegPred || d.Num != pr.Num || d.Chan != pr.Chan {
				continue
			}

			if in.Op != input.SETP {
				return -1, false
			}

			return i, true
		}
	}

	return -1, false
}

func evalPredicate(p *input.Program, at int, pr input.Predicate) CondResult {
	dyn := CondResult{Kind: Dynamic, Pred: input.Predicate{Num: pr.Num, Chan: pr.Chan}}

	i, ok := FindSetp(p.Code, at, pr)
	if !ok {
		return dyn
	}

	s := p.Code[i]
	if s.Pred != nil {
		return dyn
	}

	r, _, err := Evaluate(p, i, Condition{Kind: CondCompare, Cmp: s.Cmp, A: s.Src[0], B: s.Src[1]}, pr.Num)
	if err != nil || r.Kind == Dynamic {
		return dyn
	}

	return r
}

func foldCompare(p *input.Program, c input.Cmp, a, b input.Operand) (res, ok bool) {
	va, oka := p.Value(a)
	vb, okb := p.Value(b)

	if oka && okb {
		return c.Eval(va, vb), true
	}

	// the index register may differ between the two reads
	if a == b && !a.Rel {
		return c.Same(), true
	}

	return false, false
}

func negate(r CondResult, neg bool) CondResult {
	if !neg {
		return r
	}

	switch r.Kind {
	case StaticTrue:
		r.Kind = StaticFalse
	case StaticFalse:
		r.Kind = StaticTrue
	case Dynamic:
		r.Pred.Neg = !r.Pred.Neg
	}

	return r
}

func static(v bool) CondResult {
	if v {
		return CondResult{Kind: StaticTrue}
	}

	return CondResult{Kind: StaticFalse}
}

func newSetp(scratch int, c input.Cmp, a, b input.Operand) *input.Instruction {
	return &input.Instruction{
		Op:  input.SETP,
		Cmp: c,
		Dst: []input.Operand{{Type: input.RegPred, Num: scratch}},
		Src: []input.Operand{a, b},

		Synthetic: true,
	}
}

func imm(v float64) input.Operand {
	return input.Operand{Type: input.RegImm, Imm: v}
}

func (r CondResult) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 5)
	b = e.AppendKeyInt(b, "kind", int(r.Kind))
	b = e.AppendKeyInt(b, "pred", r.Pred.Num)
	b = e.AppendKeyInt(b, "chan", r.Pred.Chan)
	b = e.AppendKeyInt(b, "neg", b2i(r.Pred.Neg))
	b = e.AppendKeyInt(b, "static", b2i(r.Static))

	return b
}

func b2i(x bool) int {
	if x {
		return 1
	}

	return 0
}
