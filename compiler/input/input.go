// Package input describes the flat instruction stream the CFG builder consumes:
// ordinary shader operations interleaved with structured control-flow markers.
package input

import "tlog.app/go/tlog/tlwire"

type (
	Opcode  int
	Cmp     int
	RegType int
	Label   uint32
	Flag    int

	Operand struct {
		Type RegType
		Num  int
		Chan int

		Neg bool
		Abs bool

		// Rel is set for relative addressing (c[aL+n]).
		// Index is the loop index register bound to it by the builder.
		Rel   bool
		Index int

		Imm float64
	}

	Predicate struct {
		Num  int
		Chan int
		Neg  bool
	}

	Instruction struct {
		Op   Opcode
		Cmp  Cmp
		Pred *Predicate

		Dst []Operand
		Src []Operand

		Label Label

		Line      int
		Synthetic bool
	}

	Program struct {
		Code []*Instruction

		// Consts holds compile-time values of constant registers set by DEF directives.
		Consts map[ConstKey][4]float64
	}

	ConstKey struct {
		Type RegType
		Num  int
	}
)

const (
	NOP Opcode = iota
	MOV
	ADD
	SUB
	MUL
	MAD
	MIN
	MAX
	FRC
	RCP
	DP3
	DP4
	TEXLD
	TEXKILL
	SETP
	DEF
	DEFI
	DEFB

	firstMarker

	IF
	IFC
	IFP
	IFNZBIT
	ELSE
	ENDIF
	LOOP
	ENDLOOP
	REP
	ENDREP
	GLSLLOOP
	GLSLENDLOOP
	BREAK
	BREAKC
	BREAKP
	BREAKNZBIT
	CONTINUE
	CONTINUEC
	CONTINUEP
	CONTINUENZBIT
	RET
	CALL
	CALLNZ
	CALLP
	CALLNZBIT
	LABEL
	JUMP
	BLOCK
	SWITCH
	CASE
	DEFAULT
	ENDSWITCH

	numOpcodes
)

const (
	CmpNone Cmp = iota
	CmpEQ
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

const (
	RegTemp RegType = iota
	RegConst
	RegInt
	RegBool
	RegPred
	RegInput
	RegOutput
	RegSampler
	RegDepth
	RegFrontFace
	RegIndex
	RegLink
	RegImm
)

const (
	KillsPixels Flag = 1 << iota
	WritesDepth
	SamplesTexture
)

// NumPredicates is the number of predicate registers a program may name.
const NumPredicates = 4

var opNames = [...]string{
	NOP:     "NOP",
	MOV:     "MOV",
	ADD:     "ADD",
	SUB:     "SUB",
	MUL:     "MUL",
	MAD:     "MAD",
	MIN:     "MIN",
	MAX:     "MAX",
	FRC:     "FRC",
	RCP:     "RCP",
	DP3:     "DP3",
	DP4:     "DP4",
	TEXLD:   "TEXLD",
	TEXKILL: "TEXKILL",
	SETP:    "SETP",
	DEF:     "DEF",
	DEFI:    "DEFI",
	DEFB:    "DEFB",

	firstMarker: "",

	IF:            "IF",
	IFC:           "IFC",
	IFP:           "IFP",
	IFNZBIT:       "IFNZBIT",
	ELSE:          "ELSE",
	ENDIF:         "ENDIF",
	LOOP:          "LOOP",
	ENDLOOP:       "ENDLOOP",
	REP:           "REP",
	ENDREP:        "ENDREP",
	GLSLLOOP:      "GLSLLOOP",
	GLSLENDLOOP:   "GLSLENDLOOP",
	BREAK:         "BREAK",
	BREAKC:        "BREAKC",
	BREAKP:        "BREAKP",
	BREAKNZBIT:    "BREAKNZBIT",
	CONTINUE:      "CONTINUE",
	CONTINUEC:     "CONTINUEC",
	CONTINUEP:     "CONTINUEP",
	CONTINUENZBIT: "CONTINUENZBIT",
	RET:           "RET",
	CALL:          "CALL",
	CALLNZ:        "CALLNZ",
	CALLP:         "CALLP",
	CALLNZBIT:     "CALLNZBIT",
	LABEL:         "LABEL",
	JUMP:          "JUMP",
	BLOCK:         "BLOCK",
	SWITCH:        "SWITCH",
	CASE:          "CASE",
	DEFAULT:       "DEFAULT",
	ENDSWITCH:     "ENDSWITCH",
}

var cmpNames = [...]string{
	CmpNone: "",
	CmpEQ:   "eq",
	CmpNE:   "ne",
	CmpLT:   "lt",
	CmpLE:   "le",
	CmpGT:   "gt",
	CmpGE:   "ge",
}

func (op Opcode) String() string {
	if op < 0 || int(op) >= len(opNames) || opNames[op] == "" {
		return "OP?"
	}

	return opNames[op]
}

// IsFlow reports whether op is a control-flow marker rather than a plain operation.
func (op Opcode) IsFlow() bool {
	return op > firstMarker && op < numOpcodes
}

// ClosesBlock reports whether op ends the construct enclosing it.
// Such markers are left for the construct's builder to consume.
func (op Opcode) ClosesBlock() bool {
	switch op {
	case ELSE, ENDIF,
		ENDLOOP, ENDREP, GLSLENDLOOP,
		CASE, DEFAULT, ENDSWITCH,
		LABEL:
		return true
	}

	return false
}

func (c Cmp) String() string {
	if c < 0 || int(c) >= len(cmpNames) {
		return "cmp?"
	}

	return cmpNames[c]
}

// Eval applies the comparison to two known values.
func (c Cmp) Eval(a, b float64) bool {
	switch c {
	case CmpEQ:
		return a == b
	case CmpNE:
		return a != b
	case CmpLT:
		return a < b
	case CmpLE:
		return a <= b
	case CmpGT:
		return a > b
	case CmpGE:
		return a >= b
	}

	panic(c)
}

// Same is the result of comparing a value with itself.
func (c Cmp) Same() bool {
	switch c {
	case CmpEQ, CmpLE, CmpGE:
		return true
	case CmpNE, CmpLT, CmpGT:
		return false
	}

	panic(c)
}

func (o Operand) IsConst() bool {
	switch o.Type {
	case RegConst, RegInt, RegBool:
		return true
	}

	return false
}

// AsPredicate converts a predicate register operand.
func (o Operand) AsPredicate() Predicate {
	return Predicate{Num: o.Num, Chan: o.Chan, Neg: o.Neg}
}

// Effects returns the global side effects of a plain instruction.
func (in *Instruction) Effects() (f Flag) {
	switch in.Op {
	case TEXKILL:
		f |= KillsPixels
	case TEXLD:
		f |= SamplesTexture
	}

	for _, d := range in.Dst {
		if d.Type == RegDepth {
			f |= WritesDepth
		}
	}

	return f
}

// Value returns the compile-time value of an operand if it has one:
// an immediate or a DEF-defined constant register without relative addressing.
func (p *Program) Value(o Operand) (v float64, ok bool) {
	switch {
	case o.Type == RegImm:
		v = o.Imm
	case o.IsConst() && !o.Rel:
		c, found := p.Consts[ConstKey{Type: o.Type, Num: o.Num}]
		if !found {
			return 0, false
		}

		v = c[o.Chan]
	default:
		return 0, false
	}

	if o.Abs && v < 0 {
		v = -v
	}

	if o.Neg {
		v = -v
	}

	return v, true
}

// CollectConsts fills Consts from the DEF directives of the program.
func (p *Program) CollectConsts() {
	if p.Consts == nil {
		p.Consts = make(map[ConstKey][4]float64)
	}

	for _, in := range p.Code {
		switch in.Op {
		case DEF, DEFI, DEFB:
		default:
			continue
		}

		if len(in.Dst) != 1 {
			continue
		}

		var v [4]float64

		for i, s := range in.Src {
			if i == len(v) {
				break
			}

			v[i] = s.Imm
		}

		p.Consts[ConstKey{Type: in.Dst[0].Type, Num: in.Dst[0].Num}] = v
	}
}

// Labels indexes the LABEL markers of the program.
func (p *Program) Labels() map[Label]int {
	m := make(map[Label]int)

	for i, in := range p.Code {
		if in.Op != LABEL {
			continue
		}

		if _, ok := m[in.Label]; ok {
			continue
		}

		m[in.Label] = i
	}

	return m
}

func (p Predicate) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "p", p.Num)
	b = e.AppendKeyInt(b, "chan", p.Chan)
	b = e.AppendKeyInt(b, "neg", b2i(p.Neg))

	return b
}

func b2i(x bool) int {
	if x {
		return 1
	}

	return 0
}
