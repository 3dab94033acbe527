package input

import (
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
)

var regPrefix = [...]string{
	RegTemp:      "r",
	RegConst:     "c",
	RegInt:       "i",
	RegBool:      "b",
	RegPred:      "p",
	RegInput:     "v",
	RegOutput:    "o",
	RegSampler:   "s",
	RegDepth:     "oDepth",
	RegFrontFace: "vFace",
	RegIndex:     "a",
	RegLink:      "lr",
	RegImm:       "",
}

const chans = "xyzw"

func (o Operand) String() string {
	return string(o.Append(nil))
}

func (o Operand) Append(b []byte) []byte {
	return o.appendReg(b, true)
}

func (o Operand) appendReg(b []byte, ch bool) []byte {
	if o.Type == RegImm {
		return strconv.AppendFloat(b, o.Imm, 'g', -1, 64)
	}

	if o.Neg {
		if o.Type == RegPred {
			b = append(b, '!')
		} else {
			b = append(b, '-')
		}
	}

	if o.Abs {
		b = append(b, "abs("...)
	}

	switch {
	case o.Rel && o.Index < 0:
		b = hfmt.Appendf(b, "%s[aL+%d]", regPrefix[o.Type], o.Num)
	case o.Rel:
		b = hfmt.Appendf(b, "%s[a%d+%d]", regPrefix[o.Type], o.Index, o.Num)
	case o.Type == RegIndex && o.Num < 0:
		b = append(b, "aL"...)
	case o.Type == RegDepth, o.Type == RegFrontFace, o.Type == RegLink:
		b = append(b, regPrefix[o.Type]...)
	default:
		b = hfmt.Appendf(b, "%s%d", regPrefix[o.Type], o.Num)
	}

	switch o.Type {
	case RegDepth, RegFrontFace, RegLink, RegIndex, RegSampler:
	default:
		if ch {
			b = append(b, '.', chans[o.Chan])
		}
	}

	if o.Abs {
		b = append(b, ')')
	}

	return b
}

func (p Predicate) Append(b []byte) []byte {
	if p.Neg {
		b = append(b, '!')
	}

	return hfmt.Appendf(b, "p%d.%c", p.Num, chans[p.Chan])
}

func (in *Instruction) String() string {
	return string(in.Append(nil))
}

// Append formats the instruction in the same syntax Parse accepts.
func (in *Instruction) Append(b []byte) []byte {
	if in.Pred != nil {
		b = append(b, '(')
		b = in.Pred.Append(b)
		b = append(b, ") "...)
	}

	b = append(b, in.Op.String()...)

	if in.Cmp != CmpNone {
		b = append(b, '.')
		b = append(b, in.Cmp.String()...)
	}

	sep := " "

	switch in.Op {
	case LABEL, CALL, CALLNZ, CALLP, CALLNZBIT, JUMP, BLOCK:
		b = hfmt.Appendf(b, " %d", in.Label)
		sep = ", "
	}

	// DEF destinations name the whole vector
	def := in.Op == DEF || in.Op == DEFI || in.Op == DEFB

	for k, ops := range [][]Operand{in.Dst, in.Src} {
		for _, o := range ops {
			b = append(b, sep...)
			b = o.appendReg(b, !(def && k == 0))
			sep = ", "
		}
	}

	return b
}

// Format prints the program one instruction per line.
func (p *Program) Format(b []byte) []byte {
	depth := 0

	for _, in := range p.Code {
		switch in.Op {
		case ELSE, ENDIF, ENDLOOP, ENDREP, GLSLENDLOOP, CASE, DEFAULT, ENDSWITCH:
			depth--
		case LABEL:
			depth = 0
		}

		if in.Op == LABEL {
			b = append(b, '\n')
		}

		for i := 0; i < depth; i++ {
			b = append(b, '\t')
		}

		b = in.Append(b)
		b = append(b, '\n')

		switch in.Op {
		case IF, IFC, IFP, IFNZBIT, ELSE, LOOP, REP, GLSLLOOP, SWITCH, CASE, DEFAULT:
			depth++
		}

		if depth < 0 {
			depth = 0
		}
	}

	return b
}
