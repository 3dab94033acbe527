package input

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

type (
	layout struct {
		dst    int
		src    int
		srcMax int

		label bool
		cmp   bool
	}
)

var layouts = map[Opcode]layout{
	NOP:     {},
	MOV:     {dst: 1, src: 1},
	ADD:     {dst: 1, src: 2},
	SUB:     {dst: 1, src: 2},
	MUL:     {dst: 1, src: 2},
	MAD:     {dst: 1, src: 3},
	MIN:     {dst: 1, src: 2},
	MAX:     {dst: 1, src: 2},
	FRC:     {dst: 1, src: 1},
	RCP:     {dst: 1, src: 1},
	DP3:     {dst: 1, src: 2},
	DP4:     {dst: 1, src: 2},
	TEXLD:   {dst: 1, src: 2},
	TEXKILL: {src: 1},
	SETP:    {dst: 1, src: 2, cmp: true},
	DEF:     {dst: 1, src: 1, srcMax: 4},
	DEFI:    {dst: 1, src: 1, srcMax: 4},
	DEFB:    {dst: 1, src: 1},

	IF:      {src: 1},
	IFC:     {src: 2, cmp: true},
	IFP:     {src: 1},
	IFNZBIT: {src: 1},
	ELSE:    {},
	ENDIF:   {},

	LOOP:        {src: 1},
	ENDLOOP:     {},
	REP:         {src: 2, cmp: true},
	ENDREP:      {},
	GLSLLOOP:    {},
	GLSLENDLOOP: {srcMax: 1},

	BREAK:         {},
	BREAKC:        {src: 2, cmp: true},
	BREAKP:        {src: 1},
	BREAKNZBIT:    {src: 1},
	CONTINUE:      {},
	CONTINUEC:     {src: 2, cmp: true},
	CONTINUEP:     {src: 1},
	CONTINUENZBIT: {src: 1},
	RET:           {},

	CALL:      {label: true},
	CALLNZ:    {label: true, src: 1},
	CALLP:     {label: true, src: 1},
	CALLNZBIT: {label: true, src: 1},
	LABEL:     {label: true},
	JUMP:      {label: true},
	BLOCK:     {label: true},

	SWITCH:    {src: 1},
	CASE:      {src: 1},
	DEFAULT:   {},
	ENDSWITCH: {},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opNames))

	for op, name := range opNames {
		if name != "" {
			m[name] = Opcode(op)
		}
	}

	return m
}()

func ParseFile(ctx context.Context, name string) (*Program, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Parse(ctx, text)
}

// Parse reads a program in the one-instruction-per-line text form.
func Parse(ctx context.Context, text []byte) (p *Program, err error) {
	tr := tlog.SpanFromContext(ctx)

	p = &Program{}

	for line := 1; len(text) != 0; line++ {
		var l []byte

		if i := bytes.IndexByte(text, '\n'); i >= 0 {
			l, text = text[:i], text[i+1:]
		} else {
			l, text = text, nil
		}

		in, err := ParseInstruction(string(l))
		if err != nil {
			return nil, errors.Wrap(err, "line %d", line)
		}

		if in == nil {
			continue
		}

		in.Line = line
		p.Code = append(p.Code, in)
	}

	p.CollectConsts()

	if tr.If("dump_program") {
		tr.Printw("program", "instructions", len(p.Code), "consts", len(p.Consts))
	}

	return p, nil
}

// ParseInstruction parses a single line. Empty and comment-only lines give nil.
func ParseInstruction(s string) (in *Instruction, err error) {
	if i := strings.IndexAny(s, "#;"); i >= 0 {
		s = s[:i]
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	in = &Instruction{}

	if s[0] == '(' {
		e := strings.IndexByte(s, ')')
		if e < 0 {
			return nil, errors.New("unclosed predicate")
		}

		o, err := parseOperand(strings.TrimSpace(s[1:e]))
		if err != nil {
			return nil, errors.Wrap(err, "predicate")
		}

		if o.Type != RegPred {
			return nil, errors.New("predicate expected, got %v", o)
		}

		pr := o.AsPredicate()
		in.Pred = &pr

		s = strings.TrimSpace(s[e+1:])
	}

	word, rest := s, ""

	if i := strings.IndexAny(s, " \t"); i >= 0 {
		word, rest = s[:i], strings.TrimSpace(s[i+1:])
	}

	name, cmp, _ := strings.Cut(word, ".")

	op, ok := opByName[strings.ToUpper(name)]
	if !ok {
		return nil, errors.New("unknown opcode: %q", name)
	}

	in.Op = op
	l := layouts[op]

	switch {
	case l.cmp && cmp == "":
		return nil, errors.New("%v: comparison expected", op)
	case !l.cmp && cmp != "":
		return nil, errors.New("%v: unexpected comparison %q", op, cmp)
	case l.cmp:
		in.Cmp, err = parseCmp(cmp)
		if err != nil {
			return nil, errors.Wrap(err, "%v", op)
		}
	}

	var args []string
	if rest != "" {
		args = strings.Split(rest, ",")
	}

	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}

	if l.label {
		if len(args) == 0 {
			return nil, errors.New("%v: label expected", op)
		}

		x, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "%v: label", op)
		}

		in.Label = Label(x)
		args = args[1:]
	}

	srcMax := l.srcMax
	if srcMax < l.src {
		srcMax = l.src
	}

	if n := len(args); n < l.dst+l.src || n > l.dst+srcMax {
		return nil, errors.New("%v: bad number of operands: %d", op, n)
	}

	for i, a := range args {
		o, err := parseOperand(a)
		if err != nil {
			return nil, errors.Wrap(err, "%v: operand %d", op, i)
		}

		if i < l.dst {
			in.Dst = append(in.Dst, o)
		} else {
			in.Src = append(in.Src, o)
		}
	}

	return in, nil
}

func parseCmp(s string) (Cmp, error) {
	for c, name := range cmpNames {
		if name != "" && strings.EqualFold(name, s) {
			return Cmp(c), nil
		}
	}

	return CmpNone, errors.New("unknown comparison: %q", s)
}

func parseOperand(s string) (o Operand, err error) {
	if s == "" {
		return o, errors.New("empty operand")
	}

	if c := s[0]; c >= '0' && c <= '9' || c == '.' || c == '-' && len(s) > 1 && (s[1] >= '0' && s[1] <= '9' || s[1] == '.') {
		o.Type = RegImm
		o.Imm, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return o, errors.Wrap(err, "immediate")
		}

		return o, nil
	}

	switch s[0] {
	case '-', '!':
		o.Neg = true
		s = s[1:]
	}

	if strings.HasPrefix(s, "abs(") && strings.HasSuffix(s, ")") {
		o.Abs = true
		s = s[4 : len(s)-1]
	}

	name, ch, hasChan := strings.Cut(s, ".")

	if hasChan {
		if len(ch) != 1 {
			return o, errors.New("bad channel: %q", ch)
		}

		o.Chan = strings.IndexByte(chans, ch[0]|0x20)
		if o.Chan < 0 {
			return o, errors.New("bad channel: %q", ch)
		}
	}

	switch name {
	case "oDepth":
		o.Type = RegDepth
		return o, nil
	case "vFace":
		o.Type = RegFrontFace
		return o, nil
	case "lr":
		o.Type = RegLink
		return o, nil
	case "aL":
		o.Type = RegIndex
		o.Num = -1
		return o, nil
	}

	if i := strings.IndexByte(name, '['); i >= 0 {
		if !strings.HasSuffix(name, "]") {
			return o, errors.New("unclosed index: %q", name)
		}

		idx := name[i+1 : len(name)-1]
		name = name[:i]

		reg, off, ok := strings.Cut(idx, "+")
		if !ok {
			off = "0"
		}

		o.Rel = true

		switch {
		case reg == "aL":
			o.Index = -1
		case strings.HasPrefix(reg, "a"):
			o.Index, err = strconv.Atoi(reg[1:])
			if err != nil {
				return o, errors.Wrap(err, "index register")
			}
		default:
			return o, errors.New("index register expected, got %q", reg)
		}

		o.Num, err = strconv.Atoi(off)
		if err != nil {
			return o, errors.Wrap(err, "index offset")
		}

		o.Type, err = parseRegType(name)
		if err != nil {
			return o, err
		}

		if !o.IsConst() {
			return o, errors.New("relative addressing of %q", name)
		}

		return o, nil
	}

	i := 0
	for i < len(name) && (name[i] < '0' || name[i] > '9') {
		i++
	}

	o.Type, err = parseRegType(name[:i])
	if err != nil {
		return o, err
	}

	o.Num, err = strconv.Atoi(name[i:])
	if err != nil {
		return o, errors.Wrap(err, "register number")
	}

	if o.Type == RegPred && o.Num >= NumPredicates {
		return o, errors.New("no such predicate: p%d", o.Num)
	}

	return o, nil
}

func parseRegType(s string) (RegType, error) {
	switch s {
	case "r":
		return RegTemp, nil
	case "c":
		return RegConst, nil
	case "i":
		return RegInt, nil
	case "b":
		return RegBool, nil
	case "p":
		return RegPred, nil
	case "v":
		return RegInput, nil
	case "o":
		return RegOutput, nil
	case "s":
		return RegSampler, nil
	case "a":
		return RegIndex, nil
	}

	return 0, errors.New("unknown register: %q", s)
}
