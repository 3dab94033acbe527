package cfg

import (
	"github.com/nikandfor/hacked/hfmt"
)

type appender interface {
	Append(b []byte) []byte
}

// Format prints live blocks of the function with their terminators.
func (f *Func) Format(b []byte) []byte {
	b = hfmt.Appendf(b, "func %s depth %d\n", f.Name(), f.Depth)

	for _, bl := range f.Live() {
		b = hfmt.Appendf(b, "b%d:", bl.ID)

		switch bl.ID {
		case f.Entry:
			b = append(b, " entry"...)
		case f.Exit:
			b = append(b, " exit"...)
		}

		if bl.HasLabel {
			b = hfmt.Appendf(b, " label %d", bl.Label)
		}

		b = append(b, '\n')

		for _, x := range bl.Code {
			b = append(b, '\t')

			switch x := x.(type) {
			case *Call:
				b = hfmt.Appendf(b, "call %s", x.Func.Name())
			case appender:
				b = x.Append(b)
			default:
				b = hfmt.Appendf(b, "%v", x)
			}

			b = append(b, '\n')
		}

		b = append(b, '\t')
		b = FormatTerm(b, bl.Term)
		b = append(b, '\n')
	}

	return b
}

func FormatTerm(b []byte, t Term) []byte {
	switch t := t.(type) {
	case nil:
		return append(b, "<open>"...)
	case Jump:
		return hfmt.Appendf(b, "-> b%d", t.To)
	case Cond:
		b = append(b, "if "...)
		b = t.Pred.Append(b)
		b = hfmt.Appendf(b, " -> b%d else b%d", t.Then, t.Else)

		if t.Static {
			b = append(b, " static"...)
		}

		return b
	case Switch:
		b = append(b, "switch "...)
		b = t.Sel.Append(b)
		b = append(b, " ["...)

		for i, c := range t.Cases {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = hfmt.Appendf(b, "%d: b%d", c.Value, c.Target)
		}

		return hfmt.Appendf(b, "] default b%d", t.Default)
	case Return:
		return append(b, "ret"...)
	default:
		return hfmt.Appendf(b, "%v", t)
	}
}
