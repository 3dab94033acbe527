package convert

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

// convert consumes instructions into cur until a marker closing the
// enclosing construct or the end of the program. That marker is left in place.
// cur is cfg.None when the code is unreachable. Such code is not lowered
// but its side effects are still recorded.
func (b *Builder) convert(ctx context.Context, fs *funcState, tg targets, cur cfg.BlockID) (_ cfg.BlockID, err error) {
	for b.pos < len(b.prog.Code) {
		in := b.prog.Code[b.pos]

		if in.Op.ClosesBlock() {
			return cur, nil
		}

		b.pos++

		switch in.Op {
		case input.IF, input.IFC, input.IFP, input.IFNZBIT:
			cur, err = b.convertIf(ctx, fs, tg, cur, in)
		case input.LOOP, input.REP, input.GLSLLOOP:
			cur, err = b.convertLoop(ctx, fs, tg, cur, in)
		case input.SWITCH:
			cur, err = b.convertSwitch(ctx, fs, tg, cur, in)
		case input.CALL, input.CALLNZ, input.CALLP, input.CALLNZBIT:
			cur, err = b.convertCall(ctx, fs, cur, in)
		case input.BREAK, input.BREAKC, input.BREAKP, input.BREAKNZBIT:
			if !tg.canBreak {
				return cfg.None, malformed(in, "outside of loop or switch")
			}

			cur, err = b.convertBranch(ctx, fs, cur, in, tg.brk)
		case input.CONTINUE, input.CONTINUEC, input.CONTINUEP, input.CONTINUENZBIT:
			if !tg.canCont {
				return cfg.None, malformed(in, "outside of loop")
			}

			cur, err = b.convertBranch(ctx, fs, cur, in, tg.cont)
		case input.RET:
			cur, err = b.convertBranch(ctx, fs, cur, in, fs.f.Exit)
		case input.JUMP:
			cur, err = b.convertJump(ctx, fs, cur, in)
		case input.BLOCK:
			cur, err = b.convertLabel(ctx, fs, cur, in)
		case input.DEF, input.DEFI, input.DEFB:
			// collected into Program.Consts before the build
		default:
			if in.Op.IsFlow() {
				return cfg.None, errors.New("internal: unhandled marker %v", in.Op)
			}

			err = b.convertPlain(fs, cur, in)
		}

		if err != nil {
			return cfg.None, err
		}
	}

	return cur, nil
}

func (b *Builder) convertPlain(fs *funcState, cur cfg.BlockID, in *input.Instruction) error {
	b.record(in.Effects())

	if cur == cfg.None {
		return nil
	}

	return b.lower(fs, cur, b.bindIndex(fs, in))
}

// convertBranch handles BREAK, CONTINUE and RET in all their predicated forms.
func (b *Builder) convertBranch(ctx context.Context, fs *funcState, cur cfg.BlockID, in *input.Instruction, to cfg.BlockID) (cfg.BlockID, error) {
	c, ok, err := conditionOf(in)
	if err != nil {
		return cfg.None, err
	}

	if cur == cfg.None {
		return cfg.None, nil
	}

	if to == cfg.None {
		return cfg.None, malformed(in, "branch out of a construct entered only through a label")
	}

	f := fs.f

	if !ok {
		f.SetJump(cur, to)
		return cfg.None, nil
	}

	res, err := b.eval(ctx, fs, cur, c, b.pos-1)
	if err != nil {
		return cfg.None, err
	}

	switch res.Kind {
	case StaticTrue:
		f.SetJump(cur, to)
		return cfg.None, nil
	case StaticFalse:
		return cur, nil
	}

	next := f.NewBlock()

	b.branch(f, cur, res, to, next)

	return next, nil
}

func (b *Builder) convertJump(ctx context.Context, fs *funcState, cur cfg.BlockID, in *input.Instruction) (cfg.BlockID, error) {
	if in.Pred != nil {
		return cfg.None, malformed(in, "predicated jump")
	}

	if cur == cfg.None {
		// unreachable, only the label is checked
		fs.jumps = append(fs.jumps, UnresolvedJump{Block: cfg.None, Label: in.Label, Line: in.Line})

		return cfg.None, nil
	}

	if to, ok := fs.f.FindLabel(in.Label); ok {
		fs.f.SetJump(cur, to)
		return cfg.None, nil
	}

	fs.jumps = append(fs.jumps, UnresolvedJump{Block: cur, Label: in.Label, Line: in.Line})

	tlog.SpanFromContext(ctx).V("jumps").Printw("forward jump", "func", fs.f.Name(), "block", cur, "label", in.Label)

	return cfg.None, nil
}

// convertLabel starts a labeled block the current one falls into.
// Code after it is reachable again through jumps.
func (b *Builder) convertLabel(ctx context.Context, fs *funcState, cur cfg.BlockID, in *input.Instruction) (cfg.BlockID, error) {
	if _, ok := fs.f.FindLabel(in.Label); ok {
		return cfg.None, malformed(in, "label defined twice")
	}

	next := fs.f.NewLabeledBlock(in.Label)

	if cur != cfg.None {
		fs.f.SetJump(cur, next)
	}

	return next, nil
}

// eval decides c for a branch out of block cur and lowers
// the comparison the decision needs, if any.
func (b *Builder) eval(ctx context.Context, fs *funcState, cur cfg.BlockID, c Condition, at int) (CondResult, error) {
	res, setp, err := Evaluate(b.prog, at, c, b.ScratchPred)
	if err != nil {
		return res, err
	}

	tlog.SpanFromContext(ctx).V("cond").Printw("condition", "func", fs.f.Name(), "block", cur, "at", at, "kind", c.Kind, "res", res, "synth", setp != nil)

	if setp == nil {
		return res, nil
	}

	if at >= 0 && at < len(b.prog.Code) {
		setp.Line = b.prog.Code[at].Line
	}

	for i := range setp.Src {
		setp.Src[i] = b.bindOperand(fs, setp.Src[i])
	}

	return res, b.emit(fs, cur, setp)
}

// branch terminates from according to res. Negated predicates swap the targets.
func (b *Builder) branch(f *cfg.Func, from cfg.BlockID, res CondResult, then, els cfg.BlockID) {
	switch res.Kind {
	case StaticTrue:
		f.SetJump(from, then)
	case StaticFalse:
		f.SetJump(from, els)
	default:
		p := res.Pred

		if p.Neg {
			p.Neg = false
			then, els = els, then
		}

		f.SetCond(from, p, then, els, res.Static)
	}
}

// bindIndex points relative operands at the active loop index register.
func (b *Builder) bindIndex(fs *funcState, in *input.Instruction) *input.Instruction {
	var cp *input.Instruction

	for k, ops := range [][]input.Operand{in.Dst, in.Src} {
		for i, o := range ops {
			x := b.bindOperand(fs, o)
			if x == o {
				continue
			}

			if cp == nil {
				c := *in
				c.Dst = append([]input.Operand(nil), in.Dst...)
				c.Src = append([]input.Operand(nil), in.Src...)
				cp = &c
			}

			if k == 0 {
				cp.Dst[i] = x
			} else {
				cp.Src[i] = x
			}
		}
	}

	if cp == nil {
		return in
	}

	return cp
}

func (b *Builder) bindOperand(fs *funcState, o input.Operand) input.Operand {
	switch {
	case o.Rel && o.Index < 0:
		o.Index = b.activeIndex(fs)
	case o.Type == input.RegIndex && o.Num < 0:
		o.Num = b.activeIndex(fs)
	}

	return o
}

// activeIndex is the innermost loop index register. Outside of loops
// it is the function's slot receiving the caller's index.
func (b *Builder) activeIndex(fs *funcState) int {
	if x := b.CurrentIndex(); x >= 0 {
		return x
	}

	f := fs.f

	if f.IndexSlot < 0 {
		f.IndexSlot = b.newIndex()
	}

	f.UsesIndex = true

	return f.IndexSlot
}

// finish resolves forward jumps, drops unreachable blocks and marks the function done.
func (b *Builder) finish(ctx context.Context, fs *funcState) error {
	f := fs.f

	for _, j := range fs.jumps {
		to, ok := f.FindLabel(j.Label)
		if !ok {
			return UndefinedLabelError{Label: j.Label, Line: j.Line}
		}

		if j.Block != cfg.None {
			f.SetJump(j.Block, to)
		}
	}

	fs.jumps = nil

	f.Prune(ctx)

	callees := f.Callees[:0]
	f.Depth = 0

	for _, c := range f.Callees {
		if !dropDeadSites(f, c) {
			continue
		}

		callees = append(callees, c)

		if c.Depth+1 > f.Depth {
			f.Depth = c.Depth + 1
		}
	}

	f.Callees = callees

	err := f.Verify()
	if err != nil {
		return err
	}

	f.Status = cfg.Done

	return nil
}

// dropDeadSites forgets calls from pruned blocks of f.
// It reports whether f still calls c.
func dropDeadSites(f, c *cfg.Func) (calls bool) {
	sites := c.CallSites[:0]

	for _, s := range c.CallSites {
		if s.Caller == f {
			if f.Block(s.Block).Freed {
				continue
			}

			calls = true
		}

		sites = append(sites, s)
	}

	c.CallSites = sites

	return calls
}

func (j UnresolvedJump) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "block", int(j.Block))
	b = e.AppendKeyInt(b, "label", int(j.Label))
	b = e.AppendKeyInt(b, "line", j.Line)

	return b
}
