package convert

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

type (
	// counter is the state of a count-controlled loop.
	counter struct {
		src input.Operand // i# holding count, start and step
		cnt input.Operand
		idx input.Operand
	}
)

var loopEnd = map[input.Opcode]input.Opcode{
	input.LOOP:     input.ENDLOOP,
	input.REP:      input.ENDREP,
	input.GLSLLOOP: input.GLSLENDLOOP,
}

// convertLoop builds LOOP, REP and GLSLLOOP with their matching end markers.
//
//	cur -> head | exit
//	head .. body .. -> tail
//	tail -> head | exit
//
// BREAK targets exit, CONTINUE targets tail.
func (b *Builder) convertLoop(ctx context.Context, fs *funcState, tg targets, cur cfg.BlockID, in *input.Instruction) (_ cfg.BlockID, err error) {
	f := fs.f

	head, tail, exit := cfg.None, cfg.None, cfg.None

	var cnt *counter

	if cur != cfg.None {
		exit = f.NewBlock()
		tail = f.NewBlock()

		var res CondResult

		switch in.Op {
		case input.LOOP:
			cnt, err = b.loopProlog(fs, cur, in)
			if err != nil {
				return cfg.None, err
			}

			res, err = b.eval(ctx, fs, cur, cnt.test(), b.pos-1)
		case input.REP:
			var c Condition

			c, _, err = conditionOf(in)
			if err != nil {
				return cfg.None, err
			}

			res, err = b.eval(ctx, fs, cur, c, b.pos-1)
		case input.GLSLLOOP:
			res = CondResult{Kind: StaticTrue}
		}

		if err != nil {
			return cfg.None, err
		}

		if res.Kind != StaticFalse {
			head = f.NewBlock()
		}

		b.branch(f, cur, res, head, exit)

		tlog.SpanFromContext(ctx).V("loop").Printw("loop", "func", f.Name(), "op", in.Op, "line", in.Line, "head", head, "tail", tail, "exit", exit, "entry", res.Kind)
	}

	if cnt != nil {
		b.index = append(b.index, cnt.idx.Num)
	}

	end, err := b.convert(ctx, fs, targets{brk: exit, cont: tail, canBreak: true, canCont: true}, head)
	if err != nil {
		return cfg.None, err
	}

	if cnt != nil {
		b.index = b.index[:len(b.index)-1]
	}

	closer, err := b.expect(in, loopEnd[in.Op])
	if err != nil {
		return cfg.None, err
	}

	if cur == cfg.None {
		return cfg.None, nil
	}

	if end != cfg.None {
		f.SetJump(end, tail)
	}

	switch {
	case !f.Referenced(tail):
		err = f.Free(tail)
	case head == cfg.None:
		// entered only through a label in the skipped body
		f.SetJump(tail, exit)
	default:
		err = b.loopRepeat(ctx, fs, in, closer, cnt, head, tail, exit)
	}

	if err != nil {
		return cfg.None, err
	}

	if !f.Referenced(exit) {
		return cfg.None, f.Free(exit)
	}

	return exit, nil
}

// loopProlog loads the iteration count and the start index.
func (b *Builder) loopProlog(fs *funcState, cur cfg.BlockID, in *input.Instruction) (*counter, error) {
	if len(in.Src) == 0 || in.Src[0].Type != input.RegInt {
		return nil, malformed(in, "integer constant expected")
	}

	src := in.Src[0]
	src.Chan = 0

	cnt := &counter{
		src: src,
		cnt: input.Operand{Type: input.RegTemp, Num: b.newTemp()},
		idx: input.Operand{Type: input.RegIndex, Num: b.newIndex()},
	}

	start := src
	start.Chan = 1

	err := b.emit(fs, cur, synth(input.MOV, in.Line, cnt.cnt, src))
	if err != nil {
		return nil, err
	}

	err = b.emit(fs, cur, synth(input.MOV, in.Line, cnt.idx, start))
	if err != nil {
		return nil, err
	}

	return cnt, nil
}

// loopRepeat lowers the test at the tail deciding whether to go around again.
func (b *Builder) loopRepeat(ctx context.Context, fs *funcState, in, closer *input.Instruction, cnt *counter, head, tail, exit cfg.BlockID) (err error) {
	f := fs.f
	at := b.pos - 1

	switch in.Op {
	case input.LOOP:
		err = b.emit(fs, tail, synth(input.SUB, closer.Line, cnt.cnt, cnt.cnt, imm(1)))
		if err != nil {
			return err
		}

		res, err := b.eval(ctx, fs, tail, cnt.test(), at)
		if err != nil {
			return err
		}

		step := f.NewBlock()

		inc := cnt.src
		inc.Chan = 2

		err = b.emit(fs, step, synth(input.ADD, closer.Line, cnt.idx, cnt.idx, inc))
		if err != nil {
			return err
		}

		f.SetJump(step, head)
		b.branch(f, tail, res, step, exit)

		return nil
	case input.REP:
		c, _, err := conditionOf(in)
		if err != nil {
			return err
		}

		res, err := b.eval(ctx, fs, tail, c, at)
		if err != nil {
			return err
		}

		b.branch(f, tail, res, head, exit)

		return nil
	}

	c, ok, err := conditionOf(closer)
	if err != nil {
		return err
	}

	if !ok {
		f.SetJump(tail, head)
		return nil
	}

	res, err := b.eval(ctx, fs, tail, c, at)
	if err != nil {
		return err
	}

	b.branch(f, tail, res, head, exit)

	return nil
}

func (c *counter) test() Condition {
	return Condition{Kind: CondCompare, Cmp: input.CmpGT, A: c.cnt, B: imm(0)}
}

func synth(op input.Opcode, line int, dst input.Operand, src ...input.Operand) *input.Instruction {
	return &input.Instruction{
		Op:   op,
		Dst:  []input.Operand{dst},
		Src:  src,
		Line: line,

		Synthetic: true,
	}
}
