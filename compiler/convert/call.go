package convert

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

// convertCall builds the callee if needed and emits the call.
// Calls in dead code still build the callee so its errors are reported.
func (b *Builder) convertCall(ctx context.Context, fs *funcState, cur cfg.BlockID, in *input.Instruction) (cfg.BlockID, error) {
	callee, err := b.getOrBuild(ctx, in.Label, in.Line)
	if err != nil {
		return cfg.None, errors.Wrap(err, "label %d", in.Label)
	}

	if cur == cfg.None {
		return cfg.None, nil
	}

	c, ok, err := conditionOf(in)
	if err != nil {
		return cfg.None, err
	}

	if !ok {
		return cur, b.emitCall(fs, cur, callee, in)
	}

	res, err := b.eval(ctx, fs, cur, c, b.pos-1)
	if err != nil {
		return cfg.None, err
	}

	switch res.Kind {
	case StaticTrue:
		return cur, b.emitCall(fs, cur, callee, in)
	case StaticFalse:
		return cur, nil
	}

	f := fs.f

	site := f.NewBlock()
	next := f.NewBlock()

	b.branch(f, cur, res, site, next)

	err = b.emitCall(fs, site, callee, in)
	if err != nil {
		return cfg.None, err
	}

	f.SetJump(site, next)

	return next, nil
}

// emitCall appends the call to blk together with the register
// saves the callee needs.
func (b *Builder) emitCall(fs *funcState, blk cfg.BlockID, callee *cfg.Func, in *input.Instruction) (err error) {
	f := fs.f

	addCallee(f, callee)

	var pre, post []*input.Instruction

	if callee.Depth > 0 {
		lr := input.Operand{Type: input.RegLink}
		save := input.Operand{Type: input.RegTemp, Num: b.newTemp()}

		pre = append(pre, synth(input.MOV, in.Line, save, lr))
		post = append(post, synth(input.MOV, in.Line, lr, save))
	}

	idx := b.CurrentIndex()
	if idx < 0 && callee.UsesIndex {
		idx = b.activeIndex(fs)
	}

	if idx >= 0 && (callee.Depth > 0 || callee.UsesIndex) {
		if callee.IndexSlot < 0 {
			callee.IndexSlot = b.newIndex()
		}

		cur := input.Operand{Type: input.RegIndex, Num: idx}
		slot := input.Operand{Type: input.RegIndex, Num: callee.IndexSlot}

		pre = append(pre, synth(input.MOV, in.Line, slot, cur))
		post = append([]*input.Instruction{synth(input.MOV, in.Line, cur, slot)}, post...)
	}

	for _, x := range pre {
		err = b.emit(fs, blk, x)
		if err != nil {
			return err
		}
	}

	bl := f.Block(blk)
	bl.Code = append(bl.Code, &cfg.Call{Func: callee})

	callee.CallSites = append(callee.CallSites, cfg.CallSite{Caller: f, Block: blk})

	for _, x := range post {
		err = b.emit(fs, blk, x)
		if err != nil {
			return err
		}
	}

	return nil
}

// getOrBuild returns the function starting at LABEL l, building it on first use.
func (b *Builder) getOrBuild(ctx context.Context, l input.Label, line int) (f *cfg.Func, err error) {
	if f, ok := b.funcs[l]; ok {
		switch f.Status {
		case cfg.Done:
			return f, nil
		case cfg.Building:
			return nil, RecursionError{Label: l}
		}
	}

	at, ok := b.labels[l]
	if !ok {
		return nil, UndefinedLabelError{Label: l, Line: line}
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "cfg: build function", "label", l, "line", b.prog.Code[at].Line, "nesting", b.depth)
	defer tr.Finish("err", &err)

	f = cfg.NewFunc(l, false)
	f.Status = cfg.Building

	b.funcs[l] = f

	pos, index := b.pos, b.index

	b.pos = at + 1
	b.index = nil
	b.depth++

	defer func() {
		b.pos, b.index = pos, index
		b.depth--
	}()

	fs := &funcState{f: f}

	end, err := b.convert(ctx, fs, targets{brk: cfg.None, cont: cfg.None}, f.Entry)
	if err != nil {
		return nil, err
	}

	if op := b.peek(); op != opEnd && op != input.LABEL {
		return nil, malformed(b.prog.Code[b.pos], "no matching opener")
	}

	if end != cfg.None {
		return nil, malformed(b.prog.Code[at], "function does not end in RET")
	}

	err = b.finish(ctx, fs)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func addCallee(f, callee *cfg.Func) {
	for _, c := range f.Callees {
		if c == callee {
			return
		}
	}

	f.Callees = append(f.Callees, callee)
}
