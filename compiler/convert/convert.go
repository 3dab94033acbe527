// Package convert turns the flat input instruction stream into basic blocks
// with typed edges, one cfg.Func per called label plus the main program.
//
// The build is a single recursive-descent pass. Structured markers are
// matched by the builder of the construct they open; conditions known at
// compile time are folded while blocks are created.
package convert

import (
	"context"
	"sort"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

type (
	// Lowerer turns a non-control-flow instruction into statements of b.
	Lowerer interface {
		Lower(b *cfg.Block, in *input.Instruction) error
	}

	// FlagRecorder receives side effects seen on live and dead paths alike.
	FlagRecorder interface {
		RecordGlobalFlag(f input.Flag)
	}

	Config struct {
		Lowerer  Lowerer
		Recorder FlagRecorder

		// ScratchPred is the predicate register synthesized comparisons write.
		// Values below input.NumPredicates select input.NumPredicates.
		ScratchPred int

		// TempBase is the first temp register used for synthesized values.
		// Zero selects the register after the highest one the program uses.
		TempBase int
	}

	// Copy is the default Lowerer. It appends the instruction as is.
	Copy struct{}

	Result struct {
		Funcs []*cfg.Func
		Flags input.Flag
	}

	Builder struct {
		Config

		prog   *input.Program
		labels map[input.Label]int
		funcs  map[input.Label]*cfg.Func

		pos   int
		depth int

		// index is the stack of loop index registers of active count loops.
		index []int

		nextTemp  int
		nextIndex int

		flags input.Flag
	}

	funcState struct {
		f     *cfg.Func
		jumps []UnresolvedJump
	}

	// UnresolvedJump is a JUMP to a label not seen yet.
	// Block is cfg.None for a jump in unreachable code.
	UnresolvedJump struct {
		Block cfg.BlockID
		Label input.Label
		Line  int
	}

	// targets of BREAK and CONTINUE. The blocks are cfg.None
	// inside dead code, where the markers are still checked.
	targets struct {
		brk  cfg.BlockID
		cont cfg.BlockID

		canBreak bool
		canCont  bool
	}
)

const opEnd input.Opcode = -1

func Build(ctx context.Context, p *input.Program, c Config) (*Result, error) {
	return New(p, c).Build(ctx)
}

func New(p *input.Program, c Config) *Builder {
	if c.Lowerer == nil {
		c.Lowerer = Copy{}
	}

	if c.ScratchPred < input.NumPredicates {
		c.ScratchPred = input.NumPredicates
	}

	if p.Consts == nil {
		p.CollectConsts()
	}

	b := &Builder{
		Config: c,
		prog:   p,
		labels: p.Labels(),
		funcs:  make(map[input.Label]*cfg.Func),
	}

	temps, index := maxRegs(p)

	b.nextTemp = temps + 1
	if c.TempBase > b.nextTemp {
		b.nextTemp = c.TempBase
	}

	b.nextIndex = index + 1

	return b
}

func (b *Builder) Build(ctx context.Context) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "cfg: build program", "instructions", len(b.prog.Code), "labels", len(b.labels))
	defer tr.Finish("err", &err)

	main, err := b.buildMain(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	res = &Result{
		Funcs: []*cfg.Func{main},
		Flags: b.flags,
	}

	labels := make([]input.Label, 0, len(b.funcs))
	for l := range b.funcs {
		labels = append(labels, l)
	}

	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	for _, l := range labels {
		res.Funcs = append(res.Funcs, b.funcs[l])
	}

	if tr.If("dump_cfg") {
		for _, f := range res.Funcs {
			tr.Printw("cfg", "func", f.Name(), "depth", f.Depth, "blocks", len(f.Live()), "dump", string(f.Format(nil)))
		}
	}

	return res, nil
}

func (b *Builder) buildMain(ctx context.Context) (f *cfg.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "cfg: build main")
	defer tr.Finish("err", &err)

	f = cfg.NewFunc(0, true)
	f.Status = cfg.Building

	fs := &funcState{f: f}

	b.pos = 0

	end, err := b.convert(ctx, fs, targets{brk: cfg.None, cont: cfg.None}, f.Entry)
	if err != nil {
		return nil, err
	}

	if op := b.peek(); op != opEnd && op != input.LABEL {
		return nil, malformed(b.prog.Code[b.pos], "no matching opener")
	}

	if end != cfg.None {
		f.SetJump(end, f.Exit)
	}

	err = b.finish(ctx, fs)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Flags returns the global side effects recorded so far.
func (b *Builder) Flags() input.Flag {
	return b.flags
}

// CurrentIndex is the innermost active loop index register, -1 outside count loops.
func (b *Builder) CurrentIndex() int {
	if len(b.index) == 0 {
		return -1
	}

	return b.index[len(b.index)-1]
}

func (b *Builder) peek() input.Opcode {
	if b.pos >= len(b.prog.Code) {
		return opEnd
	}

	return b.prog.Code[b.pos].Op
}

// expect consumes the marker closing the construct opened by open.
func (b *Builder) expect(open *input.Instruction, ops ...input.Opcode) (*input.Instruction, error) {
	op := b.peek()

	if op == opEnd {
		return nil, malformed(open, "not terminated")
	}

	for _, x := range ops {
		if op == x {
			in := b.prog.Code[b.pos]
			b.pos++

			return in, nil
		}
	}

	in := b.prog.Code[b.pos]

	return nil, MalformedNestingError{Op: in.Op, Line: in.Line, Reason: "closes " + open.Op.String() + " opened at line " + strconv.Itoa(open.Line)}
}

func (b *Builder) newTemp() int {
	r := b.nextTemp
	b.nextTemp++

	return r
}

func (b *Builder) newIndex() int {
	r := b.nextIndex
	b.nextIndex++

	return r
}

func (b *Builder) record(f input.Flag) {
	if f == 0 {
		return
	}

	b.flags |= f

	if b.Recorder == nil {
		return
	}

	for bit := input.Flag(1); bit <= f; bit <<= 1 {
		if f&bit != 0 {
			b.Recorder.RecordGlobalFlag(bit)
		}
	}
}

func (b *Builder) lower(fs *funcState, id cfg.BlockID, in *input.Instruction) error {
	return b.Lowerer.Lower(fs.f.Block(id), in)
}

// emit lowers an instruction the builder made up.
func (b *Builder) emit(fs *funcState, id cfg.BlockID, in *input.Instruction) error {
	in.Synthetic = true

	return b.lower(fs, id, in)
}

func (Copy) Lower(b *cfg.Block, in *input.Instruction) error {
	b.Code = append(b.Code, in)

	return nil
}

func maxRegs(p *input.Program) (temps, index int) {
	temps, index = -1, -1

	for _, in := range p.Code {
		for _, ops := range [][]input.Operand{in.Dst, in.Src} {
			for _, o := range ops {
				if o.Type == input.RegTemp && o.Num > temps {
					temps = o.Num
				}

				if o.Type == input.RegIndex && o.Num > index {
					index = o.Num
				}

				if o.Rel && o.Index > index {
					index = o.Index
				}
			}
		}
	}

	return temps, index
}
