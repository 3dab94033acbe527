// Package cfg holds the control-flow graph of shader functions:
// basic blocks addressed by BlockID and the typed edges between them.
//
// Blocks live in a per-function arena. Freed blocks keep their ids as
// tombstones, so an id never names a different block later.
package cfg

import (
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

type (
	BlockID int
	Status  int

	Block struct {
		ID BlockID

		Label    input.Label
		HasLabel bool

		// Code holds lowered statements and *Call entries.
		Code []any

		// Term is nil while the block is still open.
		Term Term

		Freed bool
	}

	// Term is a block terminator: Jump, Cond, Switch or Return.
	Term interface {
		Succs(buf []BlockID) []BlockID
	}

	Jump struct {
		To BlockID
	}

	Cond struct {
		Pred input.Predicate

		Then BlockID
		Else BlockID

		// Static is set when the branch depends only on uniform data.
		Static bool
	}

	Switch struct {
		Sel     input.Operand
		Cases   []Case
		Default BlockID
	}

	Case struct {
		Value  int64
		Target BlockID
	}

	// Return leaves the function. Only the exit block carries it.
	Return struct{}

	Call struct {
		Func *Func
	}

	CallSite struct {
		Caller *Func
		Block  BlockID
	}

	Func struct {
		Label input.Label
		Main  bool

		Entry BlockID
		Exit  BlockID

		Blocks []*Block

		Callees   []*Func
		CallSites []CallSite

		// Depth is 1 + max callee depth, or 0 for leaf functions.
		Depth  int
		Status Status

		// IndexSlot is the register receiving the caller's loop index, -1 if not allocated.
		IndexSlot int
		UsesIndex bool
	}
)

const (
	NotStarted Status = iota
	Building
	Done
)

const None BlockID = -1

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Building:
		return "building"
	case Done:
		return "done"
	}

	return "status?"
}

func NewFunc(l input.Label, main bool) *Func {
	f := &Func{
		Label:     l,
		Main:      main,
		IndexSlot: -1,
	}

	f.Entry = f.NewBlock()
	f.Exit = f.NewBlock()

	f.Blocks[f.Exit].Term = Return{}

	return f
}

func (f *Func) Name() string {
	if f.Main {
		return "main"
	}

	return "label" + strconv.Itoa(int(f.Label))
}

func (f *Func) NewBlock() BlockID {
	id := BlockID(len(f.Blocks))

	f.Blocks = append(f.Blocks, &Block{ID: id})

	return id
}

// NewLabeledBlock allocates a block that JUMPs to l will land on.
func (f *Func) NewLabeledBlock(l input.Label) BlockID {
	id := f.NewBlock()

	b := f.Blocks[id]
	b.Label = l
	b.HasLabel = true

	return id
}

func (f *Func) Block(id BlockID) *Block {
	return f.Blocks[id]
}

// FindLabel returns the live block labeled l.
func (f *Func) FindLabel(l input.Label) (BlockID, bool) {
	for _, b := range f.Blocks {
		if b.HasLabel && !b.Freed && b.Label == l {
			return b.ID, true
		}
	}

	return None, false
}

func (f *Func) SetJump(b, to BlockID) {
	tlog.V("edges").Printw("jump", "func", f.Name(), "from", b, "to", to, "caller", loc.Caller(1))

	f.setTerm(b, Jump{To: to})
}

// SetCond sets a conditional branch. Equal targets degrade to a jump.
func (f *Func) SetCond(b BlockID, p input.Predicate, then, els BlockID, static bool) {
	if then == els {
		f.SetJump(b, then)
		return
	}

	tlog.V("edges").Printw("cond", "func", f.Name(), "from", b, "pred", p, "then", then, "else", els, "static", static, "caller", loc.Caller(1))

	f.setTerm(b, Cond{
		Pred:   p,
		Then:   then,
		Else:   els,
		Static: static,
	})
}

// SetSwitch sets a multi-way branch. Without cases it is a jump to def.
func (f *Func) SetSwitch(b BlockID, sel input.Operand, cases []Case, def BlockID) {
	if len(cases) == 0 {
		f.SetJump(b, def)
		return
	}

	tlog.V("edges").Printw("switch", "func", f.Name(), "from", b, "cases", len(cases), "default", def, "caller", loc.Caller(1))

	f.setTerm(b, Switch{
		Sel:     sel,
		Cases:   cases,
		Default: def,
	})
}

func (f *Func) setTerm(id BlockID, t Term) {
	b := f.Blocks[id]

	if b.Freed {
		panic(errors.New("terminate freed block %d", id))
	}

	if b.Term != nil {
		panic(errors.New("block %d already terminated: %T", id, b.Term))
	}

	b.Term = t
}

// Referenced reports whether any live block has an edge to id.
func (f *Func) Referenced(id BlockID) bool {
	var buf [4]BlockID

	for _, b := range f.Blocks {
		if b.Freed || b.Term == nil {
			continue
		}

		for _, s := range b.Term.Succs(buf[:0]) {
			if s == id {
				return true
			}
		}
	}

	return false
}

// Free discards a block that nothing can reach.
// It is an error to free a block some edge still refers to.
func (f *Func) Free(id BlockID) error {
	if id == f.Entry || id == f.Exit {
		return errors.New("internal: free %v block %d", f.Name(), id)
	}

	if f.Referenced(id) {
		return errors.New("internal: free referenced block %d", id)
	}

	b := f.Blocks[id]
	b.Freed = true
	b.Code = nil
	b.Term = nil

	return nil
}

// Live returns the blocks that are not freed, in id order.
func (f *Func) Live() []*Block {
	r := make([]*Block, 0, len(f.Blocks))

	for _, b := range f.Blocks {
		if !b.Freed {
			r = append(r, b)
		}
	}

	return r
}

func (t Jump) Succs(buf []BlockID) []BlockID { return append(buf, t.To) }

func (t Cond) Succs(buf []BlockID) []BlockID { return append(buf, t.Then, t.Else) }

func (t Switch) Succs(buf []BlockID) []BlockID {
	for _, c := range t.Cases {
		buf = append(buf, c.Target)
	}

	return append(buf, t.Default)
}

func (Return) Succs(buf []BlockID) []BlockID { return buf }
