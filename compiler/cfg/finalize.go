package cfg

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/set"
)

// Reachable walks the graph from the entry block in id order.
func (f *Func) Reachable() set.Bits[BlockID] {
	seen := set.MakeBits[BlockID]()
	q := heap.Heap[BlockID]{Less: idLess}

	seen.Set(f.Entry)
	q.Push(f.Entry)

	var buf [4]BlockID

	for q.Len() != 0 {
		id := q.Pop()
		b := f.Blocks[id]

		if b.Term == nil {
			continue
		}

		for _, s := range b.Term.Succs(buf[:0]) {
			if !seen.TestAndSet(s) {
				q.Push(s)
			}
		}
	}

	return seen
}

// Prune frees every block the entry cannot reach. The exit block is kept.
func (f *Func) Prune(ctx context.Context) (removed int) {
	seen := f.Reachable()

	for _, b := range f.Blocks {
		if b.Freed || b.ID == f.Exit || seen.IsSet(b.ID) {
			continue
		}

		b.Freed = true
		b.Code = nil
		b.Term = nil

		removed++
	}

	if removed != 0 {
		tlog.SpanFromContext(ctx).V("prune").Printw("pruned unreachable blocks", "func", f.Name(), "removed", removed, "live", seen)
	}

	return removed
}

// Verify checks the invariants of a finished function.
func (f *Func) Verify() error {
	var buf [4]BlockID

	for _, b := range f.Blocks {
		if b.Freed {
			continue
		}

		if b.Term == nil {
			return errors.New("internal: %v: block %d has no terminator", f.Name(), b.ID)
		}

		if c, ok := b.Term.(Cond); ok && c.Then == c.Else {
			return errors.New("internal: %v: block %d: conditional with equal targets", f.Name(), b.ID)
		}

		if _, ok := b.Term.(Return); ok && b.ID != f.Exit {
			return errors.New("internal: %v: block %d: return outside exit block", f.Name(), b.ID)
		}

		for _, s := range b.Term.Succs(buf[:0]) {
			if s < 0 || int(s) >= len(f.Blocks) || f.Blocks[s].Freed {
				return errors.New("internal: %v: block %d: edge to dead block %d", f.Name(), b.ID, s)
			}
		}
	}

	return nil
}

func idLess(d []BlockID, i, j int) bool {
	return d[i] < d[j]
}
