package convert

import (
	"context"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

// convertIf builds IF .. [ELSE ..] ENDIF.
// An arm the condition rules out gets no block and its code is walked dead.
func (b *Builder) convertIf(ctx context.Context, fs *funcState, tg targets, cur cfg.BlockID, in *input.Instruction) (_ cfg.BlockID, err error) {
	f := fs.f

	thenB, elseB := cfg.None, cfg.None

	c, _, err := conditionOf(in)
	if err != nil {
		return cfg.None, err
	}

	if cur != cfg.None {
		res, err := b.eval(ctx, fs, cur, c, b.pos-1)
		if err != nil {
			return cfg.None, err
		}

		if res.Kind != StaticFalse {
			thenB = f.NewBlock()
		}

		// else arm, or the merge block when there is no ELSE
		if res.Kind != StaticTrue {
			elseB = f.NewBlock()
		}

		b.branch(f, cur, res, thenB, elseB)
	}

	thenEnd, err := b.convert(ctx, fs, tg, thenB)
	if err != nil {
		return cfg.None, err
	}

	closer, err := b.expect(in, input.ELSE, input.ENDIF)
	if err != nil {
		return cfg.None, err
	}

	if closer.Op == input.ENDIF {
		if elseB == cfg.None {
			return thenEnd, nil
		}

		if thenEnd != cfg.None {
			f.SetJump(thenEnd, elseB)
		}

		return elseB, nil
	}

	elseEnd, err := b.convert(ctx, fs, tg, elseB)
	if err != nil {
		return cfg.None, err
	}

	_, err = b.expect(in, input.ENDIF)
	if err != nil {
		return cfg.None, err
	}

	switch {
	case thenEnd == cfg.None:
		return elseEnd, nil
	case elseEnd == cfg.None:
		return thenEnd, nil
	}

	join := f.NewBlock()

	f.SetJump(thenEnd, join)
	f.SetJump(elseEnd, join)

	return join, nil
}
