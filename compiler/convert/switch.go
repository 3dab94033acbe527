package convert

import (
	"context"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/cfg"
	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

// convertSwitch builds SWITCH sel .. ENDSWITCH.
// Each run of consecutive CASE and DEFAULT markers opens one body block.
// Bodies without a BREAK fall into the next one, the last into the exit.
func (b *Builder) convertSwitch(ctx context.Context, fs *funcState, tg targets, cur cfg.BlockID, in *input.Instruction) (_ cfg.BlockID, err error) {
	f := fs.f

	exit := cfg.None
	if cur != cfg.None {
		exit = f.NewBlock()
	}

	inner := tg
	inner.brk = exit
	inner.canBreak = true

	// code before the first CASE is never executed
	prev, err := b.convert(ctx, fs, inner, cfg.None)
	if err != nil {
		return cfg.None, err
	}

	var cases []cfg.Case
	seen := map[int64]struct{}{}
	def := cfg.None
	hasDefault := false

	for op := b.peek(); op == input.CASE || op == input.DEFAULT; op = b.peek() {
		body := cfg.None
		if cur != cfg.None {
			body = f.NewBlock()
		}

		for op = b.peek(); op == input.CASE || op == input.DEFAULT; op = b.peek() {
			m := b.prog.Code[b.pos]
			b.pos++

			if op == input.DEFAULT {
				if hasDefault {
					return cfg.None, DuplicateDefaultError{Line: m.Line}
				}

				hasDefault = true
				def = body

				continue
			}

			v, err := b.caseValue(m)
			if err != nil {
				return cfg.None, err
			}

			if _, ok := seen[v]; ok {
				return cfg.None, DuplicateCaseError{Value: v, Line: m.Line}
			}

			seen[v] = struct{}{}

			cases = append(cases, cfg.Case{Value: v, Target: body})
		}

		if prev != cfg.None {
			if body == cfg.None {
				return cfg.None, malformed(in, "falls into a case of an unreachable switch")
			}

			f.SetJump(prev, body)
		}

		prev, err = b.convert(ctx, fs, inner, body)
		if err != nil {
			return cfg.None, err
		}
	}

	_, err = b.expect(in, input.ENDSWITCH)
	if err != nil {
		return cfg.None, err
	}

	if cur == cfg.None {
		if prev != cfg.None {
			return cfg.None, malformed(in, "falls out of an unreachable switch")
		}

		return cfg.None, nil
	}

	if prev != cfg.None {
		f.SetJump(prev, exit)
	}

	if !hasDefault {
		def = exit
	}

	f.SetSwitch(cur, b.bindOperand(fs, in.Src[0]), cases, def)

	if !f.Referenced(exit) {
		return cfg.None, f.Free(exit)
	}

	return exit, nil
}

func (b *Builder) caseValue(m *input.Instruction) (int64, error) {
	if len(m.Src) == 0 {
		return 0, NonConstantCaseError{Line: m.Line}
	}

	v, ok := b.prog.Value(m.Src[0])
	if !ok || v != float64(int64(v)) {
		return 0, NonConstantCaseError{Line: m.Line}
	}

	return int64(v), nil
}
