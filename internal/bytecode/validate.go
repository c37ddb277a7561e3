package bytecode

import (
	"fmt"
	"strings"

	"github.com/xyproto/jitframe/internal/engine"
)

// stackEffect returns how many values in must find on the stack, how it
// changes the depth, and how far above the starting depth it reaches while
// executing
func (in Instr) stackEffect() (need, delta, peak int) {
	n := int(in.Int)
	switch in.Op {
	case OpInt, OpDouble, OpTrue, OpFalse, OpNull, OpUndefined,
		OpGetArg, OpGetLocal, OpThis, OpCallee:
		return 0, 1, 1
	case OpSetArg, OpSetLocal:
		return 1, 0, 0
	case OpDup:
		return 1, 1, 1
	case OpDup2:
		return 2, 2, 2
	case OpPop:
		return 1, -1, 0
	case OpPopN, OpLeaveBlock:
		return n, -n, 0
	case OpSwap:
		// swapped through two scratch entries
		return 2, 0, 2
	case OpCall:
		return n + 1, -n, 0
	case OpIfEq, OpIfNe:
		return 1, -1, 0
	case OpEnterBlock:
		return 0, n, n
	case OpReturn:
		return 1, -1, 0
	default:
		if in.Op.IsBinary() {
			return 2, -1, 0
		}
		return 0, 0, 0
	}
}

// Validate checks slot operands, labels and the operand stack depth along
// every path, and computes MaxDepth. Parse calls it; scripts built in code
// must call it before they are compiled.
//
// The depth at a label is fixed by the first way control reaches it in
// program order, fallthrough or forward jump. A label reached only by
// backward jumps is rejected, so loops test their condition at the bottom.
func (s *Script) Validate() error {
	if s.NArgs < 0 || s.NLocals < 0 {
		return s.invalid(Pos{}, "negative slot count (args=%d locals=%d)", s.NArgs, s.NLocals)
	}
	for _, n := range s.ClosedLocals {
		if n < 0 || n >= s.NLocals {
			return s.invalid(Pos{}, "closed local %d out of range (%d locals)", n, s.NLocals)
		}
	}
	for _, n := range s.ClosedArgs {
		if n < 0 || n >= s.NArgs {
			return s.invalid(Pos{}, "closed argument %d out of range (%d args)", n, s.NArgs)
		}
	}
	if s.Run != nil && len(s.Run.Args) > s.NArgs {
		return s.invalid(Pos{}, "run passes %d arguments, the script takes %d", len(s.Run.Args), s.NArgs)
	}

	s.labels = make(map[string]int)
	for i, in := range s.Code {
		if in.Op != OpLabel {
			continue
		}
		if prev, ok := s.labels[in.Label]; ok {
			return s.invalid(in.Pos, "label %s defined twice (first at line %d)", in.Label, s.Code[prev].Pos.Line)
		}
		s.labels[in.Label] = i
	}

	s.labelDepth = make(map[string]int)
	s.backTargets = make(map[string]bool)
	pending := make(map[string]int) // forward jump depths
	depth, maxDepth := 0, 0
	reachable := true

	for i, in := range s.Code {
		if in.Op == OpLabel {
			want, jumpedTo := pending[in.Label]
			switch {
			case reachable && jumpedTo && want != depth:
				return s.invalid(in.Pos, "stack depth %d falling into label %s, jumps bring %d", depth, in.Label, want)
			case !reachable && !jumpedTo:
				return s.invalid(in.Pos, "label %s is only reachable by a backward jump", in.Label)
			case !reachable:
				depth = want
			}
			s.labelDepth[in.Label] = depth
			reachable = true
			continue
		}
		if !reachable {
			return s.invalid(in.Pos, "unreachable %s after %s", in.Op, s.Code[i-1].Op)
		}

		switch in.Op {
		case OpGetArg, OpSetArg:
			if int(in.Int) >= s.NArgs {
				return s.invalid(in.Pos, "%s: argument %d out of range (%d args)", in.Op, in.Int, s.NArgs)
			}
		case OpGetLocal, OpSetLocal:
			if int(in.Int) >= s.NLocals {
				return s.invalid(in.Pos, "%s: local %d out of range (%d locals)", in.Op, in.Int, s.NLocals)
			}
		}

		need, delta, peak := in.stackEffect()
		if depth < need {
			return s.invalid(in.Pos, "%s needs %d stack values, %d available", in, need, depth)
		}
		maxDepth = max(maxDepth, depth+peak)

		if in.Op.IsJump() {
			after := depth + delta
			target, ok := s.labels[in.Label]
			switch {
			case !ok:
				return s.undefinedLabel(in)
			case target < i:
				s.backTargets[in.Label] = true
				if s.labelDepth[in.Label] != after {
					return s.invalid(in.Pos, "stack depth %d at backward jump to %s, label has %d", after, in.Label, s.labelDepth[in.Label])
				}
			default:
				if want, seen := pending[in.Label]; seen && want != after {
					return s.invalid(in.Pos, "stack depth %d at jump to %s, earlier jumps bring %d", after, in.Label, want)
				}
				pending[in.Label] = after
			}
		}
		depth += delta
		if in.Op.EndsBlock() {
			reachable = false
		}
	}
	if reachable {
		// falling off the end returns undefined
		maxDepth = max(maxDepth, depth+1)
	}
	s.MaxDepth = maxDepth
	return nil
}

func (s *Script) undefinedLabel(in Instr) error {
	e := s.invalid(in.Pos, "%s: undefined label %s", in.Op, in.Label)
	names := make([]string, 0, len(s.labels))
	for name := range s.labels {
		names = append(names, name)
	}
	if similar := engine.FindSimilar(in.Label, names, 3); len(similar) > 0 {
		e.Suggestion = fmt.Sprintf("Did you mean: %s?", strings.Join(similar, ", "))
	}
	return e
}

// IsLoopHeader reports whether some jump goes back to label
func (s *Script) IsLoopHeader(label string) bool {
	return s.backTargets[label]
}

// LabelDepth returns the operand stack depth at label
func (s *Script) LabelDepth(label string) int {
	return s.labelDepth[label]
}

// Listing renders the code one instruction per line
func (s *Script) Listing() string {
	var sb strings.Builder
	for i, in := range s.Code {
		if in.Op == OpLabel {
			fmt.Fprintf(&sb, "%s:\n", in.Label)
			continue
		}
		fmt.Fprintf(&sb, "%4d  %s\n", i, in)
	}
	return sb.String()
}
