package jit

import (
	"fmt"
)

// Joins
//
// A forward edge leaves with memory complete (PrepareJoin) and the
// register assignment recorded. When its label is reached, the state
// falling into the label wins, and each edge gets a stub that loads what
// that state keeps in registers and the edge does not.
//
// Labels that are the target of a backward jump hold nothing in
// registers, so a backward edge only has to sync.

func (c *compiler) addEdge(label string) string {
	c.stubs++
	stub := fmt.Sprintf("%s$%d", label, c.stubs)
	c.edges[label] = append(c.edges[label], edge{stub: stub, snap: c.f.Snapshot()})
	return stub
}

func (c *compiler) jump(label string) {
	f := c.f
	if c.compiled[label] {
		f.Sync()
		c.b.Jump(label)
	} else {
		f.PrepareJoin()
		c.b.Jump(c.addEdge(label))
	}
	c.reachable = false
}

// branch pops the condition and jumps when its truthiness is ifTruthy.
// At run time the payload word is tested.
func (c *compiler) branch(label string, ifTruthy bool) {
	f := c.f
	top := f.Peek(-1)
	if f.IsConstant(top) {
		taken := f.Constant(top).Truthy() == ifTruthy
		f.Pop()
		if taken {
			c.jump(label)
		}
		return
	}

	r := f.CopyDataIntoReg(top)
	f.Pop()
	if c.compiled[label] {
		f.Sync()
		c.b.Branch(!ifTruthy, r, label)
	} else {
		f.PrepareJoin()
		c.b.Branch(!ifTruthy, r, c.addEdge(label))
	}
	f.FreeReg(r)
}

func (c *compiler) label(name string) {
	f := c.f
	switch {
	case !c.reachable:
		c.resetTo(c.s.LabelDepth(name))
	case c.s.IsLoopHeader(name):
		f.SyncAndForgetEverything()
	default:
		f.PrepareJoin()
	}

	if edges := c.edges[name]; len(edges) > 0 {
		if c.reachable {
			c.b.Jump(name)
		}
		for _, e := range edges {
			c.b.Label(e.stub)
			f.Merge(c.b, e.snap)
			c.b.Jump(name)
		}
		delete(c.edges, name)
	}
	c.b.Label(name)
	c.compiled[name] = true

	snap := f.Snapshot()
	snap.Label = name
	c.snapshots = append(c.snapshots, snap)
	c.reachable = true
}

// resetTo starts a block only jumps reach: nothing is known, memory holds
// every value and the stack has the label's depth
func (c *compiler) resetTo(depth int) {
	f := c.f
	f.ResetInternalState()
	for f.Depth() > depth {
		f.Pop()
	}
	for f.Depth() < depth {
		f.PushSynced()
	}
}
