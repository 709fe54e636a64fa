package graph

import "fmt"

// FrameResult is the outcome of one Graph.Execute call: the frame number
// just run and every virtual task emitted, keyed by node and already in
// the plan's execution order. The caller schedules and runs Tasks; Execute
// itself only drives the node Execute hooks and binds I/O.
type FrameResult struct {
	FrameNumber uint64
	Tasks       []VirtualTask
}

// Execute runs plan's Compiled nodes through their Execute hook, in plan
// order, advancing the graph's frame counter. Accumulate input slots are
// rebound fresh for this frame, since upstream producers may have
// republished new outputs since Compile.
//
// A node's Execute error aborts the frame immediately. Execute does not
// mutate the Plan or node PhaseState on failure, so the caller may simply
// retry next frame once the fault condition clears.
func (g *Graph) Execute(plan *Plan, frameNumber uint64) (FrameResult, error) {
	var tasks []VirtualTask

	for _, id := range plan.Order {
		n, ok := g.nodes[id]
		if !ok {
			continue // removed since compile; plan is stale for this node only
		}
		if n.State != StateCompiled {
			continue
		}

		if err := rebindAccumulateInputs(g, n); err != nil {
			return FrameResult{}, fmt.Errorf("node %q: rebind inputs: %w", n.Name, err)
		}

		n.State = StateExecuting
		ctx := &ExecuteContext{baseContext: baseContext{node: n, graph: g}, FrameNumber: frameNumber}
		if err := n.Behavior.Execute(ctx); err != nil {
			n.State = StateCompiled
			return FrameResult{}, fmt.Errorf("node %q execute: %w", n.Name, err)
		}
		n.State = StateCompiled
		tasks = append(tasks, ctx.tasks...)
	}

	g.frameCounter = frameNumber
	return FrameResult{FrameNumber: frameNumber, Tasks: tasks}, nil
}

// rebindAccumulateInputs re-runs bindInputs' collection fan-in for n only.
// Scalar slot bindings from Compile are left untouched: only accumulation/
// grouping/sort slots and slots fed by an array output (whose bundles are
// republished via OutAt during Execute) are rebuilt every frame; scalar
// inputs are stable across a node's compiled lifetime until the next
// Compile/Recompile.
func rebindAccumulateInputs(g *Graph, n *Node) error {
	rebind := false
	for _, e := range g.InEdges(n.ID) {
		if e.Spec.Accumulate {
			rebind = true
			break
		}
		src := g.nodes[e.Source]
		if slot, ok := src.Type.outputByIndex(e.SourceSlot); ok && slot.Array {
			rebind = true
			break
		}
	}
	if !rebind {
		return nil
	}
	return bindInputs(g, n)
}
