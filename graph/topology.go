package graph

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/vixen-gfx/vixen/connect"
)

// CycleError reports a cycle found during topological sort: the first one
// findCycle's depth-first walk closes, not necessarily the shortest.
type CycleError struct {
	Names []string // node names forming the cycle, e.g. ["A", "B", "C", "A"]
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: cycle detected: %s", strings.Join(e.Names, "->"))
}

// nodeHeapItem orders ready-to-visit nodes by creation index for
// deterministic tie-breaking.
type nodeHeapItem struct {
	id            NodeID
	creationIndex int
}

type nodeHeap []nodeHeapItem

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].creationIndex < h[j].creationIndex }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)         { *h = append(*h, x.(nodeHeapItem)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// dependencyInEdges returns the edges into a node whose role includes
// RoleDependency; only these constrain topological order. Execute-only
// edges bind data without ordering.
func (g *Graph) dependencyInEdges(id NodeID) []*Edge {
	all := g.inEdges[id]
	out := make([]*Edge, 0, len(all))
	for _, eid := range all {
		e := g.edges[eid]
		if e.Spec.EffectiveRole.Has(connect.RoleDependency) {
			out = append(out, e)
		}
	}
	return out
}

// TopologicalSort produces a stable execution order over all nodes in g via
// Kahn's algorithm, with ties broken by creation index. Only
// RoleDependency edges constrain order. Returns a *CycleError if the graph
// is not acyclic.
func (g *Graph) TopologicalSort() ([]NodeID, error) {
	inDegree := make(map[NodeID]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.dependencyInEdges(id))
	}

	ready := &nodeHeap{}
	heap.Init(ready)
	for _, id := range g.order {
		if inDegree[id] == 0 {
			heap.Push(ready, nodeHeapItem{id: id, creationIndex: g.nodes[id].creationIndex})
		}
	}

	order := make([]NodeID, 0, len(g.nodes))
	for ready.Len() > 0 {
		item := heap.Pop(ready).(nodeHeapItem)
		order = append(order, item.id)

		for _, eid := range g.outEdges[item.id] {
			e := g.edges[eid]
			if !e.Spec.EffectiveRole.Has(connect.RoleDependency) {
				continue
			}
			inDegree[e.Target]--
			if inDegree[e.Target] == 0 {
				heap.Push(ready, nodeHeapItem{id: e.Target, creationIndex: g.nodes[e.Target].creationIndex})
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, g.findCycle()
	}
	return order, nil
}

// findCycle runs after a failed topological sort: a depth-first walk along
// RoleDependency edges from each node in creation order, reporting by name
// the first cycle it closes. The reported cycle is not guaranteed to be the
// shortest one in the graph.
func (g *Graph) findCycle() *CycleError {
	visited := make(map[NodeID]bool)
	var path []NodeID

	var visit func(id NodeID) *CycleError
	visit = func(id NodeID) *CycleError {
		for i, p := range path {
			if p == id {
				cyclePath := append(append([]NodeID(nil), path[i:]...), id)
				names := make([]string, len(cyclePath))
				for j, nid := range cyclePath {
					names[j] = g.nodes[nid].Name
				}
				return &CycleError{Names: names}
			}
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		path = append(path, id)
		for _, eid := range g.outEdges[id] {
			e := g.edges[eid]
			if !e.Spec.EffectiveRole.Has(connect.RoleDependency) {
				continue
			}
			if cycle := visit(e.Target); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		return nil
	}

	for _, id := range g.order {
		path = nil
		visited = make(map[NodeID]bool)
		if cycle := visit(id); cycle != nil {
			return cycle
		}
	}
	return &CycleError{Names: []string{"<unknown>"}}
}

// DependentSet returns the transitive closure of nodes reachable by
// RoleDependency edges starting from seeds (inclusive), used to scope
// dirty-set recompilation to the affected subgraph.
func (g *Graph) DependentSet(seeds []NodeID) []NodeID {
	visited := make(map[NodeID]bool)
	queue := append([]NodeID(nil), seeds...)
	for _, s := range seeds {
		visited[s] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, eid := range g.outEdges[id] {
			e := g.edges[eid]
			if !e.Spec.EffectiveRole.Has(connect.RoleDependency) {
				continue
			}
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	out := make([]NodeID, 0, len(visited))
	for _, id := range g.order {
		if visited[id] {
			out = append(out, id)
		}
	}
	return out
}
