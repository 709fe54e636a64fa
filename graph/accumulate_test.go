package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/resource"
)

type groupIDDescriptor struct{ GroupID int }

type labeledProducer struct {
	groupID int
	seen    *[]int
}

func (p *labeledProducer) Setup(*graph.SetupContext) error { return nil }

func (p *labeledProducer) Compile(ctx *graph.CompileContext) error {
	v, err := resource.New(resource.TagBuffer, groupIDDescriptor{GroupID: p.groupID}, resource.Transient, resource.DeviceLocal)
	if err != nil {
		return err
	}
	if err := v.Publish(resource.TagBuffer, "h"); err != nil {
		return err
	}
	return ctx.Out(0, v)
}

func (p *labeledProducer) Execute(*graph.ExecuteContext) error { return nil }
func (p *labeledProducer) Cleanup(*graph.CleanupContext) error { return nil }

type groupingTarget struct {
	groups [][]int
}

func (t *groupingTarget) Setup(*graph.SetupContext) error { return nil }

func (t *groupingTarget) Compile(ctx *graph.CompileContext) error {
	for _, group := range ctx.InGroups(0) {
		var ids []int
		for _, v := range group {
			ids = append(ids, v.Descriptor().(groupIDDescriptor).GroupID)
		}
		t.groups = append(t.groups, ids)
	}
	return nil
}

func (t *groupingTarget) Execute(*graph.ExecuteContext) error { return nil }
func (t *groupingTarget) Cleanup(*graph.CleanupContext) error { return nil }

// TestAccumulationWithGrouping: sources P1(groupId=0), P2(groupId=0),
// P3(groupId=1) feeding T's accumulation slot with GroupKey(groupId)
// produce two groups, [P1, P2] and [P3].
func TestAccumulationWithGrouping(t *testing.T) {
	reg := graph.NewRegistry()
	target := &groupingTarget{}
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:    "labeled",
		Outputs: []graph.OutputSlot{{Index: 0, Name: "out", Type: resource.TagBuffer, Lifetime: resource.Transient}},
		New:     func() graph.NodeBehavior { return &labeledProducer{} },
	}))
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:   "grouper",
		Inputs: []graph.InputSlot{{Index: 0, Name: "in", Type: resource.TagBuffer, Role: connect.RoleDependency | connect.RoleExecute}},
		New:    func() graph.NodeBehavior { return target },
	}))

	g := graph.New(reg, nil)
	p1, _ := g.AddNode("labeled", "P1")
	p2, _ := g.AddNode("labeled", "P2")
	p3, _ := g.AddNode("labeled", "P3")
	tgt, _ := g.AddNode("grouper", "T")

	n1, _ := g.Node(p1)
	n1.Behavior.(*labeledProducer).groupID = 0
	n2, _ := g.Node(p2)
	n2.Behavior.(*labeledProducer).groupID = 0
	n3, _ := g.Node(p3)
	n3.Behavior.(*labeledProducer).groupID = 1

	_, err := g.Connect(p1, 0, tgt, 0, connect.Accumulate(), connect.GroupKey("GroupID"))
	require.NoError(t, err)
	_, err = g.Connect(p2, 0, tgt, 0, connect.Accumulate(), connect.GroupKey("GroupID"))
	require.NoError(t, err)
	_, err = g.Connect(p3, 0, tgt, 0, connect.Accumulate(), connect.GroupKey("GroupID"))
	require.NoError(t, err)

	compiler := graph.NewCompiler(1)
	_, err = compiler.Compile(g)
	require.NoError(t, err)

	require.Len(t, target.groups, 2)
	assert.ElementsMatch(t, []int{0, 0}, target.groups[0])
	assert.ElementsMatch(t, []int{1}, target.groups[1])
}
