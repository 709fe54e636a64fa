package connect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/resource"
)

func TestDefaultRuleRejectsTypeMismatch(t *testing.T) {
	_, err := connect.NewBuilder(resource.TagBuffer, resource.TagImage).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")
}

func TestDefaultRuleAcceptsTypeIdentity(t *testing.T) {
	spec, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).Build()
	require.NoError(t, err)
	assert.Equal(t, connect.RoleDependency|connect.RoleExecute, spec.EffectiveRole)
}

func TestAccumulateForcesExecuteOnlyRole(t *testing.T) {
	spec, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).
		With(connect.Accumulate()).
		Build()
	require.NoError(t, err)
	assert.True(t, spec.Accumulate)
	assert.Equal(t, connect.RoleExecute, spec.EffectiveRole)
	assert.False(t, spec.EffectiveRole.Has(connect.RoleDependency))
}

func TestGroupKeyRequiresAccumulate(t *testing.T) {
	_, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).
		With(connect.GroupKey("groupId")).
		Build()
	require.Error(t, err)
}

func TestGroupKeyWithAccumulate(t *testing.T) {
	spec, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).
		With(connect.Accumulate(), connect.GroupKey("groupId")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "groupId", spec.GroupKeyField)
}

// TestConflictingSortModifiersRejected: supplying both an ascending sort
// and a custom SortBy on one edge is a validation error.
func TestConflictingSortModifiersRejected(t *testing.T) {
	_, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).
		With(connect.Accumulate(), connect.SortAsc(nil), connect.SortBy(func(a, b any) bool { return false })).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting sort modifiers")
}

func TestFieldExtractBypassesTypeIdentity(t *testing.T) {
	spec, err := connect.NewBuilder(resource.TagBuffer, resource.TagImage).
		With(connect.FieldExtract("ColorTarget")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "ColorTarget", spec.FieldName)
}

func TestRoleOverrideNarrowsRole(t *testing.T) {
	spec, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).
		With(connect.RoleOverride(connect.RoleDependency)).
		Build()
	require.NoError(t, err)
	assert.False(t, spec.EffectiveRole.Has(connect.RoleExecute))
}

func TestDuplicateFieldExtractRejected(t *testing.T) {
	_, err := connect.NewBuilder(resource.TagBuffer, resource.TagBuffer).
		With(connect.FieldExtract("A"), connect.FieldExtract("B")).
		Build()
	require.Error(t, err)
}
