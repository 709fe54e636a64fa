// Package connect implements vixen's connection rules and edge modifiers:
// an ordered pipeline of rules validating and transforming the typed link
// between a source output slot and a target input slot.
package connect

import (
	"fmt"
	"sort"

	"github.com/vixen-gfx/vixen/resource"
)

// Role is a bitset over how an edge constrains scheduling vs. execute-time
// binding.
type Role uint8

const (
	RoleDependency Role = 1 << iota
	RoleExecute
)

// Spec describes one edge's connection before and during rule evaluation:
// the two endpoint type tags, requested modifiers, and the role the edge
// will carry once validated. Builder.Build sets EffectiveRole and the
// modifier fields below as each modifier is applied; Pipeline.Validate then
// checks the result.
type Spec struct {
	SourceType resource.Tag
	TargetType resource.Tag
	Modifiers  []Modifier

	// EffectiveRole starts as RoleDependency|RoleExecute and may be narrowed
	// by a RoleOverride modifier.
	EffectiveRole Role

	// FieldName is set by a FieldExtract modifier naming the field the
	// scheduler should project from the source struct.
	FieldName string

	// Accumulate indicates the edge feeds a collection-typed target slot
	// that fuses multiple source edges together.
	Accumulate bool

	// GroupKeyField, when non-empty, partitions an accumulated collection by
	// the named field before the target sees it.
	GroupKeyField string

	// SortMode and SortLess describe ordering applied to an accumulated
	// collection, before or after grouping.
	SortMode SortMode
	SortLess func(a, b any) bool
}

// SortMode enumerates the accumulation sort modifier's direction.
type SortMode uint8

const (
	SortNone SortMode = iota
	SortAscending
	SortDescending
	SortCustom
)

// Modifier is an edge transformation requested by the graph author.
// Concrete modifier types are unexported; authors build them via the
// package-level constructors (FieldExtract, Accumulate, GroupKey, SortAsc,
// SortDesc, SortBy, RoleOverride) passed to Builder.With, so a precise
// diagnostic can be produced
// at Build() time rather than letting ad-hoc modifier structs slip past
// validation.
type Modifier interface {
	apply(*Spec) error
	name() string
}

type fieldExtractModifier struct{ field string }

func (m fieldExtractModifier) apply(s *Spec) error {
	if s.FieldName != "" {
		return fmt.Errorf("connect: multiple FieldExtract modifiers on one edge (%q and %q)", s.FieldName, m.field)
	}
	s.FieldName = m.field
	return nil
}
func (fieldExtractModifier) name() string { return "FieldExtract" }

type accumulateModifier struct{}

func (m accumulateModifier) apply(s *Spec) error {
	s.Accumulate = true
	// Accumulation is always Execute role; dependency propagation is
	// skipped because the fused collection is ephemeral.
	s.EffectiveRole = RoleExecute
	return nil
}
func (accumulateModifier) name() string { return "Accumulate" }

type groupKeyModifier struct{ field string }

func (m groupKeyModifier) apply(s *Spec) error {
	if !s.Accumulate {
		return fmt.Errorf("connect: GroupKey(%q) requires an Accumulate modifier on the same edge", m.field)
	}
	s.GroupKeyField = m.field
	return nil
}
func (groupKeyModifier) name() string { return "GroupKey" }

type sortModifier struct {
	mode SortMode
	less func(a, b any) bool
}

func (m sortModifier) apply(s *Spec) error {
	if s.SortMode != SortNone {
		return fmt.Errorf("connect: conflicting sort modifiers on one edge (%v and %v); supply only one of SortAsc/SortDesc/SortBy", s.SortMode, m.mode)
	}
	s.SortMode = m.mode
	s.SortLess = m.less
	return nil
}
func (sortModifier) name() string { return "Sort" }

func (m SortMode) String() string {
	switch m {
	case SortAscending:
		return "SortAscending"
	case SortDescending:
		return "SortDescending"
	case SortCustom:
		return "SortBy"
	default:
		return "SortNone"
	}
}

type roleOverrideModifier struct{ role Role }

func (m roleOverrideModifier) apply(s *Spec) error {
	s.EffectiveRole = m.role
	return nil
}
func (roleOverrideModifier) name() string { return "RoleOverride" }

// FieldExtract synthesizes a virtual slot projecting the named field out of
// a struct-typed source output.
func FieldExtract(field string) Modifier { return fieldExtractModifier{field: field} }

// Accumulate marks the edge as feeding an ordered-collection target slot,
// fused with any other edges into the same slot every frame.
func Accumulate() Modifier { return accumulateModifier{} }

// GroupKey partitions an accumulated collection by the named field.
func GroupKey(field string) Modifier { return groupKeyModifier{field: field} }

// SortAsc sorts an accumulated collection ascending by less.
func SortAsc(less func(a, b any) bool) Modifier {
	return sortModifier{mode: SortAscending, less: less}
}

// SortDesc sorts an accumulated collection descending by less.
func SortDesc(less func(a, b any) bool) Modifier {
	return sortModifier{mode: SortDescending, less: less}
}

// SortBy sorts an accumulated collection with a fully custom comparator.
func SortBy(less func(a, b any) bool) Modifier {
	return sortModifier{mode: SortCustom, less: less}
}

// RoleOverride narrows or widens a slot's role for this edge only.
func RoleOverride(role Role) Modifier { return roleOverrideModifier{role: role} }

// Rule is one stage of the connection-rule pipeline. Rules run in
// ascending Priority order.
type Rule interface {
	Priority() int
	Apply(*Spec) error
}

// typeIdentityRule is the default rule: source output type must equal
// target input type, unless a FieldExtract modifier narrows the comparison
// to a projected field (whose type the caller is responsible for declaring
// consistently — Go's static typing cannot check a string field name
// against a struct shape at this layer, so field-extraction type-checking
// happens at the node-author boundary).
type typeIdentityRule struct{}

func (typeIdentityRule) Priority() int { return 0 }

func (typeIdentityRule) Apply(s *Spec) error {
	if s.FieldName != "" {
		return nil
	}
	if s.SourceType != s.TargetType {
		return fmt.Errorf("connect: type mismatch: source %s != target %s", s.SourceType, s.TargetType)
	}
	return nil
}

// DefaultRules returns the baseline rule set every Builder starts from:
// just the type-identity rule. Additional rules (field extraction,
// accumulation, grouping, sort, role override) are expressed as Modifiers
// applied directly to the Spec rather than as separate Rule
// implementations, since each only fires when the author explicitly
// requests it via the Builder — see Builder.Build.
func DefaultRules() []Rule {
	return []Rule{typeIdentityRule{}}
}

// Pipeline runs an ordered set of Rules against a Spec.
type Pipeline struct {
	rules []Rule
}

// NewPipeline constructs a Pipeline from rules, sorted by Priority.
func NewPipeline(rules ...Rule) *Pipeline {
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Pipeline{rules: sorted}
}

// Validate runs every rule against spec in priority order, stopping at the
// first error.
func (p *Pipeline) Validate(spec *Spec) error {
	for _, r := range p.rules {
		if err := r.Apply(spec); err != nil {
			return err
		}
	}
	return nil
}

// Builder accumulates modifiers for one edge and produces a validated
// Spec. Build fails at validation time with a diagnostic naming the rule,
// source type, target type, and applied modifiers.
type Builder struct {
	sourceType resource.Tag
	targetType resource.Tag
	modifiers  []Modifier
	pipeline   *Pipeline
}

// NewBuilder starts a Builder for an edge from sourceType to targetType,
// using the default rule set.
func NewBuilder(sourceType, targetType resource.Tag) *Builder {
	return &Builder{sourceType: sourceType, targetType: targetType, pipeline: NewPipeline(DefaultRules()...)}
}

// With appends modifiers to the edge under construction.
func (b *Builder) With(modifiers ...Modifier) *Builder {
	b.modifiers = append(b.modifiers, modifiers...)
	return b
}

// Build validates the accumulated modifiers and returns the resulting
// Spec. Supplying more than one of SortAsc/SortDesc/SortBy on the same
// edge is rejected here with both modifier names in the error.
func (b *Builder) Build() (*Spec, error) {
	spec := &Spec{
		SourceType:    b.sourceType,
		TargetType:    b.targetType,
		Modifiers:     append([]Modifier(nil), b.modifiers...),
		EffectiveRole: RoleDependency | RoleExecute,
	}
	for _, m := range b.modifiers {
		if err := m.apply(spec); err != nil {
			return nil, fmt.Errorf("connect: building edge %s->%s with modifiers %s: %w",
				b.sourceType, b.targetType, modifierNames(b.modifiers), err)
		}
	}
	if err := b.pipeline.Validate(spec); err != nil {
		return nil, fmt.Errorf("connect: building edge %s->%s with modifiers %s: %w",
			b.sourceType, b.targetType, modifierNames(b.modifiers), err)
	}
	return spec, nil
}

func modifierNames(mods []Modifier) string {
	if len(mods) == 0 {
		return "[]"
	}
	out := "["
	for i, m := range mods {
		if i > 0 {
			out += ", "
		}
		out += m.name()
	}
	return out + "]"
}

// Has reports whether r contains bit.
func (r Role) Has(bit Role) bool { return r&bit != 0 }
