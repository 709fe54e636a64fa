package resource

import "fmt"

// Trait holds the compile-time-known shape information for one member of
// the closed type registry: a validator for its descriptor and a
// human-readable name. The hazard of a wrapper type silently losing its
// extractor (installing it after Publish, so the first bind sees the old
// handle) is guarded by Value requiring SetExtractor before the first
// Publish; the registry's role is validating descriptors structurally.
type Trait struct {
	Name     string
	Validate func(descriptor any) error
}

// traits is the closed, compile-time-populated registry of descriptor
// validators, one per GPU resource tag. CPU/value tags (Int, Float, ...)
// have no descriptor shape to validate.
var traits = map[Tag]Trait{
	TagImage: {Name: "Image", Validate: func(d any) error {
		desc, ok := d.(ImageDescriptor)
		if !ok {
			return fmt.Errorf("%w: expected ImageDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		if !desc.Valid() {
			return fmt.Errorf("%w: zero extent or count", ErrInvalidDescriptor)
		}
		return nil
	}},
	TagBuffer: {Name: "Buffer", Validate: func(d any) error {
		desc, ok := d.(BufferDescriptor)
		if !ok {
			return fmt.Errorf("%w: expected BufferDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		if !desc.Valid() {
			return fmt.Errorf("%w: zero size", ErrInvalidDescriptor)
		}
		return nil
	}},
	TagRenderPass: {Name: "RenderPass", Validate: func(d any) error {
		if _, ok := d.(RenderPassDescriptor); !ok {
			return fmt.Errorf("%w: expected RenderPassDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		return nil
	}},
	TagPipeline: {Name: "Pipeline", Validate: func(d any) error {
		if _, ok := d.(PipelineDescriptor); !ok {
			return fmt.Errorf("%w: expected PipelineDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		return nil
	}},
	TagDescriptorSetLayout: {Name: "DescriptorSetLayout", Validate: func(d any) error {
		if _, ok := d.(DescriptorSetLayoutDescriptor); !ok {
			return fmt.Errorf("%w: expected DescriptorSetLayoutDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		return nil
	}},
	TagSampler: {Name: "Sampler", Validate: func(d any) error {
		if _, ok := d.(SamplerDescriptor); !ok {
			return fmt.Errorf("%w: expected SamplerDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		return nil
	}},
	TagAccelerationStructure: {Name: "AccelerationStructure", Validate: func(d any) error {
		if _, ok := d.(AccelerationStructureDescriptor); !ok {
			return fmt.Errorf("%w: expected AccelerationStructureDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		return nil
	}},
	TagCommandPool: {Name: "CommandPool", Validate: func(d any) error {
		if _, ok := d.(CommandPoolDescriptor); !ok {
			return fmt.Errorf("%w: expected CommandPoolDescriptor, got %T", ErrInvalidDescriptor, d)
		}
		return nil
	}},
}

// ErrInvalidDescriptor is returned by Validate for a malformed descriptor.
var ErrInvalidDescriptor = fmt.Errorf("resource: invalid descriptor")

// ErrUnknownTag is returned when looking up a trait for a tag outside the
// closed registry.
var ErrUnknownTag = fmt.Errorf("resource: type-registry lookup failure")

// Validate checks descriptor against the trait registered for tag. Tags
// without a registered trait (image views, generic handles, CPU/value
// types) always validate successfully — they carry no structural descriptor
// invariant beyond what their Go type already enforces.
func Validate(tag Tag, descriptor any) error {
	if !tag.Valid() {
		return fmt.Errorf("%w: tag %d", ErrUnknownTag, tag)
	}
	trait, ok := traits[tag]
	if !ok {
		return nil
	}
	return trait.Validate(descriptor)
}

// TraitName returns the trait name registered for tag, or tag's String if
// none is registered.
func TraitName(tag Tag) string {
	if trait, ok := traits[tag]; ok {
		return trait.Name
	}
	return tag.String()
}
