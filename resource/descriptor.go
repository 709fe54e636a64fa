package resource

// Descriptor types describing creation parameters per resource tag.

// Extent3D is a 3-dimensional size, used by image descriptors.
type Extent3D struct {
	Width, Height, Depth uint32
}

// ImageUsage is a bitmask of intended image usages, mirrored loosely on
// Vulkan's VkImageUsageFlagBits without depending on the Vulkan binding from
// the resource package (the gpu package owns the real backend constants;
// this is the backend-agnostic descriptor shape consumed by Compile).
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

// ImageFormat is an opaque format identifier resolved by the GPU backend;
// vixen's core never interprets the numeric value itself.
type ImageFormat uint32

// ImageDescriptor describes an image resource's creation parameters.
type ImageDescriptor struct {
	Extent      Extent3D
	Format      ImageFormat
	Usage       ImageUsage
	MipLevels   uint32
	ArrayLayers uint32
	Samples     uint32
	AliasGroup  string // optional; resources sharing a group may alias
}

// Valid reports whether d has a non-zero extent and at least one
// mip/array/sample count.
func (d ImageDescriptor) Valid() bool {
	return d.Extent.Width > 0 && d.Extent.Height > 0 && d.Extent.Depth > 0 &&
		d.MipLevels > 0 && d.ArrayLayers > 0 && d.Samples > 0
}

// BufferUsage is a bitmask of intended buffer usages.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
	BufferUsageIndirect
)

// BufferDescriptor describes a buffer resource's creation parameters.
type BufferDescriptor struct {
	SizeBytes  uint64
	Usage      BufferUsage
	AliasGroup string
}

func (d BufferDescriptor) Valid() bool { return d.SizeBytes > 0 }

// SamplerDescriptor describes a sampler's filtering/addressing parameters.
type SamplerDescriptor struct {
	MagFilter, MinFilter int
	AddressModeU         int
	AddressModeV         int
	AddressModeW         int
	MaxAnisotropy        float32
}

// DescriptorSetLayoutDescriptor describes a descriptor set layout's
// bindings, consumed from the shader reflection table.
type DescriptorSetLayoutDescriptor struct {
	Bindings []DescriptorBinding
}

// DescriptorBinding is one binding slot in a descriptor set layout.
type DescriptorBinding struct {
	Index       uint32
	Kind        string // "uniform_buffer", "sampled_image", "storage_buffer", ...
	Count       uint32
	StageFlags  uint32
}

// PipelineDescriptor describes a graphics/compute pipeline's creation
// parameters, built from a shader reflection table.
type PipelineDescriptor struct {
	VertexSPIRV   []byte
	FragmentSPIRV []byte
	ComputeSPIRV  []byte
	Layouts       []DescriptorSetLayoutDescriptor
	CullMode      uint8
	Topology      uint8
}

// RenderPassDescriptor describes a render pass's attachments.
type RenderPassDescriptor struct {
	ColorFormats []ImageFormat
	DepthFormat  ImageFormat
	HasDepth     bool
	Samples      uint32
}

// AccelerationStructureDescriptor describes a BLAS/TLAS build.
type AccelerationStructureDescriptor struct {
	IsTopLevel   bool
	GeometryRefs []uint64
}

// CommandPoolDescriptor describes a command pool's queue family and flags.
type CommandPoolDescriptor struct {
	QueueFamilyIndex uint32
	Transient        bool
}
