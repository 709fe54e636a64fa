// Package gpu defines the abstract GPU backend contract the render-graph
// core issues requests against. The core never imports a concrete graphics
// API: everything in this package is a pure Go interface over opaque
// handle types, with no graphics-API import. A concrete implementation
// (internal/vk) adapts a real API onto Backend; core code and tests use a
// fake.
package gpu

import "context"

// Handle is the opaque marker every GPU-owned object satisfies. It carries
// no methods beyond the marker itself: a Backend implementation is free to
// wrap a real API handle in whatever concrete struct it wants, and core
// code never inspects the handle's shape, only passes it back to the
// Backend that produced it.
type Handle interface {
	isHandle()
}

// BufferHandle identifies a GPU buffer allocation.
type BufferHandle struct{ id uint64 }

func (BufferHandle) isHandle() {}

// ImageHandle identifies a GPU image allocation.
type ImageHandle struct{ id uint64 }

func (ImageHandle) isHandle() {}

// SamplerHandle identifies a sampler object.
type SamplerHandle struct{ id uint64 }

func (SamplerHandle) isHandle() {}

// PipelineHandle identifies a compiled pipeline (graphics, compute, or
// ray-tracing).
type PipelineHandle struct{ id uint64 }

func (PipelineHandle) isHandle() {}

// DescriptorSetHandle identifies a bound descriptor set.
type DescriptorSetHandle struct{ id uint64 }

func (DescriptorSetHandle) isHandle() {}

// AccelerationStructureHandle identifies a ray-tracing acceleration
// structure.
type AccelerationStructureHandle struct{ id uint64 }

func (AccelerationStructureHandle) isHandle() {}

// CommandBufferHandle identifies a recorded (or recording) command buffer.
type CommandBufferHandle struct{ id uint64 }

func (CommandBufferHandle) isHandle() {}

// The New*Handle constructors below build the above handle types from a
// backend-chosen id. Exported so a Backend implementation outside this package (such as
// internal/vk) can mint handles without the gpu package needing to know
// about it; the zero value of id is reserved and never returned by a real
// allocation.
func NewBufferHandle(id uint64) BufferHandle { return BufferHandle{id} }
func NewImageHandle(id uint64) ImageHandle   { return ImageHandle{id} }
func NewSamplerHandle(id uint64) SamplerHandle { return SamplerHandle{id} }
func NewPipelineHandle(id uint64) PipelineHandle { return PipelineHandle{id} }
func NewDescriptorSetHandle(id uint64) DescriptorSetHandle { return DescriptorSetHandle{id} }
func NewAccelerationStructureHandle(id uint64) AccelerationStructureHandle {
	return AccelerationStructureHandle{id}
}
func NewCommandBufferHandle(id uint64) CommandBufferHandle { return CommandBufferHandle{id} }

// MemoryLocation hints where a buffer or image allocation should live.
type MemoryLocation int

const (
	// MemoryDeviceLocal is fast device-local memory, not CPU-visible.
	MemoryDeviceLocal MemoryLocation = iota
	// MemoryHostVisible is CPU-visible memory, used for staging and
	// readback.
	MemoryHostVisible
	// MemoryDeviceLocalHostVisible is the rare resizable-BAR / ReBAR style
	// memory that is both, when the device reports it available.
	MemoryDeviceLocalHostVisible
)

// BufferDescriptor describes a buffer allocation request.
type BufferDescriptor struct {
	SizeBytes uint64
	Usage     BufferUsage
	Location  MemoryLocation
	Alignment uint64 // 0 means "backend default"
}

// BufferUsage is a bitmask of how a buffer will be used, independent of any
// concrete graphics API's own usage-flag type.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageIndirect
)

// ImageDescriptor describes an image allocation request.
type ImageDescriptor struct {
	Width, Height, Depth uint32
	MipLevels            uint32
	ArrayLayers          uint32
	Format               string // backend-defined format token, e.g. "rgba8-unorm"
	Usage                ImageUsage
	Location             MemoryLocation
}

// ImageUsage is a bitmask of how an image will be used.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

// MemoryBudget reports the device's current memory pressure for one
// MemoryLocation, consulted by vixen/staging when sizing its pools.
type MemoryBudget struct {
	BudgetBytes    uint64
	UsageBytes     uint64
	AllocationSize uint64 // smallest preferred allocation granularity
}

// TimelineSemaphore is a GPU/CPU synchronization primitive whose wait
// value monotonically increases; batched uploads (vixen/staging) wait on a
// target value rather than a binary signal/unsignal pair.
type TimelineSemaphore interface {
	Handle
	// Signal schedules a GPU-side signal of value on the timeline.
	Signal(value uint64)
	// CompletedValue returns the highest value the timeline has reached so
	// far, without blocking.
	CompletedValue() (uint64, error)
	// Wait blocks until the timeline reaches value or ctx is cancelled.
	Wait(ctx context.Context, value uint64) error
}

// CommandRecorder is the interface a Backend hands back for recording one
// command buffer's worth of work. Backend.Begin returns one; Backend.Submit
// consumes it.
type CommandRecorder interface {
	Handle
	CopyBuffer(src, dst BufferHandle, srcOffset, dstOffset, size uint64)
	CopyBufferToImage(src BufferHandle, dst ImageHandle)
	BindPipeline(p PipelineHandle)
	BindDescriptorSet(set DescriptorSetHandle)
	WriteTimestamp(queryIndex uint32)
	End() error
}

// SubmitInfo describes one command-buffer submission.
type SubmitInfo struct {
	Commands    CommandRecorder
	WaitOn      TimelineSemaphore
	WaitValue   uint64
	SignalOn    TimelineSemaphore
	SignalValue uint64
}

// Backend is the abstract GPU device contract. Every method that touches
// the device is safe to call from any goroutine unless documented
// otherwise; a concrete implementation is responsible for its own internal
// synchronization.
type Backend interface {
	// CreateBuffer/DestroyBuffer, CreateImage/DestroyImage, CreateSampler/
	// DestroySampler, CreatePipeline/DestroyPipeline, and
	// CreateDescriptorSet/DestroyDescriptorSet manage the lifetime of their
	// respective resource kind. Destroy on an unknown or already-destroyed
	// handle is a documented no-op, not an error (mirrors defer-style
	// cleanup idempotence elsewhere in the runtime).
	CreateBuffer(desc BufferDescriptor) (BufferHandle, error)
	DestroyBuffer(h BufferHandle)

	CreateImage(desc ImageDescriptor) (ImageHandle, error)
	DestroyImage(h ImageHandle)

	CreateSampler() (SamplerHandle, error)
	DestroySampler(h SamplerHandle)

	CreatePipeline(descriptor any) (PipelineHandle, error)
	DestroyPipeline(h PipelineHandle)

	CreateDescriptorSet(layout any) (DescriptorSetHandle, error)
	DestroyDescriptorSet(h DescriptorSetHandle)

	CreateAccelerationStructure(descriptor any) (AccelerationStructureHandle, error)
	DestroyAccelerationStructure(h AccelerationStructureHandle)

	// CreateTimelineSemaphore allocates a new timeline, initialized to
	// value 0.
	CreateTimelineSemaphore() (TimelineSemaphore, error)

	// Begin starts recording a new command buffer.
	Begin() (CommandRecorder, error)

	// Submit enqueues one recorded command buffer for execution, signaling
	// info.SignalOn at info.SignalValue once complete.
	Submit(info SubmitInfo) error

	// MapBuffer returns a CPU-visible slice backing h, valid until
	// UnmapBuffer is called. h must have been created with
	// MemoryHostVisible or MemoryDeviceLocalHostVisible location.
	MapBuffer(h BufferHandle) ([]byte, error)
	UnmapBuffer(h BufferHandle)

	// QueryMemoryBudget reports current pressure for loc, consulted by
	// vixen/staging.
	QueryMemoryBudget(loc MemoryLocation) (MemoryBudget, error)

	// QueryTimestamp resolves a timestamp query written by
	// CommandRecorder.WriteTimestamp, in nanoseconds since an
	// implementation-defined epoch (only deltas between two calls are
	// meaningful).
	QueryTimestamp(queryIndex uint32) (uint64, error)
}
