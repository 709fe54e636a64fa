//go:build vulkan

package vk

import (
	"fmt"

	vkc "github.com/goki/vulkan"

	"github.com/vixen-gfx/vixen/gpu"
)

// commandBufferState tracks a command buffer's recording lifecycle. No
// render-pass states exist in this headless backend.
type commandBufferState int

const (
	commandBufferReady commandBufferState = iota
	commandBufferRecording
	commandBufferRecordingEnded
	commandBufferSubmitted
	commandBufferNotAllocated
)

// commandRecorder implements gpu.CommandRecorder by recording into one
// primary command buffer allocated from the backend's graphics command
// pool.
//
// The state machine runs ready -> recording -> ended -> submitted, with
// CopyBuffer/CopyBufferToImage/BindPipeline/
// BindDescriptorSet/WriteTimestamp as the operations gpu.Backend
// actually needs recorded.
type commandRecorder struct {
	backend *Backend
	handle  vkc.CommandBuffer
	state   commandBufferState
}

func (c *commandRecorder) isHandle() {}

func allocateCommandBuffer(b *Backend) (*commandRecorder, error) {
	d := b.device
	allocInfo := vkc.CommandBufferAllocateInfo{
		SType:              vkc.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vkc.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	allocInfo.Deref()

	buffers := make([]vkc.CommandBuffer, 1)
	if err := d.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vkc.AllocateCommandBuffers(d.logicalDevice, &allocInfo, buffers); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("vk: allocate command buffer: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	cb := &commandRecorder{backend: b, handle: buffers[0], state: commandBufferReady}

	beginInfo := vkc.CommandBufferBeginInfo{
		SType: vkc.StructureTypeCommandBufferBeginInfo,
	}
	beginInfo.Deref()
	if res := vkc.BeginCommandBuffer(cb.handle, &beginInfo); !VulkanResultIsSuccess(res) {
		return nil, fmt.Errorf("vk: begin command buffer: %s", VulkanResultString(res, true))
	}
	cb.state = commandBufferRecording
	return cb, nil
}

func (c *commandRecorder) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	c.backend.mu.Lock()
	srcBuf := c.backend.buffers[src]
	dstBuf := c.backend.buffers[dst]
	c.backend.mu.Unlock()
	if srcBuf == nil || dstBuf == nil {
		return
	}
	region := vkc.BufferCopy{SrcOffset: vkc.DeviceSize(srcOffset), DstOffset: vkc.DeviceSize(dstOffset), Size: vkc.DeviceSize(size)}
	vkc.CmdCopyBuffer(c.handle, srcBuf.handle, dstBuf.handle, 1, []vkc.BufferCopy{region})
}

func (c *commandRecorder) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle) {
	c.backend.mu.Lock()
	srcBuf := c.backend.buffers[src]
	dstImg := c.backend.images[dst]
	c.backend.mu.Unlock()
	if srcBuf == nil || dstImg == nil {
		return
	}
	region := vkc.BufferImageCopy{
		ImageSubresource: vkc.ImageSubresourceLayers{AspectMask: vkc.ImageAspectFlags(vkc.ImageAspectColorBit), LayerCount: 1},
		ImageExtent:      vkc.Extent3D{Width: dstImg.width, Height: dstImg.height, Depth: 1},
	}
	vkc.CmdCopyBufferToImage(c.handle, srcBuf.handle, dstImg.handle, vkc.ImageLayoutTransferDstOptimal, 1, []vkc.BufferImageCopy{region})
}

func (c *commandRecorder) BindPipeline(p gpu.PipelineHandle) {
	// Pipeline binding is a no-op in this adapter: concrete pipeline
	// creation is out of core scope (see backend.go CreatePipeline), so
	// there is no real vk.Pipeline to bind yet.
}

func (c *commandRecorder) BindDescriptorSet(set gpu.DescriptorSetHandle) {}

func (c *commandRecorder) WriteTimestamp(queryIndex uint32) {
	pool := c.backend.timestampPool
	if pool == nil {
		return
	}
	vkc.CmdWriteTimestamp(c.handle, vkc.PipelineStageTopOfPipeBit, pool, queryIndex)
}

func (c *commandRecorder) End() error {
	if res := vkc.EndCommandBuffer(c.handle); !VulkanResultIsSuccess(res) {
		return fmt.Errorf("vk: end command buffer: %s", VulkanResultString(res, true))
	}
	c.state = commandBufferRecordingEnded
	return nil
}

func (c *commandRecorder) free() {
	vkc.FreeCommandBuffers(c.backend.device.logicalDevice, c.backend.device.commandPool, 1, []vkc.CommandBuffer{c.handle})
}
