//go:build vulkan

package vk

import (
	"fmt"

	vkc "github.com/goki/vulkan"

	"github.com/vixen-gfx/vixen/gpu"
)

type buffer struct {
	handle vkc.Buffer
	memory vkc.DeviceMemory
	size   uint64
}

// createBuffer allocates a buffer and binds device memory satisfying
// location, mirroring the memory-requirements/find-index/allocate/bind
// sequence of image creation below.
// Buffer allocation follows the same requirements-query/allocate/bind
// sequence image allocation uses, substituting vkCreateBuffer/
// vkGetBufferMemoryRequirements/vkBindBufferMemory for the image
// counterparts.
func (b *Backend) createBuffer(desc gpu.BufferDescriptor) (*buffer, error) {
	usage := vkc.BufferUsageFlags(0)
	if desc.Usage&gpu.BufferUsageTransferSrc != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageTransferSrcBit)
	}
	if desc.Usage&gpu.BufferUsageTransferDst != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageTransferDstBit)
	}
	if desc.Usage&gpu.BufferUsageUniform != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageUniformBufferBit)
	}
	if desc.Usage&gpu.BufferUsageStorage != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageStorageBufferBit)
	}
	if desc.Usage&gpu.BufferUsageVertex != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageVertexBufferBit)
	}
	if desc.Usage&gpu.BufferUsageIndex != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageIndexBufferBit)
	}
	if desc.Usage&gpu.BufferUsageIndirect != 0 {
		usage |= vkc.BufferUsageFlags(vkc.BufferUsageIndirectBufferBit)
	}

	createInfo := vkc.BufferCreateInfo{
		SType:       vkc.StructureTypeBufferCreateInfo,
		Size:        vkc.DeviceSize(desc.SizeBytes),
		Usage:       usage,
		SharingMode: vkc.SharingModeExclusive,
	}
	createInfo.Deref()

	var handle vkc.Buffer
	if err := b.locks.SafeCall(ResourceManagement, func() error {
		if res := vkc.CreateBuffer(b.device.logicalDevice, &createInfo, b.device.allocator, &handle); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("vk: create buffer: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var requirements vkc.MemoryRequirements
	vkc.GetBufferMemoryRequirements(b.device.logicalDevice, handle, &requirements)
	requirements.Deref()

	propertyFlags := uint32(vkc.MemoryPropertyDeviceLocalBit)
	if desc.Location == gpu.MemoryHostVisible {
		propertyFlags = uint32(vkc.MemoryPropertyHostVisibleBit) | uint32(vkc.MemoryPropertyHostCoherentBit)
	} else if desc.Location == gpu.MemoryDeviceLocalHostVisible {
		propertyFlags = uint32(vkc.MemoryPropertyDeviceLocalBit) | uint32(vkc.MemoryPropertyHostVisibleBit) | uint32(vkc.MemoryPropertyHostCoherentBit)
	}

	memType := b.device.findMemoryIndex(requirements.MemoryTypeBits, propertyFlags)
	if memType == -1 {
		vkc.DestroyBuffer(b.device.logicalDevice, handle, b.device.allocator)
		return nil, fmt.Errorf("vk: no memory type satisfies buffer requirements")
	}

	allocInfo := vkc.MemoryAllocateInfo{
		SType:           vkc.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memType),
	}
	var mem vkc.DeviceMemory
	if res := vkc.AllocateMemory(b.device.logicalDevice, &allocInfo, b.device.allocator, &mem); !VulkanResultIsSuccess(res) {
		vkc.DestroyBuffer(b.device.logicalDevice, handle, b.device.allocator)
		return nil, fmt.Errorf("vk: allocate buffer memory: %s", VulkanResultString(res, true))
	}

	if res := vkc.BindBufferMemory(b.device.logicalDevice, handle, mem, 0); !VulkanResultIsSuccess(res) {
		vkc.FreeMemory(b.device.logicalDevice, mem, b.device.allocator)
		vkc.DestroyBuffer(b.device.logicalDevice, handle, b.device.allocator)
		return nil, fmt.Errorf("vk: bind buffer memory: %s", VulkanResultString(res, true))
	}

	return &buffer{handle: handle, memory: mem, size: desc.SizeBytes}, nil
}

func (b *Backend) destroyBuffer(buf *buffer) {
	if buf == nil {
		return
	}
	b.locks.SafeCall(ResourceManagement, func() error {
		if buf.memory != nil {
			vkc.FreeMemory(b.device.logicalDevice, buf.memory, b.device.allocator)
		}
		if buf.handle != nil {
			vkc.DestroyBuffer(b.device.logicalDevice, buf.handle, b.device.allocator)
		}
		return nil
	})
}
