//go:build vulkan

package vk

import (
	"fmt"

	vkc "github.com/goki/vulkan"

	"github.com/vixen-gfx/vixen/gpu"
)

type image struct {
	handle vkc.Image
	memory vkc.DeviceMemory
	width  uint32
	height uint32
}

// createImage allocates a 2D image and binds device-local memory to it.
// Mip/layer counts come from the caller-supplied gpu.ImageDescriptor, which
// has no sample count; the sample count is always 1. No image view is created here; the abstract backend
// contract has no ImageView concept of its own, so a node author samples
// an image via its descriptor, not a raw view handle.
func (b *Backend) createImage(desc gpu.ImageDescriptor) (*image, error) {
	usage := vkc.ImageUsageFlags(0)
	if desc.Usage&gpu.ImageUsageSampled != 0 {
		usage |= vkc.ImageUsageFlags(vkc.ImageUsageSampledBit)
	}
	if desc.Usage&gpu.ImageUsageStorage != 0 {
		usage |= vkc.ImageUsageFlags(vkc.ImageUsageStorageBit)
	}
	if desc.Usage&gpu.ImageUsageColorAttachment != 0 {
		usage |= vkc.ImageUsageFlags(vkc.ImageUsageColorAttachmentBit)
	}
	if desc.Usage&gpu.ImageUsageDepthStencilAttachment != 0 {
		usage |= vkc.ImageUsageFlags(vkc.ImageUsageDepthStencilAttachmentBit)
	}
	if desc.Usage&gpu.ImageUsageTransferSrc != 0 {
		usage |= vkc.ImageUsageFlags(vkc.ImageUsageTransferSrcBit)
	}
	if desc.Usage&gpu.ImageUsageTransferDst != 0 {
		usage |= vkc.ImageUsageFlags(vkc.ImageUsageTransferDstBit)
	}

	depth := desc.Depth
	if depth == 0 {
		depth = 1
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}

	createInfo := vkc.ImageCreateInfo{
		SType:     vkc.StructureTypeImageCreateInfo,
		ImageType: vkc.ImageType2d,
		Extent:    vkc.Extent3D{Width: desc.Width, Height: desc.Height, Depth: depth},
		MipLevels: mips, ArrayLayers: layers,
		Format:        formatFromToken(desc.Format),
		Tiling:        vkc.ImageTilingOptimal,
		InitialLayout: vkc.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vkc.SampleCount1Bit,
		SharingMode:   vkc.SharingModeExclusive,
	}
	createInfo.Deref()

	var handle vkc.Image
	if err := b.locks.SafeCall(ResourceManagement, func() error {
		if res := vkc.CreateImage(b.device.logicalDevice, &createInfo, b.device.allocator, &handle); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("vk: create image: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var requirements vkc.MemoryRequirements
	vkc.GetImageMemoryRequirements(b.device.logicalDevice, handle, &requirements)
	requirements.Deref()

	memType := b.device.findMemoryIndex(requirements.MemoryTypeBits, uint32(vkc.MemoryPropertyDeviceLocalBit))
	if memType == -1 {
		vkc.DestroyImage(b.device.logicalDevice, handle, b.device.allocator)
		return nil, fmt.Errorf("vk: no memory type satisfies image requirements")
	}

	allocInfo := vkc.MemoryAllocateInfo{
		SType:           vkc.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memType),
	}
	var mem vkc.DeviceMemory
	if res := vkc.AllocateMemory(b.device.logicalDevice, &allocInfo, b.device.allocator, &mem); !VulkanResultIsSuccess(res) {
		vkc.DestroyImage(b.device.logicalDevice, handle, b.device.allocator)
		return nil, fmt.Errorf("vk: allocate image memory: %s", VulkanResultString(res, true))
	}
	if res := vkc.BindImageMemory(b.device.logicalDevice, handle, mem, 0); !VulkanResultIsSuccess(res) {
		vkc.FreeMemory(b.device.logicalDevice, mem, b.device.allocator)
		vkc.DestroyImage(b.device.logicalDevice, handle, b.device.allocator)
		return nil, fmt.Errorf("vk: bind image memory: %s", VulkanResultString(res, true))
	}

	return &image{handle: handle, memory: mem, width: desc.Width, height: desc.Height}, nil
}

func (b *Backend) destroyImage(img *image) {
	if img == nil {
		return
	}
	b.locks.SafeCall(ResourceManagement, func() error {
		if img.memory != nil {
			vkc.FreeMemory(b.device.logicalDevice, img.memory, b.device.allocator)
		}
		if img.handle != nil {
			vkc.DestroyImage(b.device.logicalDevice, img.handle, b.device.allocator)
		}
		return nil
	})
}

// formatFromToken maps gpu.ImageDescriptor's backend-neutral format string
// onto a concrete vk.Format. Unrecognized tokens default to an 8-bit RGBA
// format (a documented simplification: the abstract gpu.Backend contract
// leaves format negotiation to the caller, and shader/pixel-format
// management is explicitly out of core scope).
func formatFromToken(token string) vkc.Format {
	switch token {
	case "rgba8-unorm":
		return vkc.FormatR8g8b8a8Unorm
	case "bgra8-unorm":
		return vkc.FormatB8g8r8a8Unorm
	case "rgba16-sfloat":
		return vkc.FormatR16g16b16a16Sfloat
	case "rgba32-sfloat":
		return vkc.FormatR32g32b32a32Sfloat
	case "d32-sfloat":
		return vkc.FormatD32Sfloat
	default:
		return vkc.FormatR8g8b8a8Unorm
	}
}
