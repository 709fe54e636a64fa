//go:build vulkan

package vk

import (
	"fmt"

	vkc "github.com/goki/vulkan"
)

// device wraps the physical/logical device pair and the queues the
// backend submits work to. It carries no swapchain-support or
// present-queue fields: internal/vk is a headless compute/transfer
// backend, so device selection only requires graphics, compute, and
// transfer queues.
type device struct {
	instance vkc.Instance
	allocator *vkc.AllocationCallbacks

	physicalDevice vkc.PhysicalDevice
	logicalDevice  vkc.Device

	graphicsQueueIndex uint32
	transferQueueIndex uint32
	computeQueueIndex  uint32

	graphicsQueue vkc.Queue
	transferQueue vkc.Queue
	computeQueue  vkc.Queue

	commandPool vkc.CommandPool

	properties vkc.PhysicalDeviceProperties
	memory     vkc.PhysicalDeviceMemoryProperties

	locks *lockPool
}

// selectPhysicalDevice enumerates available physical devices and picks the
// first one exposing graphics and transfer queue families (compute falls
// back to the graphics family), preferring a discrete GPU.
// No surface/present-support check runs: no vk.Surface exists in a
// headless backend, and the requirements collapse to the graphics and
// transfer queue families.
func selectPhysicalDevice(instance vkc.Instance) (vkc.PhysicalDevice, vkc.PhysicalDeviceProperties, vkc.PhysicalDeviceMemoryProperties, uint32, uint32, uint32, error) {
	var count uint32
	if res := vkc.EnumeratePhysicalDevices(instance, &count, nil); !VulkanResultIsSuccess(res) {
		return nil, vkc.PhysicalDeviceProperties{}, vkc.PhysicalDeviceMemoryProperties{}, 0, 0, 0, fmt.Errorf("vk: enumerate physical devices: %s", VulkanResultString(res, true))
	}
	if count == 0 {
		return nil, vkc.PhysicalDeviceProperties{}, vkc.PhysicalDeviceMemoryProperties{}, 0, 0, 0, fmt.Errorf("vk: no devices support Vulkan")
	}

	devices := make([]vkc.PhysicalDevice, count)
	if res := vkc.EnumeratePhysicalDevices(instance, &count, devices); !VulkanResultIsSuccess(res) {
		return nil, vkc.PhysicalDeviceProperties{}, vkc.PhysicalDeviceMemoryProperties{}, 0, 0, 0, fmt.Errorf("vk: enumerate physical devices: %s", VulkanResultString(res, true))
	}

	var bestDiscrete = -1
	var bestAny = -1
	queueInfo := make([]struct{ graphics, transfer, compute uint32 }, count)
	ok := make([]bool, count)

	for i, pd := range devices {
		var props vkc.PhysicalDeviceProperties
		vkc.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		var familyCount uint32
		vkc.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
		families := make([]vkc.QueueFamilyProperties, familyCount)
		vkc.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

		var hasGraphics, hasTransfer, hasCompute bool
		var info struct{ graphics, transfer, compute uint32 }
		for j := uint32(0); j < familyCount; j++ {
			families[j].Deref()
			flags := uint32(families[j].QueueFlags)
			if flags&uint32(vkc.QueueGraphicsBit) != 0 && !hasGraphics {
				info.graphics = j
				hasGraphics = true
			}
			if flags&uint32(vkc.QueueTransferBit) != 0 {
				info.transfer = j
				hasTransfer = true
			}
			if flags&uint32(vkc.QueueComputeBit) != 0 && !hasCompute {
				info.compute = j
				hasCompute = true
			}
		}
		if !hasGraphics || !hasTransfer {
			continue
		}
		if !hasCompute {
			info.compute = info.graphics
		}
		queueInfo[i] = info
		ok[i] = true
		if bestAny == -1 {
			bestAny = i
		}
		if props.DeviceType == vkc.PhysicalDeviceTypeDiscreteGpu && bestDiscrete == -1 {
			bestDiscrete = i
		}
	}

	chosen := bestDiscrete
	if chosen == -1 {
		chosen = bestAny
	}
	if chosen == -1 {
		return nil, vkc.PhysicalDeviceProperties{}, vkc.PhysicalDeviceMemoryProperties{}, 0, 0, 0, fmt.Errorf("vk: no physical device exposes graphics+transfer queues")
	}

	var props vkc.PhysicalDeviceProperties
	vkc.GetPhysicalDeviceProperties(devices[chosen], &props)
	props.Deref()

	var mem vkc.PhysicalDeviceMemoryProperties
	vkc.GetPhysicalDeviceMemoryProperties(devices[chosen], &mem)
	mem.Deref()

	info := queueInfo[chosen]
	return devices[chosen], props, mem, info.graphics, info.transfer, info.compute, nil
}

// createDevice selects a physical device, creates the logical device with
// one queue per distinct family index, and allocates a reset-capable
// command pool against the graphics queue family.
// No dynamic-rendering or portability-subset extension is requested;
// that pair exists to support windowed present, irrelevant here.
func createDevice(instance vkc.Instance, allocator *vkc.AllocationCallbacks, locks *lockPool) (*device, error) {
	pd, props, mem, graphicsIdx, transferIdx, computeIdx, err := selectPhysicalDevice(instance)
	if err != nil {
		return nil, err
	}

	indices := map[uint32]bool{graphicsIdx: true, transferIdx: true, computeIdx: true}
	queueInfos := make([]vkc.DeviceQueueCreateInfo, 0, len(indices))
	priority := []float32{1.0}
	for idx := range indices {
		queueInfos = append(queueInfos, vkc.DeviceQueueCreateInfo{
			SType:            vkc.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: priority,
		})
	}

	features := vkc.PhysicalDeviceFeatures{SamplerAnisotropy: vkc.True}
	createInfo := vkc.DeviceCreateInfo{
		SType:                vkc.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueInfos)),
		PQueueCreateInfos:    queueInfos,
		PEnabledFeatures:     []vkc.PhysicalDeviceFeatures{features},
	}
	createInfo.Deref()

	var logical vkc.Device
	if err := locks.SafeCall(DeviceManagement, func() error {
		if res := vkc.CreateDevice(pd, &createInfo, allocator, &logical); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("vk: create device: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	d := &device{
		instance:           instance,
		allocator:          allocator,
		physicalDevice:     pd,
		logicalDevice:      logical,
		graphicsQueueIndex: graphicsIdx,
		transferQueueIndex: transferIdx,
		computeQueueIndex:  computeIdx,
		properties:         props,
		memory:             mem,
		locks:              locks,
	}

	vkc.GetDeviceQueue(logical, graphicsIdx, 0, &d.graphicsQueue)
	vkc.GetDeviceQueue(logical, transferIdx, 0, &d.transferQueue)
	vkc.GetDeviceQueue(logical, computeIdx, 0, &d.computeQueue)

	poolInfo := vkc.CommandPoolCreateInfo{
		SType:            vkc.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: graphicsIdx,
		Flags:            vkc.CommandPoolCreateFlags(vkc.CommandPoolCreateResetCommandBufferBit),
	}
	poolInfo.Deref()
	if err := locks.SafeCall(ResourceManagement, func() error {
		if res := vkc.CreateCommandPool(logical, &poolInfo, allocator, &d.commandPool); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("vk: create command pool: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *device) destroy() {
	d.locks.SafeCall(ResourceManagement, func() error {
		vkc.DestroyCommandPool(d.logicalDevice, d.commandPool, d.allocator)
		return nil
	})
	d.locks.SafeCall(DeviceManagement, func() error {
		vkc.DestroyDevice(d.logicalDevice, d.allocator)
		return nil
	})
}

// findMemoryIndex returns the memory-type index satisfying typeFilter's bit
// mask and propertyFlags, or -1 if none qualifies.
func (d *device) findMemoryIndex(typeFilter uint32, propertyFlags uint32) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && uint32(d.memory.MemoryTypes[i].PropertyFlags)&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	return -1
}
