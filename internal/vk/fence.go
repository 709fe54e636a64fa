//go:build vulkan

package vk

import (
	"fmt"

	vkc "github.com/goki/vulkan"
)

// fence wraps a vk.Fence. Backend.Submit does not use it: it submits with
// no fence and tracks completion through SubmitInfo.SignalOn.
type fence struct {
	handle     vkc.Fence
	isSignaled bool
}

func newFence(d *device, createSignaled bool) (*fence, error) {
	f := &fence{isSignaled: createSignaled}
	createInfo := vkc.FenceCreateInfo{SType: vkc.StructureTypeFenceCreateInfo}
	if createSignaled {
		createInfo.Flags = vkc.FenceCreateFlags(vkc.FenceCreateSignaledBit)
	}
	createInfo.Deref()

	var handle vkc.Fence
	if res := vkc.CreateFence(d.logicalDevice, &createInfo, d.allocator, &handle); !VulkanResultIsSuccess(res) {
		return nil, fmt.Errorf("vk: create fence: %s", VulkanResultString(res, true))
	}
	f.handle = handle
	return f, nil
}

func (f *fence) wait(d *device, timeoutNs uint64) bool {
	if f.isSignaled {
		return true
	}
	result := vkc.WaitForFences(d.logicalDevice, 1, []vkc.Fence{f.handle}, vkc.True, timeoutNs)
	if result == vkc.Success {
		f.isSignaled = true
		return true
	}
	return false
}

func (f *fence) reset(d *device) error {
	if !f.isSignaled {
		return nil
	}
	if res := vkc.ResetFences(d.logicalDevice, 1, []vkc.Fence{f.handle}); res != vkc.Success {
		return fmt.Errorf("vk: reset fence: %s", VulkanResultString(res, true))
	}
	f.isSignaled = false
	return nil
}

func (f *fence) destroy(d *device) {
	if f.handle != nil {
		vkc.DestroyFence(d.logicalDevice, f.handle, d.allocator)
		f.handle = nil
	}
}
