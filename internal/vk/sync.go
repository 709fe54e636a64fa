//go:build vulkan

package vk

import (
	"context"
	"fmt"

	vkc "github.com/goki/vulkan"

	"github.com/vixen-gfx/vixen/gpu"
)

// timelineSemaphore implements gpu.TimelineSemaphore over a Vulkan 1.2
// core timeline semaphore (VkSemaphore created with
// VkSemaphoreTypeCreateInfo{semaphoreType: VK_SEMAPHORE_TYPE_TIMELINE}).
// The monotonically increasing value lets one semaphore order many
// batched-upload submissions where a binary semaphore would need one
// object per submission.
type timelineSemaphore struct {
	device *device
	handle vkc.Semaphore
}

func (t *timelineSemaphore) isHandle() {}

func newTimelineSemaphore(d *device) (*timelineSemaphore, error) {
	typeInfo := vkc.SemaphoreTypeCreateInfo{
		SType:         vkc.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vkc.SemaphoreTypeTimeline,
		InitialValue:  0,
	}
	typeInfo.Deref()

	createInfo := vkc.SemaphoreCreateInfo{
		SType: vkc.StructureTypeSemaphoreCreateInfo,
		PNext: &typeInfo,
	}
	createInfo.Deref()

	var handle vkc.Semaphore
	if res := vkc.CreateSemaphore(d.logicalDevice, &createInfo, d.allocator, &handle); !VulkanResultIsSuccess(res) {
		return nil, fmt.Errorf("vk: create timeline semaphore: %s", VulkanResultString(res, true))
	}
	return &timelineSemaphore{device: d, handle: handle}, nil
}

func (t *timelineSemaphore) Signal(value uint64) {
	info := vkc.SemaphoreSignalInfo{
		SType:     vkc.StructureTypeSemaphoreSignalInfo,
		Semaphore: t.handle,
		Value:     value,
	}
	info.Deref()
	vkc.SignalSemaphore(t.device.logicalDevice, &info)
}

func (t *timelineSemaphore) CompletedValue() (uint64, error) {
	var value uint64
	if res := vkc.GetSemaphoreCounterValue(t.device.logicalDevice, t.handle, &value); !VulkanResultIsSuccess(res) {
		return 0, fmt.Errorf("vk: get semaphore counter value: %s", VulkanResultString(res, true))
	}
	return value, nil
}

func (t *timelineSemaphore) Wait(ctx context.Context, value uint64) error {
	waitInfo := vkc.SemaphoreWaitInfo{
		SType:          vkc.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    []vkc.Semaphore{t.handle},
		PValues:        []uint64{value},
	}
	waitInfo.Deref()

	const pollInterval = uint64(1_000_000) // 1ms, so ctx cancellation is observed promptly
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := vkc.WaitSemaphores(t.device.logicalDevice, &waitInfo, pollInterval)
		if res == vkc.Success {
			return nil
		}
		if res != vkc.Timeout {
			return fmt.Errorf("vk: wait semaphore: %s", VulkanResultString(res, true))
		}
	}
}

func (t *timelineSemaphore) destroy() {
	if t.handle != nil {
		vkc.DestroySemaphore(t.device.logicalDevice, t.handle, t.device.allocator)
		t.handle = nil
	}
}

var _ gpu.TimelineSemaphore = (*timelineSemaphore)(nil)
