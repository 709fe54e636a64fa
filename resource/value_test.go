package resource_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/resource"
)

func TestNewRejectsInvalidTag(t *testing.T) {
	_, err := resource.New(resource.Tag(250), nil, resource.Transient, resource.DeviceLocal)
	require.Error(t, err)
}

func TestDescriptorMutationLockedOutsideSetupCompile(t *testing.T) {
	v, err := resource.New(resource.TagBuffer, resource.BufferDescriptor{SizeBytes: 1024}, resource.Transient, resource.DeviceLocal)
	require.NoError(t, err)

	require.NoError(t, v.SetDescriptor(resource.BufferDescriptor{SizeBytes: 2048}))

	v.Lock()
	err = v.SetDescriptor(resource.BufferDescriptor{SizeBytes: 4096})
	assert.ErrorIs(t, err, resource.ErrDescriptorLocked)
}

func TestNotReadyBeforePublish(t *testing.T) {
	v, err := resource.New(resource.TagBuffer, resource.BufferDescriptor{SizeBytes: 16}, resource.Transient, resource.DeviceLocal)
	require.NoError(t, err)

	_, err = v.GetDescriptorHandle()
	assert.ErrorIs(t, err, resource.ErrNotReady)
	assert.False(t, v.Ready())
}

func TestPublishTypeMismatch(t *testing.T) {
	v, err := resource.New(resource.TagBuffer, resource.BufferDescriptor{SizeBytes: 16}, resource.Transient, resource.DeviceLocal)
	require.NoError(t, err)

	err = v.Publish(resource.TagImage, struct{}{})
	assert.True(t, errors.Is(err, resource.ErrTypeMismatch))
}

// TestLazyHandleExtraction: after invalidating an upstream resource and
// re-publishing it, the next GetDescriptorHandle call observes the new
// handle; the extractor's projection is never cached.
func TestLazyHandleExtraction(t *testing.T) {
	v, err := resource.New(resource.TagGenericHandle, nil, resource.Persistent, resource.DeviceLocal)
	require.NoError(t, err)

	calls := 0
	v.SetExtractor(func(handle any, _ any) (any, error) {
		calls++
		return handle.(int) * 10, nil
	})

	require.NoError(t, v.Publish(resource.TagGenericHandle, 1))
	got, err := v.GetDescriptorHandle()
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	// Simulate SwapChainInvalidated -> consumer must not see the old handle.
	v.Invalidate()
	_, err = v.GetDescriptorHandle()
	assert.ErrorIs(t, err, resource.ErrNotReady)

	require.NoError(t, v.Publish(resource.TagGenericHandle, 2))
	got, err = v.GetDescriptorHandle()
	require.NoError(t, err)
	assert.Equal(t, 20, got, "must reflect the newly published handle, not a stale snapshot")
	assert.Equal(t, 2, calls, "extractor must be invoked again, not cached")
}

func TestValidateRejectsZeroExtent(t *testing.T) {
	err := resource.Validate(resource.TagImage, resource.ImageDescriptor{})
	assert.ErrorIs(t, err, resource.ErrInvalidDescriptor)
}

func TestValidateAcceptsWellFormedImage(t *testing.T) {
	err := resource.Validate(resource.TagImage, resource.ImageDescriptor{
		Extent:      resource.Extent3D{Width: 1920, Height: 1080, Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     1,
	})
	assert.NoError(t, err)
}

func TestValidateUnknownTagLookupFailure(t *testing.T) {
	err := resource.Validate(resource.Tag(200), nil)
	assert.ErrorIs(t, err, resource.ErrUnknownTag)
}
