package gpu

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Backend implementation used by tests and by core
// code running without a graphics device. It never touches a real API; all
// "memory" is a plain Go byte slice keyed by handle.
type Fake struct {
	mu      sync.Mutex
	nextID  uint64
	buffers map[BufferHandle][]byte
	budget  MemoryBudget
}

// NewFake constructs a Fake backend reporting budget for every
// QueryMemoryBudget call regardless of MemoryLocation.
func NewFake(budget MemoryBudget) *Fake {
	return &Fake{
		buffers: make(map[BufferHandle][]byte),
		budget:  budget,
	}
}

func (f *Fake) alloc() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *Fake) CreateBuffer(desc BufferDescriptor) (BufferHandle, error) {
	h := NewBufferHandle(f.alloc())
	f.mu.Lock()
	f.buffers[h] = make([]byte, desc.SizeBytes)
	f.mu.Unlock()
	return h, nil
}

func (f *Fake) DestroyBuffer(h BufferHandle) {
	f.mu.Lock()
	delete(f.buffers, h)
	f.mu.Unlock()
}

func (f *Fake) CreateImage(ImageDescriptor) (ImageHandle, error) {
	return NewImageHandle(f.alloc()), nil
}
func (f *Fake) DestroyImage(ImageHandle) {}

func (f *Fake) CreateSampler() (SamplerHandle, error) { return NewSamplerHandle(f.alloc()), nil }
func (f *Fake) DestroySampler(SamplerHandle)          {}

func (f *Fake) CreatePipeline(any) (PipelineHandle, error) {
	return NewPipelineHandle(f.alloc()), nil
}
func (f *Fake) DestroyPipeline(PipelineHandle) {}

func (f *Fake) CreateDescriptorSet(any) (DescriptorSetHandle, error) {
	return NewDescriptorSetHandle(f.alloc()), nil
}
func (f *Fake) DestroyDescriptorSet(DescriptorSetHandle) {}

func (f *Fake) CreateAccelerationStructure(any) (AccelerationStructureHandle, error) {
	return NewAccelerationStructureHandle(f.alloc()), nil
}
func (f *Fake) DestroyAccelerationStructure(AccelerationStructureHandle) {}

func (f *Fake) CreateTimelineSemaphore() (TimelineSemaphore, error) {
	return &fakeTimeline{}, nil
}

func (f *Fake) Begin() (CommandRecorder, error) {
	return &fakeRecorder{}, nil
}

func (f *Fake) Submit(info SubmitInfo) error {
	if info.SignalOn != nil {
		info.SignalOn.Signal(info.SignalValue)
	}
	return nil
}

func (f *Fake) MapBuffer(h BufferHandle) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.buffers[h]
	if !ok {
		return nil, fmt.Errorf("gpu: unknown buffer handle")
	}
	return data, nil
}

func (f *Fake) UnmapBuffer(BufferHandle) {}

func (f *Fake) QueryMemoryBudget(MemoryLocation) (MemoryBudget, error) {
	return f.budget, nil
}

func (f *Fake) QueryTimestamp(uint32) (uint64, error) { return 0, nil }

// fakeTimeline is a TimelineSemaphore backed by a mutex and a
// closed-on-every-signal broadcast channel; its Signal is synchronous since
// the Fake backend has no real queue to defer to.
type fakeTimeline struct {
	mu        sync.Mutex
	completed uint64
	changed   chan struct{}
}

func (t *fakeTimeline) isHandle() {}

func (t *fakeTimeline) Signal(value uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if value > t.completed {
		t.completed = value
	}
	if t.changed != nil {
		close(t.changed)
		t.changed = nil
	}
}

func (t *fakeTimeline) CompletedValue() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, nil
}

func (t *fakeTimeline) Wait(ctx context.Context, value uint64) error {
	for {
		t.mu.Lock()
		if t.completed >= value {
			t.mu.Unlock()
			return nil
		}
		if t.changed == nil {
			t.changed = make(chan struct{})
		}
		wait := t.changed
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type fakeRecorder struct{}

func (r *fakeRecorder) isHandle() {}
func (r *fakeRecorder) CopyBuffer(src, dst BufferHandle, srcOffset, dstOffset, size uint64) {}
func (r *fakeRecorder) CopyBufferToImage(src BufferHandle, dst ImageHandle)                 {}
func (r *fakeRecorder) BindPipeline(p PipelineHandle)                                       {}
func (r *fakeRecorder) BindDescriptorSet(set DescriptorSetHandle)                           {}
func (r *fakeRecorder) WriteTimestamp(queryIndex uint32)                                    {}
func (r *fakeRecorder) End() error                                                          { return nil }
