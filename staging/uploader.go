package staging

import (
	"context"
	"fmt"
	"sync"

	"github.com/vixen-gfx/vixen/gpu"
)

// UploadRequest describes one pending copy into device-local memory.
type UploadRequest struct {
	Dest   gpu.BufferHandle
	Offset uint64
	Data   []byte
}

// UploadTicket is returned by Enqueue for each request; Wait blocks until
// the flushed batch containing that request has completed on the GPU.
type UploadTicket struct {
	semaphore   gpu.TimelineSemaphore
	targetValue uint64
}

// Wait blocks until this upload's timeline value has been reached or ctx is
// cancelled.
func (t UploadTicket) Wait(ctx context.Context) error {
	if t.semaphore == nil {
		return nil
	}
	return t.semaphore.Wait(ctx, t.targetValue)
}

// Uploader accumulates UploadRequests and submits them as one batched copy
// pass on Flush, pulling staging chunks from a Pool and signaling a
// timeline semaphore per batch.
type Uploader struct {
	backend gpu.Backend
	pool    *Pool
	sem     gpu.TimelineSemaphore

	mu       sync.Mutex
	pending  []UploadRequest
	nextTick uint64
}

// NewUploader constructs an Uploader against backend and pool, creating its
// own timeline semaphore used to signal every batch this Uploader submits.
func NewUploader(backend gpu.Backend, pool *Pool) (*Uploader, error) {
	sem, err := backend.CreateTimelineSemaphore()
	if err != nil {
		return nil, fmt.Errorf("staging: create uploader timeline: %w", err)
	}
	return &Uploader{backend: backend, pool: pool, sem: sem}, nil
}

// Enqueue adds req to the pending batch, returning the UploadTicket that
// will resolve once the batch containing it completes. The ticket is valid
// immediately but only resolves after the caller calls Flush.
func (u *Uploader) Enqueue(req UploadRequest) UploadTicket {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = append(u.pending, req)
	u.nextTick++
	return UploadTicket{semaphore: u.sem, targetValue: u.nextTick}
}

// Flush records and submits one command buffer copying every pending
// request's data into its destination buffer via a staging chunk, then
// clears the pending batch. Staging chunks are released back to the pool
// once the backend reports the submission is recorded; chunk lifetime
// belongs to the uploader, not the pool.
func (u *Uploader) Flush(ctx context.Context) error {
	u.mu.Lock()
	batch := u.pending
	u.pending = nil
	tick := u.nextTick
	u.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	recorder, err := u.backend.Begin()
	if err != nil {
		return fmt.Errorf("staging: begin upload batch: %w", err)
	}

	var chunks []*chunk
	defer func() {
		for _, c := range chunks {
			u.pool.Release(c)
		}
	}()

	for _, req := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c, err := u.pool.Acquire(uint64(len(req.Data)))
		if err != nil {
			return fmt.Errorf("staging: acquire chunk: %w", err)
		}
		chunks = append(chunks, c)

		dst, err := u.backend.MapBuffer(c.Buffer())
		if err != nil {
			return fmt.Errorf("staging: map chunk: %w", err)
		}
		copy(dst, req.Data)
		u.backend.UnmapBuffer(c.Buffer())

		recorder.CopyBuffer(c.Buffer(), req.Dest, 0, req.Offset, uint64(len(req.Data)))
	}

	if err := recorder.End(); err != nil {
		return fmt.Errorf("staging: end upload batch: %w", err)
	}

	return u.backend.Submit(gpu.SubmitInfo{
		Commands:    recorder,
		SignalOn:    u.sem,
		SignalValue: tick,
	})
}

// Pending reports how many requests are currently queued, awaiting Flush.
func (u *Uploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}
