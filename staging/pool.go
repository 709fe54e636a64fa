// Package staging implements a fixed-tier staging buffer pool and a
// batched uploader: uploads to device-local memory go through a small set
// of reusable host-visible staging buffers rather than allocating (and
// mapping) a fresh buffer per upload.
package staging

import (
	"fmt"
	"sync"

	"github.com/vixen-gfx/vixen/gpu"
)

// Tier identifies one of the pool's three fixed chunk-size classes.
type Tier int

const (
	TierSmall Tier = iota
	TierMedium
	TierLarge
)

func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	default:
		return "unknown"
	}
}

// TierSizes gives each tier's chunk size in bytes. Callers needing more
// than TierLarge's chunk size in one upload should split the upload across
// multiple requests.
var TierSizes = map[Tier]uint64{
	TierSmall:  64 * 1024,
	TierMedium: 1 * 1024 * 1024,
	TierLarge:  16 * 1024 * 1024,
}

// defaultTierCounts pre-warms 4 small, 2 medium, and 2 large chunks.
var defaultTierCounts = map[Tier]int{
	TierSmall:  4,
	TierMedium: 2,
	TierLarge:  2,
}

// chunk is one pool-owned staging buffer.
type chunk struct {
	tier   Tier
	buffer gpu.BufferHandle
}

// GrowthWarner is invoked whenever Acquire must allocate a chunk beyond the
// tier's initial count because every pre-warmed chunk of that tier is
// currently checked out.
type GrowthWarner func(tier Tier, totalChunks int)

// Pool owns a fixed set of host-visible staging buffers per Tier,
// pre-warmed at construction and sized off the device's reported memory
// budget.
type Pool struct {
	backend gpu.Backend
	onGrow  GrowthWarner

	mu    sync.Mutex
	free  map[Tier][]*chunk
	total map[Tier]int
}

// NewPool constructs a Pool against backend, pre-allocating counts[tier]
// chunks per tier (falling back to defaultTierCounts for any tier not
// present in counts), scaled down if the backend's reported
// MemoryHostVisible budget cannot fit the requested counts at face value.
func NewPool(backend gpu.Backend, counts map[Tier]int, onGrow GrowthWarner) (*Pool, error) {
	p := &Pool{
		backend: backend,
		onGrow:  onGrow,
		free:    make(map[Tier][]*chunk),
		total:   make(map[Tier]int),
	}

	budget, err := backend.QueryMemoryBudget(gpu.MemoryHostVisible)
	if err != nil {
		return nil, fmt.Errorf("staging: query host-visible budget: %w", err)
	}

	for _, tier := range []Tier{TierSmall, TierMedium, TierLarge} {
		n := defaultTierCounts[tier]
		if v, ok := counts[tier]; ok {
			n = v
		}
		n = fitWithinBudget(n, TierSizes[tier], budget.BudgetBytes)
		for i := 0; i < n; i++ {
			c, err := p.allocChunk(tier)
			if err != nil {
				return nil, err
			}
			p.free[tier] = append(p.free[tier], c)
			p.total[tier]++
		}
	}
	return p, nil
}

// fitWithinBudget caps requested count so count*chunkSize never exceeds
// budgetBytes outright, leaving at least one chunk per tier if the budget
// is nonzero (a zero budget means "unknown," not "none," so requested is
// returned unchanged).
func fitWithinBudget(requested int, chunkSize, budgetBytes uint64) int {
	if budgetBytes == 0 || chunkSize == 0 {
		return requested
	}
	max := int(budgetBytes / chunkSize)
	if max < 1 {
		max = 1
	}
	if requested > max {
		return max
	}
	return requested
}

func (p *Pool) allocChunk(tier Tier) (*chunk, error) {
	h, err := p.backend.CreateBuffer(gpu.BufferDescriptor{
		SizeBytes: TierSizes[tier],
		Usage:     gpu.BufferUsageTransferSrc,
		Location:  gpu.MemoryHostVisible,
	})
	if err != nil {
		return nil, fmt.Errorf("staging: create %s chunk: %w", tier, err)
	}
	return &chunk{tier: tier, buffer: h}, nil
}

// tierFor returns the smallest tier whose chunk size fits size, or an error
// if size exceeds even TierLarge.
func tierFor(size uint64) (Tier, error) {
	for _, tier := range []Tier{TierSmall, TierMedium, TierLarge} {
		if size <= TierSizes[tier] {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("staging: upload of %d bytes exceeds largest tier (%d bytes)", size, TierSizes[TierLarge])
}

// Acquire checks out a chunk able to hold size bytes, allocating a new one
// beyond the tier's pre-warmed count (and invoking onGrow) if every
// pre-warmed chunk of that tier is checked out.
func (p *Pool) Acquire(size uint64) (*chunk, error) {
	tier, err := tierFor(size)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if free := p.free[tier]; len(free) > 0 {
		c := free[len(free)-1]
		p.free[tier] = free[:len(free)-1]
		return c, nil
	}

	c, err := p.allocChunk(tier)
	if err != nil {
		return nil, err
	}
	p.total[tier]++
	if p.onGrow != nil {
		p.onGrow(tier, p.total[tier])
	}
	return c, nil
}

// Release returns c to its tier's free list for reuse.
func (p *Pool) Release(c *chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[c.tier] = append(p.free[c.tier], c)
}

// Buffer returns the gpu.BufferHandle backing c, for the uploader to map
// and copy into.
func (c *chunk) Buffer() gpu.BufferHandle { return c.buffer }

// Tier reports which tier c belongs to.
func (c *chunk) Tier() Tier { return c.tier }
