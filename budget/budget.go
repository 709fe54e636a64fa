// Package budget implements vixen's host/device memory budgets and the
// budget-calibration/adaptive-scheduling subsystem: CapacityTracker,
// TaskProfileRegistry, PredictionErrorTracker, and CalibrationStore.
package budget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vixen-gfx/vixen/resource"
)

// Mode selects strict (refuse over-budget) or lenient (accept with
// warning) enforcement.
type Mode uint8

const (
	Strict Mode = iota
	Lenient
)

// ErrOverBudget is returned by TryReserve in Strict mode when a reservation
// would exceed the category's hard max.
var ErrOverBudget = errors.New("budget: reservation exceeds hard max")

// Category tracks one budget dimension (e.g. device-local bytes): a hard
// max, a warning threshold, an enforcement mode, and current usage.
type Category struct {
	mu       sync.Mutex
	name     string
	used     uint64
	max      uint64
	warnAt   uint64
	mode     Mode
	onWarn   func(name string, used, max uint64)
}

// NewCategory constructs a Category with the given hard max and warning
// threshold (absolute bytes, must be <= max).
func NewCategory(name string, max, warnAt uint64, mode Mode, onWarn func(name string, used, max uint64)) *Category {
	return &Category{name: name, max: max, warnAt: warnAt, mode: mode, onWarn: onWarn}
}

// TryReserve attempts to account for an additional n bytes of usage. In
// Strict mode, a reservation that would exceed max is refused with
// ErrOverBudget and no state change. In Lenient mode, it is accepted
// regardless, invoking onWarn if the warning threshold is crossed.
func (c *Category) TryReserve(n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.used + n
	if next > c.max {
		if c.mode == Strict {
			return fmt.Errorf("%w: %s used=%d +%d max=%d", ErrOverBudget, c.name, c.used, n, c.max)
		}
	}
	c.used = next
	if c.used >= c.warnAt && c.onWarn != nil {
		c.onWarn(c.name, c.used, c.max)
	}
	return nil
}

// Release accounts for n bytes being freed.
func (c *Category) Release(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.used {
		c.used = 0
		return
	}
	c.used -= n
}

// Used reports current usage in bytes.
func (c *Category) Used() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Max reports the category's hard max in bytes.
func (c *Category) Max() uint64 { return c.max }

// HostBudgetManager tracks host stack/heap byte usage.
type HostBudgetManager struct {
	Stack *Category
	Heap  *Category
}

// NewHostBudgetManager constructs a manager with the given per-category
// limits.
func NewHostBudgetManager(stackMax, stackWarn, heapMax, heapWarn uint64, mode Mode, onWarn func(name string, used, max uint64)) *HostBudgetManager {
	return &HostBudgetManager{
		Stack: NewCategory("host.stack", stackMax, stackWarn, mode, onWarn),
		Heap:  NewCategory("host.heap", heapMax, heapWarn, mode, onWarn),
	}
}

// DeviceBudgetManager tracks device-local/host-visible/staging byte usage.
type DeviceBudgetManager struct {
	DeviceLocal *Category
	HostVisible *Category
	Staging     *Category
}

// NewDeviceBudgetManager constructs a manager with the given per-category
// limits.
func NewDeviceBudgetManager(deviceMax, deviceWarn, hostVisMax, hostVisWarn, stagingMax, stagingWarn uint64, mode Mode, onWarn func(name string, used, max uint64)) *DeviceBudgetManager {
	return &DeviceBudgetManager{
		DeviceLocal: NewCategory("device.local", deviceMax, deviceWarn, mode, onWarn),
		HostVisible: NewCategory("device.host_visible", hostVisMax, hostVisWarn, mode, onWarn),
		Staging:     NewCategory("device.staging", stagingMax, stagingWarn, mode, onWarn),
	}
}

// CategoryFor returns the Category matching loc, or nil if loc has no
// device-budget-tracked category (HostStack/HostHeap are tracked by
// HostBudgetManager instead).
func (d *DeviceBudgetManager) CategoryFor(loc resource.MemoryLocation) *Category {
	switch loc {
	case resource.DeviceLocal:
		return d.DeviceLocal
	case resource.HostVisible:
		return d.HostVisible
	case resource.Staging:
		return d.Staging
	default:
		return nil
	}
}

// EvictionCandidate is a resource considered for priority-based eviction
// when a budget category is under pressure.
type EvictionCandidate struct {
	ID           resource.ID
	Priority     resource.Priority
	LastUsedFrame uint64
	SizeBytes    uint64
}

// ChooseEviction selects the candidate to evict first: lowest Priority,
// ties broken by least-recently-used (smallest LastUsedFrame).
func ChooseEviction(candidates []EvictionCandidate) (EvictionCandidate, bool) {
	if len(candidates) == 0 {
		return EvictionCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority < best.Priority ||
			(c.Priority == best.Priority && c.LastUsedFrame < best.LastUsedFrame) {
			best = c
		}
	}
	return best, true
}
