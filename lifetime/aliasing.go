package lifetime

import (
	"sort"

	"github.com/vixen-gfx/vixen/resource"
)

// Interval is a resource's [birthIndex, deathIndex] lifetime in
// topological order.
type Interval struct {
	Birth, Death int
}

// Overlaps reports whether two intervals share any topological index.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Birth <= other.Death && other.Birth <= iv.Death
}

// Candidate is one resource considered for memory aliasing.
type Candidate struct {
	ID             resource.ID
	Tag            resource.Tag
	Interval       Interval
	SizeBytes      uint64
	Location       resource.MemoryLocation
	AlignmentClass uint32
	AliasGroupTag  string // optional, empty means "no explicit group constraint"
}

// compatible reports whether two candidates may share a memory pool: same
// memory location, same alignment class, and (if either specifies one) the
// same alias group tag. Two overlapping-interval resources with different
// type tags never share a pool.
func compatible(a, b Candidate) bool {
	if a.Location != b.Location || a.AlignmentClass != b.AlignmentClass {
		return false
	}
	if a.Tag != b.Tag {
		return false
	}
	if a.AliasGroupTag != "" && b.AliasGroupTag != "" && a.AliasGroupTag != b.AliasGroupTag {
		return false
	}
	return true
}

// Pool is one memory allocation shared by a set of non-overlapping,
// compatible candidates.
type Pool struct {
	Members     []Candidate
	SizeBytes   uint64
	lastFreedAt int // first topological index after the most recent member's interval ends
}

// Result is the outcome of the aliasing pass: the assignment of candidates
// to pools, and the total savings versus allocating each candidate
// independently.
type Result struct {
	Pools               []*Pool
	CandidateToPool      map[resource.ID]int // index into Pools
	NaiveTotalBytes      uint64
	AliasedTotalBytes    uint64
	SavingsBytes         uint64
}

// Alias assigns candidates to pools using greedy interval scheduling: sort
// by birth, assign each candidate to the first pool whose last-freed-at
// <= candidate.birth and that is otherwise compatible; open a new pool
// otherwise.
func Alias(candidates []Candidate) Result {
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Interval.Birth < sorted[j].Interval.Birth })

	res := Result{CandidateToPool: make(map[resource.ID]int, len(sorted))}
	for _, c := range sorted {
		res.NaiveTotalBytes += c.SizeBytes

		placed := -1
		for i, pool := range res.Pools {
			if pool.lastFreedAt > c.Interval.Birth {
				continue
			}
			if len(pool.Members) > 0 && !compatible(pool.Members[0], c) {
				continue
			}
			placed = i
			break
		}
		if placed == -1 {
			res.Pools = append(res.Pools, &Pool{})
			placed = len(res.Pools) - 1
		}
		pool := res.Pools[placed]
		pool.Members = append(pool.Members, c)
		if c.SizeBytes > pool.SizeBytes {
			pool.SizeBytes = c.SizeBytes
		}
		pool.lastFreedAt = c.Interval.Death + 1
		res.CandidateToPool[c.ID] = placed
	}

	for _, pool := range res.Pools {
		res.AliasedTotalBytes += pool.SizeBytes
	}
	res.SavingsBytes = res.NaiveTotalBytes - res.AliasedTotalBytes
	return res
}
