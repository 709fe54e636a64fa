// Package cache implements vixen's content-addressed, ref-counted LRU
// caches for derived artifacts: pipelines, descriptor set layouts,
// samplers, acceleration structures.
package cache

import (
	"fmt"
	"hash/maphash"
	"sort"
)

// Hash computes a structural content-address for a descriptor: a stable
// 64-bit digest over a canonical encoding of its fields, independent of
// pointer identity. descriptor must be a value whose canonical string form
// (via %#v, after sorting any map keys it embeds) uniquely determines its
// cacheable identity — callers pass the same descriptor struct used
// elsewhere in vixen (ImageDescriptor, PipelineDescriptor, ...).
//
// maphash.Bytes is used instead of gob or reflection-based hashing since
// descriptors are comparable-by-value structs with no cyclic or
// unexported-pointer fields, so Sprintf's %#v form is already a stable
// canonical encoding.
func Hash(seed maphash.Seed, descriptor any) uint64 {
	canonical := canonicalize(descriptor)
	return maphash.Bytes(seed, []byte(canonical))
}

// canonicalize renders descriptor into a deterministic string form. Maps
// are sorted by key before formatting so that two structurally identical
// descriptors with maps built in different insertion orders hash equal.
func canonicalize(descriptor any) string {
	if m, ok := descriptor.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf("%s=%#v", k, m[k])
		}
		return out + "}"
	}
	return fmt.Sprintf("%#v", descriptor)
}
