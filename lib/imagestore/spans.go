// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imagestore

// span is a half-open byte range [start, end) within an image slot.
type span struct {
	start, end int64
}

// spanSet is a sorted list of disjoint, non-adjacent spans.
type spanSet []span

// add merges [start, end) into the set.
func (s spanSet) add(start, end int64) spanSet {
	if start >= end {
		return s
	}
	var result spanSet
	inserted := false
	for _, existing := range s {
		switch {
		case existing.end < start:
			result = append(result, existing)
		case existing.start > end:
			if !inserted {
				result = append(result, span{start, end})
				inserted = true
			}
			result = append(result, existing)
		default:
			// Overlapping or touching: absorb into the new span.
			start = min(start, existing.start)
			end = max(end, existing.end)
		}
	}
	if !inserted {
		result = append(result, span{start, end})
	}
	return result
}

// remove cuts [start, end) out of the set.
func (s spanSet) remove(start, end int64) spanSet {
	if start >= end {
		return s
	}
	var result spanSet
	for _, existing := range s {
		if existing.end <= start || existing.start >= end {
			result = append(result, existing)
			continue
		}
		if existing.start < start {
			result = append(result, span{existing.start, start})
		}
		if existing.end > end {
			result = append(result, span{end, existing.end})
		}
	}
	return result
}

// covers reports whether every byte of [start, end) is in the set.
func (s spanSet) covers(start, end int64) bool {
	if start >= end {
		return true
	}
	for _, existing := range s {
		if existing.start <= start && existing.end >= end {
			return true
		}
	}
	return false
}
