// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package index answers bounded Hamming distance queries over all
// registered fingerprints.  It is a derived, non-authoritative projection
// of the content store and is rebuilt from it on startup or whenever the
// two are detected out of lockstep.
package index

import (
	"errors"
	"sort"
	"sync"

	"github.com/signetapp/signet/fingerprint"
)

// ErrInconsistent reports a detected mismatch between the index and the
// content store.  It is recoverable: a Rebuild from the store repairs it.
var ErrInconsistent = errors.New("similarity index inconsistent with store")

// Match is one query result: a record key and its exact Hamming distance
// from the query fingerprint.
type Match struct {
	Key      uint64
	Distance int
}

// RecordSource feeds Rebuild.  The content store implements it.
type RecordSource interface {
	ForEach(fn func(key uint64, fp fingerprint.Fingerprint) error) error
}

type entry struct {
	key uint64
	fp  fingerprint.Fingerprint
}

// bandKey identifies one 8 bit slice of a fingerprint.  Two fingerprints
// of equal width within Hamming distance d share at least one identical
// band whenever d is smaller than the band count, so exact band lookups
// yield a complete candidate set for small thresholds.
type bandKey struct {
	width int // fingerprint width in bytes
	pos   int // byte position
	val   byte
}

// Index is the in-memory similarity index.  Insertions happen only under
// the ingestion apply lock; queries are read-only and may run arbitrarily
// many in parallel.
type Index struct {
	mu      sync.RWMutex
	entries []entry // insertion order, ties resolve by this order
	byFp    map[fingerprint.Fingerprint]struct{}
	bands   map[bandKey][]int // entry indices per band
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byFp:  make(map[fingerprint.Fingerprint]struct{}),
		bands: make(map[bandKey][]int),
	}
}

// Insert adds a fingerprint under the given record key.  Inserting a
// fingerprint that is already present is a no-op, so redundant calls
// during recovery replay are safe.
func (idx *Index) Insert(fp fingerprint.Fingerprint, key uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insert(fp, key)
}

func (idx *Index) insert(fp fingerprint.Fingerprint, key uint64) {
	if _, ok := idx.byFp[fp]; ok {
		return
	}
	i := len(idx.entries)
	idx.entries = append(idx.entries, entry{key: key, fp: fp})
	idx.byFp[fp] = struct{}{}

	b := fp.Bytes()
	for pos, val := range b {
		bk := bandKey{width: len(b), pos: pos, val: val}
		idx.bands[bk] = append(idx.bands[bk], i)
	}
}

// Len returns the number of indexed fingerprints.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// QueryWithinDistance returns all fingerprints within Hamming distance
// threshold of the query, ordered by ascending distance with ties broken
// by insertion order.  An empty result means no match within threshold.
func (idx *Index) QueryWithinDistance(fp fingerprint.Fingerprint, threshold int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if threshold < 0 {
		return nil
	}

	// Band lookups are complete only while the threshold is below the
	// band count; wider thresholds fall back to a linear scan, which is
	// also the correctness baseline for small data sets.
	numBands := len(fp.Bytes())
	var candidates []int
	if threshold >= numBands {
		candidates = make([]int, len(idx.entries))
		for i := range idx.entries {
			candidates[i] = i
		}
	} else {
		seen := make(map[int]struct{})
		for pos, val := range fp.Bytes() {
			bk := bandKey{width: numBands, pos: pos, val: val}
			for _, i := range idx.bands[bk] {
				seen[i] = struct{}{}
			}
		}
		candidates = make([]int, 0, len(seen))
		for i := range seen {
			candidates = append(candidates, i)
		}
		sort.Ints(candidates)
	}

	matches := make([]Match, 0)
	for _, i := range candidates {
		e := idx.entries[i]
		d, err := fingerprint.Distance(fp, e.fp)
		if err != nil {
			// Width mismatch, cannot be a match.
			continue
		}
		if d <= threshold {
			matches = append(matches, Match{Key: e.key, Distance: d})
		}
	}

	// Candidates are already in insertion order; a stable sort on
	// distance preserves that order for ties.
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Distance < matches[b].Distance
	})

	return matches
}

// Nearest returns the closest comparable fingerprint regardless of any
// threshold.  The second return is false when the index holds nothing of
// the query's width.  It lets callers distinguish "nothing registered"
// from "registered but too different".
func (idx *Index) Nearest(fp fingerprint.Fingerprint) (Match, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := Match{Distance: -1}
	found := false
	for _, e := range idx.entries {
		d, err := fingerprint.Distance(fp, e.fp)
		if err != nil {
			continue
		}
		if !found || d < best.Distance {
			best = Match{Key: e.key, Distance: d}
			found = true
		}
	}
	return best, found
}

// Rebuild discards the index and reconstructs it from the record source.
// It is the recovery path for any store/index divergence: the store is
// authoritative, so rebuilding always restores the lockstep invariant.
func (idx *Index) Rebuild(src RecordSource) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = nil
	idx.byFp = make(map[fingerprint.Fingerprint]struct{})
	idx.bands = make(map[bandKey][]int)

	return src.ForEach(func(key uint64, fp fingerprint.Fingerprint) error {
		idx.insert(fp, key)
		return nil
	})
}
