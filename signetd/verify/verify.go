// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package verify answers "is this media a near-duplicate of something
// already registered?" against the similarity index and content store.
package verify

import (
	"fmt"
	"sync"

	"github.com/signetapp/signet/fingerprint"
	"github.com/signetapp/signet/signetd/index"
	"github.com/signetapp/signet/signetd/store"
)

// DefaultHammingThreshold is the default distance cutoff for a
// near-duplicate verdict.
const DefaultHammingThreshold = 25

// Verdict statuses.
const (
	StatusVerified   = "verified"
	StatusUnverified = "unverified"
)

// Unverified reasons, distinguished so clients can present differentiated
// messaging.
const (
	ReasonNotFound     = "not found"
	ReasonTooDifferent = "too different"
)

// Verdict is the outcome of a verification query.  For verified results
// Record carries the matched content record's public fields.
type Verdict struct {
	Status   string
	Exact    bool   // Distance == 0
	Distance int    // Meaningful when Status == StatusVerified
	Reason   string // Set when Status == StatusUnverified
	Record   *store.ContentRecord
}

// Engine is the read path.  Queries are read-only and may run arbitrarily
// many in parallel; the shared lock is held in read mode so a query never
// observes a half-applied registration.
type Engine struct {
	lock      *sync.RWMutex
	idx       *index.Index
	store     *store.Store
	threshold int
}

// New creates a verification engine.  The lock must be the same apply
// lock the ingestor writes under.  A threshold <= 0 selects
// DefaultHammingThreshold.
func New(lock *sync.RWMutex, idx *index.Index, s *store.Store, threshold int) *Engine {
	if threshold <= 0 {
		threshold = DefaultHammingThreshold
	}
	return &Engine{
		lock:      lock,
		idx:       idx,
		store:     s,
		threshold: threshold,
	}
}

// Threshold returns the engine's default distance cutoff.
func (e *Engine) Threshold() int {
	return e.threshold
}

// Verify parses the query fingerprint and classifies it against the
// registered corpus.  A threshold <= 0 selects the engine default.
func (e *Engine) Verify(fpText string, threshold int) (*Verdict, error) {
	fp, err := fingerprint.Parse(fpText)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = e.threshold
	}

	e.lock.RLock()
	defer e.lock.RUnlock()

	matches := e.idx.QueryWithinDistance(fp, threshold)
	if len(matches) == 0 {
		// Distinguish an empty corpus from a corpus where everything
		// is too far away.
		if _, ok := e.idx.Nearest(fp); !ok {
			return &Verdict{
				Status: StatusUnverified,
				Reason: ReasonNotFound,
			}, nil
		}
		return &Verdict{
			Status: StatusUnverified,
			Reason: ReasonTooDifferent,
		}, nil
	}

	// Matches are ordered by (distance, insertion order) and records are
	// created in ingestion order, so the first match is the closest with
	// ties already resolved to the earliest created record.
	best := matches[0]
	record, err := e.store.GetByID(best.Key)
	if err != nil {
		return nil, fmt.Errorf("record %v vanished from store: %v",
			best.Key, err)
	}

	return &Verdict{
		Status:   StatusVerified,
		Exact:    best.Distance == 0,
		Distance: best.Distance,
		Record:   record,
	}, nil
}

// List returns a page of registered content in creation order.
func (e *Engine) List(limit, offset int) ([]store.ContentRecord, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.store.ListAll(limit, offset)
}
