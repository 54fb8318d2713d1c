// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger reads finalized content registration events from the
// Signet registry contract.  The chain is the system of record; this
// package only ever consumes logs, it never submits transactions.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/signetapp/signet/fingerprint"
)

// ErrStreamInterrupted wraps transport failures while talking to the
// ledger RPC endpoint.  Callers treat it as transient and retry with
// backoff; it never indicates data corruption.
var ErrStreamInterrupted = errors.New("ledger stream interrupted")

// Position identifies a single event in the ledger: the block that
// finalized it plus the index of the log within that block.  Positions
// order events totally within one contract stream.
type Position struct {
	Height uint64 `json:"height"`
	Index  uint32 `json:"index"`
}

// Cmp returns -1, 0 or 1 as p orders before, equal to or after q.
func (p Position) Cmp(q Position) int {
	switch {
	case p.Height < q.Height:
		return -1
	case p.Height > q.Height:
		return 1
	case p.Index < q.Index:
		return -1
	case p.Index > q.Index:
		return 1
	}
	return 0
}

func (p Position) String() string {
	return fmt.Sprintf("%v/%v", p.Height, p.Index)
}

// RegistrationEvent is one finalized content registration read from the
// chain.  Events are validated at this boundary; a RegistrationEvent that
// reaches the ingestor always carries a well formed fingerprint and a non
// empty publisher.
type RegistrationEvent struct {
	Fingerprint fingerprint.Fingerprint // Perceptual hash of the work
	Publisher   string                  // Ledger identity, opaque
	Title       string
	Description string
	Timestamp   int64  // Block timestamp recorded by the contract
	TxRef       string // Transaction hash of the registration
	Position    Position
}

// Source is an ordered stream of registration events.  TipHeight returns
// the highest finalized block, Events returns all registration events in
// the inclusive block range [from, to] in ledger order.
type Source interface {
	TipHeight(ctx context.Context) (uint64, error)
	Events(ctx context.Context, from, to uint64) ([]RegistrationEvent, error)
}
