// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ingest applies the ledger's registration event stream to the
// content store and similarity index.  There is exactly one ingestor per
// content stream; it is the only writer in the system.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signetapp/signet/signetd/index"
	"github.com/signetapp/signet/signetd/ledger"
	"github.com/signetapp/signet/signetd/store"
)

// ErrDuplicateFingerprint reports a registration event whose fingerprint
// is already registered, e.g. a re-registration attempt by another
// publisher.  It is benign: the event is rejected but the checkpoint
// still advances.
var ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

// ApplyStatus classifies the outcome of applying one event.
type ApplyStatus int

const (
	// StatusApplied means a new content record was created and indexed.
	StatusApplied ApplyStatus = iota

	// StatusDuplicate means the fingerprint was already registered; the
	// event was rejected but its position was observed.
	StatusDuplicate

	// StatusSkipped means the event position is at or before the
	// checkpoint and was discarded silently (redelivery replay).
	StatusSkipped
)

func (s ApplyStatus) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusDuplicate:
		return "duplicate"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

const (
	defaultPollInterval = 2 * time.Second
	minBackoff          = 2 * time.Second
	maxBackoff          = time.Minute
)

// Config carries the collaborators and tunables for an Ingestor.
type Config struct {
	Source ledger.Source
	Store  *store.Store
	Index  *index.Index

	// Lock is the apply lock shared with the verification engine.
	// Readers holding it in read mode never observe a fingerprint in the
	// index without its store record, or the other way around.
	Lock *sync.RWMutex

	// PollInterval is the idle delay between ledger polls.
	PollInterval time.Duration

	// StartHeight is the first block scanned when no checkpoint exists.
	// When zero, ScanBack blocks behind the tip are scanned instead to
	// catch events missed while the daemon was down.
	StartHeight uint64
	ScanBack    uint64
}

// Ingestor consumes ledger registration events in order, deduplicates
// them against the persisted checkpoint and applies each one atomically
// to store and index.
type Ingestor struct {
	cfg Config

	checkpoint     ledger.Position
	haveCheckpoint bool
}

// New creates an ingestor, loading the persisted checkpoint so ingestion
// resumes where it left off.
func New(cfg Config) (*Ingestor, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	in := &Ingestor{cfg: cfg}

	pos, ok, err := cfg.Store.LoadCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %v", err)
	}
	in.checkpoint = pos
	in.haveCheckpoint = ok
	if ok {
		log.Infof("Resuming ingestion from checkpoint %v", pos)
	}

	return in, nil
}

// Checkpoint returns the last applied position and whether one exists.
func (in *Ingestor) Checkpoint() (ledger.Position, bool) {
	in.cfg.Lock.RLock()
	defer in.cfg.Lock.RUnlock()
	return in.checkpoint, in.haveCheckpoint
}

// Apply runs one event through the ingestion state machine: dedup against
// the checkpoint, atomic store insert, index insert, checkpoint save.
// The store write commits before the checkpoint advances, so a crash at
// any point is recovered by replay plus the dedup check.
func (in *Ingestor) Apply(ev ledger.RegistrationEvent) (ApplyStatus, error) {
	if ev.Fingerprint.IsZero() {
		return StatusSkipped, fmt.Errorf("event %v: empty fingerprint",
			ev.Position)
	}

	in.cfg.Lock.Lock()
	defer in.cfg.Lock.Unlock()

	// Already applied, redelivery replay.
	if in.haveCheckpoint && ev.Position.Cmp(in.checkpoint) <= 0 {
		return StatusSkipped, nil
	}

	id, inserted, err := in.cfg.Store.InsertIfAbsent(store.ContentRecord{
		Fingerprint:       ev.Fingerprint.String(),
		Publisher:         ev.Publisher,
		Title:             ev.Title,
		Description:       ev.Description,
		LedgerTimestamp:   ev.Timestamp,
		LedgerTxRef:       ev.TxRef,
		LedgerBlockHeight: ev.Position.Height,
	})
	if err != nil {
		return StatusSkipped, fmt.Errorf("store insert %v: %v",
			ev.Position, err)
	}

	status := StatusApplied
	if inserted {
		in.cfg.Index.Insert(ev.Fingerprint, id)
	} else {
		status = StatusDuplicate
		log.Warnf("Rejected event %v: %v: fingerprint %v already "+
			"registered as record %v (publisher %v)", ev.Position,
			ErrDuplicateFingerprint, ev.Fingerprint, id,
			ev.Publisher)
	}

	// The position was observed either way; advance the checkpoint.
	err = in.cfg.Store.SaveCheckpoint(ev.Position)
	if err != nil {
		return status, fmt.Errorf("save checkpoint %v: %v",
			ev.Position, err)
	}
	in.checkpoint = ev.Position
	in.haveCheckpoint = true

	return status, nil
}

// Rebuild unconditionally reconstructs the index from the store under the
// apply lock.  It runs at start of day so that a crash between a store
// insert and the matching index insert self-heals.
func (in *Ingestor) Rebuild() (int, error) {
	in.cfg.Lock.Lock()
	defer in.cfg.Lock.Unlock()

	err := in.cfg.Index.Rebuild(in.cfg.Store)
	if err != nil {
		return 0, err
	}
	return in.cfg.Index.Len(), nil
}

// Reconcile checks the lockstep invariant between store and index and
// rebuilds the index when they diverge.
func (in *Ingestor) Reconcile() error {
	in.cfg.Lock.Lock()
	defer in.cfg.Lock.Unlock()

	count, err := in.cfg.Store.Count()
	if err != nil {
		return err
	}
	if in.cfg.Index.Len() == count {
		return nil
	}

	log.Warnf("%v: index %v records, store %v records; rebuilding",
		index.ErrInconsistent, in.cfg.Index.Len(), count)
	return in.cfg.Index.Rebuild(in.cfg.Store)
}

// scanFrom determines the first block of the next poll.
func (in *Ingestor) scanFrom(tip uint64) uint64 {
	if in.haveCheckpoint {
		// Refetch the checkpoint block; events at or before the
		// checkpoint position are deduplicated in Apply.
		return in.checkpoint.Height
	}
	if in.cfg.StartHeight > 0 {
		return in.cfg.StartHeight
	}
	if tip > in.cfg.ScanBack {
		return tip - in.cfg.ScanBack
	}
	return 0
}

// poll fetches and applies all events between the checkpoint and the
// chain tip.  It returns the number of newly applied records.
func (in *Ingestor) poll(ctx context.Context) (int, error) {
	tip, err := in.cfg.Source.TipHeight(ctx)
	if err != nil {
		return 0, err
	}

	from := in.scanFrom(tip)
	if from > tip {
		return 0, nil
	}

	events, err := in.cfg.Source.Events(ctx, from, tip)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, ev := range events {
		// Stop cleanly between events; the checkpoint always reflects
		// a fully applied position.
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		status, err := in.Apply(ev)
		if err != nil {
			return applied, err
		}
		if status == StatusApplied {
			applied++
			log.Infof("Registered content %v: fingerprint %v "+
				"publisher %v tx %v", ev.Position,
				ev.Fingerprint, ev.Publisher, ev.TxRef)
		}
	}

	return applied, nil
}

// Run polls the ledger until the context is canceled.  Stream errors are
// retried with bounded exponential backoff; ingestion resumes from the
// checkpoint, so no event is lost or double applied across reconnects.
func (in *Ingestor) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		applied, err := in.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("Ingestion interrupted, retrying in %v: %v",
				backoff, err)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		if applied > 0 {
			log.Infof("Applied %v new registrations, checkpoint %v",
				applied, in.checkpoint)
		}
		if !sleepCtx(ctx, in.cfg.PollInterval) {
			return ctx.Err()
		}
	}
}

// sleepCtx sleeps for d unless the context ends first.  It reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
