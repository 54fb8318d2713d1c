// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/signetapp/signet/fingerprint"
	"github.com/signetapp/signet/signetd/index"
	"github.com/signetapp/signet/signetd/ledger"
	"github.com/signetapp/signet/signetd/store"
)

type harness struct {
	lock  *sync.RWMutex
	store *store.Store
	index *index.Index
	in    *Ingestor
}

func newHarness(t *testing.T, src ledger.Source) *harness {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	lock := new(sync.RWMutex)
	idx := index.New()
	in, err := New(Config{
		Source:       src,
		Store:        s,
		Index:        idx,
		Lock:         lock,
		PollInterval: time.Millisecond,
		ScanBack:     1000,
	})
	if err != nil {
		t.Fatal(err)
	}

	return &harness{lock: lock, store: s, index: idx, in: in}
}

func event(t *testing.T, fpHex string, height uint64, logIndex uint32) ledger.RegistrationEvent {
	t.Helper()
	fp, err := fingerprint.Parse(fpHex)
	if err != nil {
		t.Fatal(err)
	}
	return ledger.RegistrationEvent{
		Fingerprint: fp,
		Publisher:   "0xPUB1",
		Title:       "Work",
		Timestamp:   1700000000,
		TxRef:       "0xtx",
		Position:    ledger.Position{Height: height, Index: logIndex},
	}
}

// fakeSource replays a fixed set of events.
type fakeSource struct {
	tip    uint64
	events []ledger.RegistrationEvent
}

func (f *fakeSource) TipHeight(ctx context.Context) (uint64, error) {
	return f.tip, nil
}

func (f *fakeSource) Events(ctx context.Context, from, to uint64) ([]ledger.RegistrationEvent, error) {
	out := make([]ledger.RegistrationEvent, 0)
	for _, ev := range f.events {
		if ev.Position.Height >= from && ev.Position.Height <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestApply(t *testing.T) {
	h := newHarness(t, &fakeSource{})

	status, err := h.in.Apply(event(t, "a1b2c3d4e5f67890", 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusApplied {
		t.Fatalf("got %v", status)
	}

	pos, ok := h.in.Checkpoint()
	if !ok || pos != (ledger.Position{Height: 10, Index: 0}) {
		t.Fatalf("checkpoint: got %v ok %v", pos, ok)
	}

	fp, _ := fingerprint.Parse("a1b2c3d4e5f67890")
	r, err := h.store.GetByFingerprint(fp)
	if err != nil {
		t.Fatal(err)
	}
	if r.Publisher != "0xPUB1" || r.LedgerBlockHeight != 10 {
		t.Fatalf("record: %+v", r)
	}
	if h.index.Len() != 1 {
		t.Fatalf("index has %v entries", h.index.Len())
	}
}

// Applying the same event twice results in exactly one record and a
// checkpoint that advanced only once.
func TestApplyRedelivery(t *testing.T) {
	h := newHarness(t, &fakeSource{})
	ev := event(t, "a1b2c3d4e5f67890", 10, 0)

	if _, err := h.in.Apply(ev); err != nil {
		t.Fatal(err)
	}
	status, err := h.in.Apply(ev)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusSkipped {
		t.Fatalf("redelivery: got %v want skipped", status)
	}

	count, err := h.store.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || h.index.Len() != 1 {
		t.Fatalf("store %v index %v", count, h.index.Len())
	}
}

// Two events with the same fingerprint at positions 5 and 7: one record,
// the second event is rejected as a duplicate, the checkpoint still ends
// at 7.
func TestApplyDuplicateFingerprint(t *testing.T) {
	h := newHarness(t, &fakeSource{})

	if _, err := h.in.Apply(event(t, "a1b2c3d4e5f67890", 5, 0)); err != nil {
		t.Fatal(err)
	}
	ev2 := event(t, "a1b2c3d4e5f67890", 7, 0)
	ev2.Publisher = "0xPUB2"
	status, err := h.in.Apply(ev2)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusDuplicate {
		t.Fatalf("got %v want duplicate", status)
	}

	count, err := h.store.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("got %v records", count)
	}
	pos, _ := h.in.Checkpoint()
	if pos.Height != 7 {
		t.Fatalf("checkpoint at %v, want 7", pos)
	}

	// First registration wins.
	fp, _ := fingerprint.Parse("a1b2c3d4e5f67890")
	r, err := h.store.GetByFingerprint(fp)
	if err != nil {
		t.Fatal(err)
	}
	if r.Publisher != "0xPUB1" {
		t.Fatalf("record publisher %v", r.Publisher)
	}
}

// A restart loads the persisted checkpoint and skips already applied
// positions.
func TestCheckpointResume(t *testing.T) {
	h := newHarness(t, &fakeSource{})
	if _, err := h.in.Apply(event(t, "a1b2c3d4e5f67890", 10, 1)); err != nil {
		t.Fatal(err)
	}

	// New ingestor over the same store: simulates a restart.
	in2, err := New(Config{
		Source: &fakeSource{},
		Store:  h.store,
		Index:  h.index,
		Lock:   h.lock,
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := in2.Apply(event(t, "ffffffffffffffff", 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusSkipped {
		t.Fatalf("pre-checkpoint event: got %v want skipped", status)
	}
	status, err = in2.Apply(event(t, "ffffffffffffffff", 10, 2))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusApplied {
		t.Fatalf("post-checkpoint event: got %v want applied", status)
	}
}

// A crash between the store insert and the index insert leaves the index
// behind the store; Rebuild at startup repairs it.
func TestRebuildHealsPartialApply(t *testing.T) {
	h := newHarness(t, &fakeSource{})

	// Simulate the partial apply: record lands in the store, index write
	// never happens.
	_, inserted, err := h.store.InsertIfAbsent(store.ContentRecord{
		Fingerprint:       "a1b2c3d4e5f67890",
		Publisher:         "0xPUB1",
		LedgerBlockHeight: 10,
	})
	if err != nil || !inserted {
		t.Fatalf("insert: %v %v", inserted, err)
	}
	if h.index.Len() != 0 {
		t.Fatal("index unexpectedly populated")
	}

	n, err := h.in.Rebuild()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || h.index.Len() != 1 {
		t.Fatalf("rebuild indexed %v", n)
	}

	fp, _ := fingerprint.Parse("a1b2c3d4e5f67890")
	matches := h.index.QueryWithinDistance(fp, 0)
	if len(matches) != 1 {
		t.Fatalf("fingerprint not queryable after rebuild")
	}
}

func TestReconcile(t *testing.T) {
	h := newHarness(t, &fakeSource{})
	if _, err := h.in.Apply(event(t, "a1b2c3d4e5f67890", 10, 0)); err != nil {
		t.Fatal(err)
	}

	// In lockstep: a no-op.
	if err := h.in.Reconcile(); err != nil {
		t.Fatal(err)
	}

	// Diverge the store and reconcile again.
	_, _, err := h.store.InsertIfAbsent(store.ContentRecord{
		Fingerprint: "00000000000000ff",
		Publisher:   "0xPUB2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.in.Reconcile(); err != nil {
		t.Fatal(err)
	}
	if h.index.Len() != 2 {
		t.Fatalf("index has %v entries after reconcile", h.index.Len())
	}
}

func TestPoll(t *testing.T) {
	src := &fakeSource{
		tip: 12,
		events: []ledger.RegistrationEvent{
			event(t, "a1b2c3d4e5f67890", 10, 0),
			event(t, "00000000000000ff", 11, 0),
			event(t, "a1b2c3d4e5f67890", 12, 0), // duplicate
		},
	}
	h := newHarness(t, src)

	applied, err := h.in.poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("applied %v, want 2", applied)
	}
	pos, _ := h.in.Checkpoint()
	if pos.Height != 12 {
		t.Fatalf("checkpoint %v, want height 12", pos)
	}

	// Polling again replays the checkpoint block; nothing new applies.
	applied, err = h.in.poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Fatalf("replay applied %v, want 0", applied)
	}
}

func TestRunStopsCleanly(t *testing.T) {
	h := newHarness(t, &fakeSource{tip: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.in.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ingestor did not stop")
	}
}
