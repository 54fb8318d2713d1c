// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/signetapp/signet/fingerprint"
	"github.com/signetapp/signet/signetd/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	// Deterministic record timestamps.
	now := time.Unix(1700000100, 0)
	s.myNow = func() time.Time { return now }

	return s
}

func testRecord(i int) ContentRecord {
	return ContentRecord{
		Fingerprint:       fmt.Sprintf("%016x", 0x0102030405060000+i),
		Publisher:         "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		Title:             fmt.Sprintf("Work %v", i),
		Description:       "test",
		LedgerTimestamp:   1700000000,
		LedgerTxRef:       fmt.Sprintf("0xtx%v", i),
		LedgerBlockHeight: uint64(10 + i),
	}
}

func TestEncodeDecode(t *testing.T) {
	r := testRecord(1)
	r.ID = 7
	r.CreatedAt = 1700000100

	blob, err := EncodeContentRecord(r)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := DecodeContentRecord(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r, *r2) {
		t.Fatalf("want %v got %v", spew.Sdump(r), spew.Sdump(*r2))
	}
}

func TestInsertIfAbsent(t *testing.T) {
	s := newTestStore(t)

	id, inserted, err := s.InsertIfAbsent(testRecord(1))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted || id != 1 {
		t.Fatalf("got id %v inserted %v", id, inserted)
	}

	// Same fingerprint again: rejected, existing id returned.
	dup := testRecord(1)
	dup.Publisher = "0x0000000000000000000000000000000000000bad"
	id2, inserted, err := s.InsertIfAbsent(dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted || id2 != id {
		t.Fatalf("duplicate insert: got id %v inserted %v",
			id2, inserted)
	}

	// The original record was not overwritten.
	fp, err := fingerprint.Parse(testRecord(1).Fingerprint)
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.GetByFingerprint(fp)
	if err != nil {
		t.Fatal(err)
	}
	if r.Publisher != testRecord(1).Publisher {
		t.Fatalf("record overwritten: %v", spew.Sdump(r))
	}
	if r.CreatedAt == 0 {
		t.Fatal("CreatedAt not set")
	}

	count, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count: got %v want 1", count)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	fp, err := fingerprint.Parse("ffffffffffffffff")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetByFingerprint(fp); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := s.GetByID(99); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListAll(t *testing.T) {
	s := newTestStore(t)

	count := 10
	for i := 0; i < count; i++ {
		_, _, err := s.InsertIfAbsent(testRecord(i))
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListAll(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != count {
		t.Fatalf("got %v records", len(all))
	}
	for i, r := range all {
		if r.ID != uint64(i+1) {
			t.Fatalf("out of order at %v: id %v", i, r.ID)
		}
	}

	page, err := s.ListAll(3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].ID != 5 || page[2].ID != 7 {
		t.Fatalf("pagination: %v", spew.Sdump(page))
	}
}

func TestCheckpoint(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.LoadCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("checkpoint present in empty store")
	}

	want := ledger.Position{Height: 42, Index: 3}
	if err := s.SaveCheckpoint(want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.LoadCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got != want {
		t.Fatalf("got %v ok %v want %v", got, ok, want)
	}
}

func TestDumpRestore(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		if _, _, err := s.InsertIfAbsent(testRecord(i)); err != nil {
			t.Fatal(err)
		}
	}
	pos := ledger.Position{Height: 15, Index: 0}
	if err := s.SaveCheckpoint(pos); err != nil {
		t.Fatal(err)
	}

	journal := filepath.Join(t.TempDir(), "journal")
	f, err := os.Create(journal)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Dump(f, false); err != nil {
		t.Fatal(err)
	}
	f.Close()

	restored, err := NewRestore(filepath.Join(t.TempDir(), "restore"))
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()

	f, err = os.Open(journal)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := restored.Restore(f, false); err != nil {
		t.Fatal(err)
	}

	want, err := s.ListAll(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := restored.ListAll(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("want %v got %v", spew.Sdump(want), spew.Sdump(got))
	}

	gotPos, ok, err := restored.LoadCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || gotPos != pos {
		t.Fatalf("checkpoint: got %v ok %v want %v", gotPos, ok, pos)
	}
}
