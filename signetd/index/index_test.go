// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package index

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/signetapp/signet/fingerprint"
)

func fp(t *testing.T, s string) fingerprint.Fingerprint {
	t.Helper()
	f, err := fingerprint.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return f
}

// sliceSource adapts a plain slice to the RecordSource interface.
type sliceSource []struct {
	key uint64
	fp  fingerprint.Fingerprint
}

func (s sliceSource) ForEach(fn func(uint64, fingerprint.Fingerprint) error) error {
	for _, e := range s {
		if err := fn(e.key, e.fp); err != nil {
			return err
		}
	}
	return nil
}

func TestInsertIdempotent(t *testing.T) {
	idx := New()
	f := fp(t, "a1b2c3d4e5f67890")

	idx.Insert(f, 1)
	idx.Insert(f, 1)
	idx.Insert(f, 2) // same fingerprint, redundant call

	if idx.Len() != 1 {
		t.Fatalf("got %v entries", idx.Len())
	}
	matches := idx.QueryWithinDistance(f, 0)
	if len(matches) != 1 || matches[0].Key != 1 || matches[0].Distance != 0 {
		t.Fatalf("got %v", spew.Sdump(matches))
	}
}

func TestQueryOrdering(t *testing.T) {
	idx := New()
	// Distances from the all-zero query: 0, 1, 8, 8.  The two distance-8
	// entries must come back in insertion order.
	idx.Insert(fp(t, "00000000000000ff"), 10) // d=8, inserted first
	idx.Insert(fp(t, "0000000000000000"), 11) // d=0
	idx.Insert(fp(t, "ff00000000000000"), 12) // d=8, inserted second
	idx.Insert(fp(t, "0000000000000001"), 13) // d=1

	got := idx.QueryWithinDistance(fp(t, "0000000000000000"), 64)
	want := []Match{
		{Key: 11, Distance: 0},
		{Key: 13, Distance: 1},
		{Key: 10, Distance: 8},
		{Key: 12, Distance: 8},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", spew.Sdump(want), spew.Sdump(got))
	}
}

func TestQueryThreshold(t *testing.T) {
	idx := New()
	idx.Insert(fp(t, "0000000000000000"), 1)
	idx.Insert(fp(t, "000000000000ffff"), 2) // d=16

	matches := idx.QueryWithinDistance(fp(t, "0000000000000003"), 10)
	if len(matches) != 1 || matches[0].Key != 1 || matches[0].Distance != 2 {
		t.Fatalf("got %v", spew.Sdump(matches))
	}

	if matches := idx.QueryWithinDistance(fp(t, "ffffffffffff0000"), 10); len(matches) != 0 {
		t.Fatalf("expected no matches, got %v", spew.Sdump(matches))
	}
}

func TestQueryWidthMismatch(t *testing.T) {
	idx := New()
	idx.Insert(fp(t, "a1b2"), 1)

	if m := idx.QueryWithinDistance(fp(t, "a1b2c3d4e5f67890"), 64); len(m) != 0 {
		t.Fatalf("incomparable width matched: %v", spew.Sdump(m))
	}
	if _, ok := idx.Nearest(fp(t, "a1b2c3d4e5f67890")); ok {
		t.Fatal("Nearest matched incomparable width")
	}
}

// TestBandedMatchesLinear cross-checks the banded candidate strategy
// against a brute force scan on random data, for thresholds on both sides
// of the fallback cutoff.
func TestBandedMatchesLinear(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	idx := New()

	var fps []fingerprint.Fingerprint
	for i := 0; i < 300; i++ {
		b := make([]byte, 8)
		r.Read(b)
		f, err := fingerprint.FromBytes(b)
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := idx.byFp[f]; dup {
			continue
		}
		idx.Insert(f, uint64(i+1))
		fps = append(fps, f)
	}

	for _, threshold := range []int{0, 3, 7, 8, 25} {
		for trial := 0; trial < 50; trial++ {
			// Perturb a random stored fingerprint a few bits.
			base := fps[r.Intn(len(fps))].Bytes()
			for i := 0; i < r.Intn(6); i++ {
				base[r.Intn(len(base))] ^= 1 << uint(r.Intn(8))
			}
			q, err := fingerprint.FromBytes(base)
			if err != nil {
				t.Fatal(err)
			}

			got := idx.QueryWithinDistance(q, threshold)

			want := make([]Match, 0)
			for i, e := range idx.entries {
				d, err := fingerprint.Distance(q, e.fp)
				if err != nil {
					t.Fatal(err)
				}
				if d <= threshold {
					want = append(want, Match{
						Key:      idx.entries[i].key,
						Distance: d,
					})
				}
			}
			sortStable(want)

			if !reflect.DeepEqual(got, want) {
				t.Fatalf("threshold %v: want %v got %v",
					threshold, spew.Sdump(want),
					spew.Sdump(got))
			}
		}
	}
}

func sortStable(m []Match) {
	// Insertion sort keeps the test's reference ordering honest without
	// depending on the implementation under test.
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].Distance < m[j-1].Distance; j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

func TestNearest(t *testing.T) {
	idx := New()
	if _, ok := idx.Nearest(fp(t, "a1b2c3d4e5f67890")); ok {
		t.Fatal("empty index returned a match")
	}

	idx.Insert(fp(t, "0000000000000000"), 1)
	idx.Insert(fp(t, "00000000000000ff"), 2)

	m, ok := idx.Nearest(fp(t, "0000000000000001"))
	if !ok || m.Key != 1 || m.Distance != 1 {
		t.Fatalf("got %v ok %v", spew.Sdump(m), ok)
	}
}

func TestRebuild(t *testing.T) {
	idx := New()
	idx.Insert(fp(t, "ffffffffffffffff"), 99) // stale entry

	src := sliceSource{
		{1, fp(t, "a1b2c3d4e5f67890")},
		{2, fp(t, "00000000000000ff")},
	}
	if err := idx.Rebuild(src); err != nil {
		t.Fatal(err)
	}

	if idx.Len() != 2 {
		t.Fatalf("got %v entries", idx.Len())
	}
	if m := idx.QueryWithinDistance(fp(t, "ffffffffffffffff"), 0); len(m) != 0 {
		t.Fatal("stale entry survived rebuild")
	}
	m := idx.QueryWithinDistance(fp(t, "a1b2c3d4e5f67890"), 0)
	if len(m) != 1 || m[0].Key != 1 {
		t.Fatalf("got %v", spew.Sdump(m))
	}
}
