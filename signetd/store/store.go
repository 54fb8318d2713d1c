// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store is the durable table of registered content records.  It is
// the single source of truth: the similarity index is a projection that
// must always be reconstructible from here.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/signetapp/signet/fingerprint"
	"github.com/signetapp/signet/signetd/ledger"
)

const (
	recordPrefix  = "r:"         // recordPrefix + 8 byte big endian id -> record
	fpPrefix      = "f:"         // fpPrefix + canonical hex -> 8 byte id
	lastIDKey     = "lastid"     // 8 byte counter of the highest assigned id
	checkpointKey = "checkpoint" // JSON ingestion checkpoint
)

var (
	// ErrNotFound is returned when no record matches the query.
	ErrNotFound = errors.New("record not found")
)

// ContentRecord is one registered work.  Records are created exactly once
// by the ingestor and never updated or deleted; the ledger history behind
// them is immutable.
type ContentRecord struct {
	ID                uint64 `json:"id"`
	Fingerprint       string `json:"fingerprint"` // Canonical hex
	Publisher         string `json:"publisher"`
	Title             string `json:"title,omitempty"`
	Description       string `json:"description,omitempty"`
	LedgerTimestamp   int64  `json:"ledgertimestamp"`
	LedgerTxRef       string `json:"ledgertxref"`
	LedgerBlockHeight uint64 `json:"ledgerblockheight"`
	CreatedAt         int64  `json:"createdat"` // Local ingestion time, unix
}

// EncodeContentRecord encodes the given record to a []byte.
func EncodeContentRecord(r ContentRecord) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeContentRecord decodes the given []byte payload to a ContentRecord.
func DecodeContentRecord(payload []byte) (*ContentRecord, error) {
	var r ContentRecord
	err := json.Unmarshal(payload, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Store is a leveldb backed content table.  All methods are safe for
// concurrent use; InsertIfAbsent is the sole write path for records.
type Store struct {
	sync.RWMutex

	db *leveldb.DB

	// testing only entry, overrides time.Now for deterministic records.
	myNow func() time.Time
}

// Open opens or creates the content database rooted at the given
// directory.  The caller should issue a Close once the store is no longer
// needed.
func Open(root string) (*Store, error) {
	db, err := leveldb.OpenFile(root, nil)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:    db,
		myNow: time.Now,
	}

	id, err := s.lastID()
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("Content store: %v records", id)

	return s, nil
}

// Close closes the underlying database.  It blocks until the last write
// completes.
func (s *Store) Close() {
	s.Lock()
	defer s.Unlock()
	s.db.Close()
}

func recordKey(id uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], id)
	return key
}

func fpKey(canonical string) []byte {
	return append([]byte(fpPrefix), canonical...)
}

// lastID reads the highest assigned record id, 0 if the store is empty.
func (s *Store) lastID() (uint64, error) {
	v, err := s.db.Get([]byte(lastIDKey), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

// InsertIfAbsent atomically stores the record unless a record with the
// same fingerprint already exists.  It returns the id of the stored or
// preexisting record and whether an insert happened.  Existing records are
// never overwritten.
func (s *Store) InsertIfAbsent(r ContentRecord) (uint64, bool, error) {
	s.Lock()
	defer s.Unlock()

	// Reject duplicates keyed on fingerprint equality.
	existing, err := s.db.Get(fpKey(r.Fingerprint), nil)
	if err == nil {
		return binary.BigEndian.Uint64(existing), false, nil
	}
	if err != leveldb.ErrNotFound {
		return 0, false, err
	}

	id, err := s.lastID()
	if err != nil {
		return 0, false, err
	}
	id++

	r.ID = id
	if r.CreatedAt == 0 {
		r.CreatedAt = s.myNow().Unix()
	}
	payload, err := EncodeContentRecord(r)
	if err != nil {
		return 0, false, err
	}

	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, id)

	// Record, fingerprint index and counter commit in a single batch.
	batch := new(leveldb.Batch)
	batch.Put(recordKey(id), payload)
	batch.Put(fpKey(r.Fingerprint), idBytes)
	batch.Put([]byte(lastIDKey), idBytes)
	err = s.db.Write(batch, nil)
	if err != nil {
		return 0, false, err
	}

	return id, true, nil
}

// GetByFingerprint returns the record registered under the given
// fingerprint, or ErrNotFound.
func (s *Store) GetByFingerprint(fp fingerprint.Fingerprint) (*ContentRecord, error) {
	s.RLock()
	defer s.RUnlock()

	idBytes, err := s.db.Get(fpKey(fp.String()), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.getByID(binary.BigEndian.Uint64(idBytes))
}

// GetByID returns the record with the given id, or ErrNotFound.
func (s *Store) GetByID(id uint64) (*ContentRecord, error) {
	s.RLock()
	defer s.RUnlock()
	return s.getByID(id)
}

func (s *Store) getByID(id uint64) (*ContentRecord, error) {
	payload, err := s.db.Get(recordKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeContentRecord(payload)
}

// ListAll returns records ordered by ascending id.  A limit <= 0 means no
// limit.  Offset skips that many records from the start.
func (s *Store) ListAll(limit, offset int) ([]ContentRecord, error) {
	s.RLock()
	defer s.RUnlock()

	records := make([]ContentRecord, 0)
	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(recordPrefix)), nil)
	skipped := 0
	for iter.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(records) >= limit {
			break
		}
		r, err := DecodeContentRecord(iter.Value())
		if err != nil {
			iter.Release()
			return nil, err
		}
		records = append(records, *r)
	}
	iter.Release()
	err := iter.Error()
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Count returns the number of stored records.  Records are never deleted
// so the id counter is authoritative.
func (s *Store) Count() (int, error) {
	s.RLock()
	defer s.RUnlock()

	id, err := s.lastID()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// ForEach walks all records in ascending id order and hands each
// fingerprint to the callback.  It feeds index rebuilds.
func (s *Store) ForEach(fn func(id uint64, fp fingerprint.Fingerprint) error) error {
	s.RLock()
	defer s.RUnlock()

	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(recordPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		r, err := DecodeContentRecord(iter.Value())
		if err != nil {
			return err
		}
		fp, err := fingerprint.Parse(r.Fingerprint)
		if err != nil {
			return err
		}
		if err := fn(r.ID, fp); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadCheckpoint returns the persisted ingestion checkpoint.  The second
// return is false when no checkpoint has ever been saved.
func (s *Store) LoadCheckpoint() (ledger.Position, bool, error) {
	s.RLock()
	defer s.RUnlock()
	return s.loadCheckpoint()
}

func (s *Store) loadCheckpoint() (ledger.Position, bool, error) {
	payload, err := s.db.Get([]byte(checkpointKey), nil)
	if err == leveldb.ErrNotFound {
		return ledger.Position{}, false, nil
	}
	if err != nil {
		return ledger.Position{}, false, err
	}

	var pos ledger.Position
	err = json.Unmarshal(payload, &pos)
	if err != nil {
		return ledger.Position{}, false, err
	}
	return pos, true, nil
}

// SaveCheckpoint persists the ingestion checkpoint.  Only the single
// ingestion writer calls this, after the corresponding record write is
// durable.
func (s *Store) SaveCheckpoint(pos ledger.Position) error {
	s.Lock()
	defer s.Unlock()

	payload, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(checkpointKey), payload, nil)
}
