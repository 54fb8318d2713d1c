// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

// Journal record types.  All records are dumped prefixed with a RecordType
// so that they can be simply replayed as a journal.
const (
	RecordTypeContent    = "content"
	RecordTypeCheckpoint = "checkpoint"

	RecordTypeVersion = 1
)

// RecordType indicates what the next record is in a restore stream.
type RecordType struct {
	Version uint   `json:"version"`
	Type    string `json:"type"`
}

// NewDump opens an existing content database read only for dumping.
func NewDump(root string) (*Store, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, os.ErrNotExist
	}
	if !fi.Mode().IsDir() {
		return nil, fmt.Errorf("not a database: %v", root)
	}
	db, err := leveldb.OpenFile(root, &opt.Options{ErrorIfMissing: true})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewRestore creates a fresh content database to restore a journal into.
func NewRestore(root string) (*Store, error) {
	db, err := leveldb.OpenFile(root, &opt.Options{ErrorIfExist: true})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Dump writes the entire store to the provided file.  If human is set it
// pretty prints; otherwise it emits a JSON journal suitable for Restore.
func (s *Store) Dump(f *os.File, human bool) error {
	s.RLock()
	defer s.RUnlock()

	e := json.NewEncoder(f)

	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(recordPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		r, err := DecodeContentRecord(iter.Value())
		if err != nil {
			return err
		}
		if human {
			fmt.Fprintf(f, "Record      : %v\n", r.ID)
			fmt.Fprintf(f, "Fingerprint : %v\n", r.Fingerprint)
			fmt.Fprintf(f, "Publisher   : %v\n", r.Publisher)
			fmt.Fprintf(f, "Title       : %v\n", r.Title)
			fmt.Fprintf(f, "Tx          : %v\n", r.LedgerTxRef)
			fmt.Fprintf(f, "Block       : %v\n", r.LedgerBlockHeight)
			continue
		}
		err = e.Encode(RecordType{
			Version: RecordTypeVersion,
			Type:    RecordTypeContent,
		})
		if err != nil {
			return err
		}
		err = e.Encode(r)
		if err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}

	pos, ok, err := s.loadCheckpoint()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if human {
		fmt.Fprintf(f, "Checkpoint  : %v\n", pos)
		return nil
	}
	err = e.Encode(RecordType{
		Version: RecordTypeVersion,
		Type:    RecordTypeCheckpoint,
	})
	if err != nil {
		return err
	}
	return e.Encode(pos)
}

// Restore replays a JSON journal produced by Dump into the store,
// preserving record ids.  The verbose flag prints progress to stdout.
func (s *Store) Restore(f *os.File, verbose bool) error {
	s.Lock()
	defer s.Unlock()

	d := json.NewDecoder(f)
	var lastID uint64
	for {
		var rt RecordType
		err := d.Decode(&rt)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if rt.Version != RecordTypeVersion {
			return fmt.Errorf("unsupported record version: %v",
				rt.Version)
		}

		switch rt.Type {
		case RecordTypeContent:
			var r ContentRecord
			if err := d.Decode(&r); err != nil {
				return err
			}
			payload, err := EncodeContentRecord(r)
			if err != nil {
				return err
			}
			idBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(idBytes, r.ID)
			batch := new(leveldb.Batch)
			batch.Put(recordKey(r.ID), payload)
			batch.Put(fpKey(r.Fingerprint), idBytes)
			if r.ID > lastID {
				lastID = r.ID
				batch.Put([]byte(lastIDKey), idBytes)
			}
			if err := s.db.Write(batch, nil); err != nil {
				return err
			}
			if verbose {
				fmt.Printf("Restored %v: %v\n", r.ID,
					r.Fingerprint)
			}
		case RecordTypeCheckpoint:
			var pos json.RawMessage
			if err := d.Decode(&pos); err != nil {
				return err
			}
			err := s.db.Put([]byte(checkpointKey), pos, nil)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Printf("Restored checkpoint %s\n", pos)
			}
		default:
			return fmt.Errorf("invalid record type: %v", rt.Type)
		}
	}

	return nil
}
