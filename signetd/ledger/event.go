// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/signetapp/signet/fingerprint"
)

// ContentRegisteredFull(address indexed publisher, string pHash,
// string title, string description, uint256 timestamp)
//
// Head slot layout of the data section.
const (
	slotFingerprint = 0
	slotTitle       = 1
	slotDescription = 2
	slotTimestamp   = 3
)

// parseRegistrationLog validates one raw log and converts it to a
// RegistrationEvent.  Everything the rest of the system relies on is
// checked here: fingerprint well-formedness, publisher presence and a
// decodable position.
func parseRegistrationLog(l rpcLog) (*RegistrationEvent, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("expected 2 topics, got %v",
			len(l.Topics))
	}

	publisher, err := decodeAddressTopic(l.Topics[1])
	if err != nil {
		return nil, err
	}

	data, err := hex.DecodeString(strings.TrimPrefix(l.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid data: %v", err)
	}
	w := wordReader{data: data}

	fpText, err := w.stringAt(slotFingerprint)
	if err != nil {
		return nil, fmt.Errorf("fingerprint field: %v", err)
	}
	fp, err := fingerprint.Parse(strings.TrimSpace(fpText))
	if err != nil {
		return nil, err
	}

	title, err := w.stringAt(slotTitle)
	if err != nil {
		return nil, fmt.Errorf("title field: %v", err)
	}
	description, err := w.stringAt(slotDescription)
	if err != nil {
		return nil, fmt.Errorf("description field: %v", err)
	}
	timestamp, err := w.uintAt(slotTimestamp)
	if err != nil {
		return nil, fmt.Errorf("timestamp field: %v", err)
	}

	height, err := decodeQuantity(l.BlockNumber)
	if err != nil {
		return nil, err
	}
	logIndex, err := decodeQuantity(l.LogIndex)
	if err != nil {
		return nil, err
	}

	return &RegistrationEvent{
		Fingerprint: fp,
		Publisher:   publisher,
		Title:       title,
		Description: description,
		Timestamp:   int64(timestamp),
		TxRef:       l.TransactionHash,
		Position: Position{
			Height: height,
			Index:  uint32(logIndex),
		},
	}, nil
}
