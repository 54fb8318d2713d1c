// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const wordSize = 32

// wordReader decodes the ABI encoded data section of a registry log.  The
// data is a sequence of 32 byte words: a head with one slot per event
// field followed by length prefixed tails for the dynamic fields.
type wordReader struct {
	data []byte
}

func (w wordReader) word(i int) ([]byte, error) {
	off := i * wordSize
	if off+wordSize > len(w.data) {
		return nil, fmt.Errorf("word %v out of range (%v bytes)",
			i, len(w.data))
	}
	return w.data[off : off+wordSize], nil
}

// uintAt decodes head slot i as an unsigned integer.  Values that do not
// fit in 64 bits are rejected; nothing the registry emits comes close.
func (w wordReader) uintAt(i int) (uint64, error) {
	word, err := w.word(i)
	if err != nil {
		return 0, err
	}
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("word %v overflows uint64", i)
		}
	}
	return binary.BigEndian.Uint64(word[wordSize-8:]), nil
}

// stringAt decodes head slot i as a dynamic string: the slot holds a byte
// offset to a length word followed by the padded string bytes.  The offset
// and length words are attacker controlled, so both are bounded before any
// arithmetic; the subtraction form cannot wrap.
func (w wordReader) stringAt(i int) (string, error) {
	off, err := w.uintAt(i)
	if err != nil {
		return "", err
	}
	dataLen := uint64(len(w.data))
	if off%wordSize != 0 || off > dataLen-wordSize {
		return "", fmt.Errorf("invalid string offset %v", off)
	}
	strlen, err := w.uintAt(int(off / wordSize))
	if err != nil {
		return "", err
	}
	start := off + wordSize
	if strlen > dataLen-start {
		return "", fmt.Errorf("string at %v overruns data", off)
	}
	return string(w.data[start : start+strlen]), nil
}

// decodeQuantity parses a 0x prefixed JSON-RPC hex quantity.
func decodeQuantity(s string) (uint64, error) {
	v := strings.TrimPrefix(s, "0x")
	if v == "" || len(v) > 16 {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	n, err := strconv.ParseUint(v, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %v", s, err)
	}
	return n, nil
}

// decodeAddressTopic converts a 32 byte indexed address topic to the
// canonical 0x prefixed 20 byte form.
func decodeAddressTopic(topic string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(topic, "0x"))
	if err != nil || len(raw) != wordSize {
		return "", fmt.Errorf("invalid address topic %q", topic)
	}
	for _, b := range raw[:12] {
		if b != 0 {
			return "", fmt.Errorf("address topic %q has nonzero "+
				"padding", topic)
		}
	}
	return "0x" + hex.EncodeToString(raw[12:]), nil
}
