// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package v1

import (
	"fmt"
	"regexp"
)

const (
	// APIVersion defines the version number for this code.
	APIVersion = 1

	// DefaultPort is the default signetd listen port.
	DefaultPort = "49374"

	// DefaultHammingThreshold is the default verification distance
	// cutoff applied when a verify request does not set one.
	DefaultHammingThreshold = 25

	// VerdictVerified indicates the queried fingerprint matched a
	// registered work, exactly or as a near-duplicate.
	VerdictVerified = "verified"

	// VerdictUnverified indicates no registered work within the
	// threshold.
	VerdictUnverified = "unverified"
)

var (
	// RoutePrefix is the route url prefix for this version.
	RoutePrefix = fmt.Sprintf("/v%v", APIVersion)

	// StatusRoute defines the API route for retrieving the server
	// status: ingestion checkpoint and record counts.
	StatusRoute = RoutePrefix + "/status/"

	// VerifyRoute defines the API route for fingerprint verification.
	VerifyRoute = RoutePrefix + "/verify/"

	// ContentsRoute defines the API route for listing registered
	// content.
	ContentsRoute = RoutePrefix + "/contents/"

	// RegexpFingerprint is the valid text representation of a
	// fingerprint: nonempty lowercase-or-uppercase hex with an even
	// number of digits.
	RegexpFingerprint = regexp.MustCompile("^([A-Fa-f0-9]{2})+$")
)

// Status is used to ask the server if everything is running properly.
// ID is user settable and can be used as a unique identifier by the
// client.
type Status struct {
	ID string `json:"id"`
}

// StatusReply is returned by the server if everything is running
// properly.  CheckpointHeight is zero until the first event is applied.
type StatusReply struct {
	ID               string `json:"id"`
	CheckpointHeight uint64 `json:"checkpointheight"`
	CheckpointIndex  uint32 `json:"checkpointindex"`
	Records          int    `json:"records"`
	Indexed          int    `json:"indexed"`
}

// Content is the public view of one registered work.
type Content struct {
	ID          uint64 `json:"id"`
	Fingerprint string `json:"fingerprint"`
	Publisher   string `json:"publisher"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Tx          string `json:"tx"`
	BlockHeight uint64 `json:"blockheight"`
	CreatedAt   int64  `json:"createdat"`
}

// Verify is used to ask whether a fingerprint is a near-duplicate of
// registered content.  Threshold 0 selects the server default.  ID is
// user settable and can be used as a unique identifier by the client.
type Verify struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	Threshold   int    `json:"threshold,omitempty"`
}

// VerifyReply is returned by the server with the verification verdict.
// Content is only set for verified verdicts; Reason is only set for
// unverified ones and distinguishes "not found" from "too different".
type VerifyReply struct {
	ID       string   `json:"id"`
	Verdict  string   `json:"verdict"`
	Exact    bool     `json:"exact"`
	Distance int      `json:"distance"`
	Reason   string   `json:"reason,omitempty"`
	Content  *Content `json:"content,omitempty"`
}

// ContentsReply is a page of registered content in creation order.
type ContentsReply struct {
	Contents []Content `json:"contents"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}
