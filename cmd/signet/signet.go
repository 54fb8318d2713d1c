// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"

	v1 "github.com/signetapp/signet/api/v1"
)

const (
	signetClientID = "signet cli"
)

var (
	host       = flag.String("h", "localhost", "Verification host")
	debug      = flag.Bool("debug", false, "Print JSON that is sent to server")
	printJson  = flag.Bool("json", false, "Print JSON response from server")
	verbose    = flag.Bool("v", false, "Verbose")
	threshold  = flag.Int("threshold", 0, "Hamming distance cutoff, 0 "+
		"uses the server default")
	status     = flag.Bool("status", false, "Print server status")
	list       = flag.Bool("list", false, "List registered content")
	limit      = flag.Int("limit", 0, "Maximum records to list")
	offset     = flag.Int("offset", 0, "Records to skip when listing")
	skipVerify = flag.Bool("skipverify", false, "Skip TLS certificate "+
		"verification, for self signed server certificates")
)

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// isFingerprint determines if a string is a valid fingerprint.
func isFingerprint(fingerprint string) bool {
	return v1.RegexpFingerprint.MatchString(fingerprint)
}

// getError returns the error that is embedded in a JSON reply.
func getError(r io.Reader) (string, error) {
	var e interface{}
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&e); err != nil {
		return "", err
	}
	m, ok := e.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("could not decode response")
	}
	rError, ok := m["error"]
	if !ok {
		return "", fmt.Errorf("no error response")
	}
	return fmt.Sprintf("%v", rError), nil
}

func newClient(skipVerify bool) *http.Client {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: skipVerify,
	}
	tr := &http.Transport{
		TLSClientConfig: tlsConfig,
	}
	return &http.Client{Transport: tr}
}

func printContent(c v1.Content) {
	fmt.Printf("  %-15v: %v\n", "Record", c.ID)
	fmt.Printf("  %-15v: %v\n", "Fingerprint", c.Fingerprint)
	fmt.Printf("  %-15v: %v\n", "Publisher", c.Publisher)
	if c.Title != "" {
		fmt.Printf("  %-15v: %v\n", "Title", c.Title)
	}
	if c.Description != "" {
		fmt.Printf("  %-15v: %v\n", "Description", c.Description)
	}
	fmt.Printf("  %-15v: %v\n", "Timestamp", c.Timestamp)
	fmt.Printf("  %-15v: %v\n", "Tx", c.Tx)
	fmt.Printf("  %-15v: %v\n", "Block", c.BlockHeight)
}

func verifyFingerprints(fingerprints []string) error {
	c := newClient(*skipVerify)
	for _, fingerprint := range fingerprints {
		ver := v1.Verify{
			ID:          signetClientID,
			Fingerprint: fingerprint,
			Threshold:   *threshold,
		}
		b, err := json.Marshal(ver)
		if err != nil {
			return err
		}

		if *debug {
			fmt.Println(string(b))
		}

		r, err := c.Post(*host+v1.VerifyRoute, "application/json",
			bytes.NewReader(b))
		if err != nil {
			return err
		}
		defer r.Body.Close()

		if r.StatusCode != http.StatusOK {
			e, err := getError(r.Body)
			if err != nil {
				return fmt.Errorf("%v", r.Status)
			}
			return fmt.Errorf("%v: %v", r.Status, e)
		}

		if *printJson {
			io.Copy(os.Stdout, r.Body)
			fmt.Printf("\n")
			continue
		}

		// Decode response.
		var vr v1.VerifyReply
		decoder := json.NewDecoder(r.Body)
		if err := decoder.Decode(&vr); err != nil {
			return fmt.Errorf("could not decode VerifyReply: %v",
				err)
		}

		// Print human readable results.
		switch {
		case vr.Verdict == v1.VerdictVerified && vr.Exact:
			fmt.Printf("%v Verified (exact match)\n", fingerprint)
		case vr.Verdict == v1.VerdictVerified:
			fmt.Printf("%v Verified (distance %v)\n", fingerprint,
				vr.Distance)
		default:
			fmt.Printf("%v Unverified (%v)\n", fingerprint,
				vr.Reason)
		}

		if *verbose && vr.Content != nil {
			printContent(*vr.Content)
		}
	}

	return nil
}

func listContents() error {
	c := newClient(*skipVerify)
	u := fmt.Sprintf("%v%v?limit=%v&offset=%v", *host, v1.ContentsRoute,
		*limit, *offset)
	if *limit == 0 {
		u = fmt.Sprintf("%v%v?offset=%v", *host, v1.ContentsRoute,
			*offset)
	}
	r, err := c.Get(u)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		e, err := getError(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	if *printJson {
		io.Copy(os.Stdout, r.Body)
		fmt.Printf("\n")
		return nil
	}

	var cr v1.ContentsReply
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&cr); err != nil {
		return fmt.Errorf("could not decode ContentsReply: %v", err)
	}

	for _, content := range cr.Contents {
		fmt.Printf("%v %v %v\n", content.ID, content.Fingerprint,
			content.Publisher)
		if *verbose {
			printContent(content)
		}
	}

	return nil
}

func printStatus() error {
	c := newClient(*skipVerify)
	r, err := c.Get(*host + v1.StatusRoute)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		e, err := getError(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	if *printJson {
		io.Copy(os.Stdout, r.Body)
		fmt.Printf("\n")
		return nil
	}

	var sr v1.StatusReply
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&sr); err != nil {
		return fmt.Errorf("could not decode StatusReply: %v", err)
	}

	fmt.Printf("%-15v: %v/%v\n", "Checkpoint", sr.CheckpointHeight,
		sr.CheckpointIndex)
	fmt.Printf("%-15v: %v\n", "Records", sr.Records)
	fmt.Printf("%-15v: %v\n", "Indexed", sr.Indexed)

	return nil
}

func _main() error {
	flag.Parse()

	*host = normalizeAddress(*host, v1.DefaultPort)
	u, err := url.Parse("https://" + *host)
	if err != nil {
		return err
	}
	*host = u.String()

	if *status {
		return printStatus()
	}
	if *list {
		return listContents()
	}

	// Remaining arguments are fingerprints to verify.
	fingerprints := make([]string, 0, flag.NArg())
	for _, a := range flag.Args() {
		if !isFingerprint(a) {
			return fmt.Errorf("%v is not a valid fingerprint", a)
		}
		fingerprints = append(fingerprints, a)
	}

	if len(fingerprints) == 0 {
		return fmt.Errorf("nothing to do")
	}

	return verifyFingerprints(fingerprints)
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
