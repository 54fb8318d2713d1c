// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrutil/v2"

	"github.com/signetapp/signet/signetd/store"
)

var (
	defaultHomeDir = dcrutil.AppDataDir("signetd", false)

	destination = flag.String("destination", "", "Restore destination")
	dumpJSON    = flag.Bool("json", false, "Dump JSON")
	restore     = flag.Bool("restore", false, "Restore database, "+
		"-destination is required")
	dbRoot = flag.String("source", "", "Source directory")
)

func _main() error {
	flag.Parse()

	root := *dbRoot
	if root == "" {
		root = filepath.Join(defaultHomeDir, "data")
	}

	if *restore {
		if *destination == "" {
			return fmt.Errorf("-destination must be set")
		}
		s, err := store.NewRestore(*destination)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Restore(os.Stdin, true)
	}

	s, err := store.NewDump(root)
	if err != nil {
		return err
	}
	defer s.Close()

	if !*dumpJSON {
		fmt.Printf("=== Root: %v\n", root)
	}
	return s.Dump(os.Stdout, !*dumpJSON)
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
