// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/robfig/cron"

	v1 "github.com/signetapp/signet/api/v1"
	"github.com/signetapp/signet/signetd/index"
	"github.com/signetapp/signet/signetd/ingest"
	"github.com/signetapp/signet/signetd/ledger"
	"github.com/signetapp/signet/signetd/store"
	"github.com/signetapp/signet/signetd/verify"
	"github.com/signetapp/signet/util"
)

// signetd is the context for the verification daemon: the content store,
// its derived similarity index, the single ledger ingestor and the
// read-only verification engine that answers the public API.
type signetd struct {
	cfg      *config
	store    *store.Store
	index    *index.Index
	ingestor *ingest.Ingestor
	engine   *verify.Engine
	router   *mux.Router
}

// convertRecord translates a stored content record into its public API
// form.
func convertRecord(r store.ContentRecord) v1.Content {
	return v1.Content{
		ID:          r.ID,
		Fingerprint: r.Fingerprint,
		Publisher:   r.Publisher,
		Title:       r.Title,
		Description: r.Description,
		Timestamp:   r.LedgerTimestamp,
		Tx:          r.LedgerTxRef,
		BlockHeight: r.LedgerBlockHeight,
		CreatedAt:   r.CreatedAt,
	}
}

// status returns the ingestion checkpoint and record counts.  The ID in
// the request body, if any, is echoed back.
func (s *signetd) status(w http.ResponseWriter, r *http.Request) {
	var t v1.Status
	// The body is optional on GET requests.
	decoder := json.NewDecoder(r.Body)
	defer r.Body.Close()
	_ = decoder.Decode(&t)

	count, err := s.store.Count()
	if err != nil {
		errorCode := time.Now().Unix()
		log.Errorf("%v status error code %v: %v", r.RemoteAddr,
			errorCode, err)
		util.RespondWithError(w, http.StatusInternalServerError,
			fmt.Sprintf("Could not retrieve status, contact "+
				"administrator and provide the following error "+
				"code: %v", errorCode))
		return
	}

	reply := v1.StatusReply{
		ID:      t.ID,
		Records: count,
		Indexed: s.index.Len(),
	}
	if pos, ok := s.ingestor.Checkpoint(); ok {
		reply.CheckpointHeight = pos.Height
		reply.CheckpointIndex = pos.Index
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

// verify runs a fingerprint through the verification engine and returns
// the verdict.
func (s *signetd) verify(w http.ResponseWriter, r *http.Request) {
	var t v1.Verify
	decoder := json.NewDecoder(r.Body)
	defer r.Body.Close()
	if err := decoder.Decode(&t); err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid request payload")
		return
	}

	if !v1.RegexpFingerprint.MatchString(t.Fingerprint) {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid fingerprint")
		return
	}
	if t.Threshold < 0 {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid threshold")
		return
	}

	verdict, err := s.engine.Verify(t.Fingerprint, t.Threshold)
	if err != nil {
		errorCode := time.Now().Unix()
		log.Errorf("%v verify error code %v: %v", r.RemoteAddr,
			errorCode, err)
		util.RespondWithError(w, http.StatusInternalServerError,
			fmt.Sprintf("Could not verify, contact administrator "+
				"and provide the following error code: %v",
				errorCode))
		return
	}

	reply := v1.VerifyReply{
		ID:       t.ID,
		Verdict:  verdict.Status,
		Exact:    verdict.Exact,
		Distance: verdict.Distance,
		Reason:   verdict.Reason,
	}
	if verdict.Record != nil {
		content := convertRecord(*verdict.Record)
		reply.Content = &content
		log.Infof("Verify %v: %v distance %v record %v",
			r.RemoteAddr, verdict.Status, verdict.Distance,
			verdict.Record.ID)
	} else {
		log.Infof("Verify %v: %v (%v)", r.RemoteAddr, verdict.Status,
			verdict.Reason)
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

// contents returns a page of registered content in creation order.  Limit
// and offset come from the query string.
func (s *signetd) contents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	offset := 0
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			util.RespondWithError(w, http.StatusBadRequest,
				"Invalid limit")
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v := r.FormValue("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			util.RespondWithError(w, http.StatusBadRequest,
				"Invalid offset")
			return
		}
		offset = n
	}

	records, err := s.engine.List(limit, offset)
	if err != nil {
		errorCode := time.Now().Unix()
		log.Errorf("%v contents error code %v: %v", r.RemoteAddr,
			errorCode, err)
		util.RespondWithError(w, http.StatusInternalServerError,
			fmt.Sprintf("Could not list contents, contact "+
				"administrator and provide the following error "+
				"code: %v", errorCode))
		return
	}

	contents := make([]v1.Content, 0, len(records))
	for _, v := range records {
		contents = append(contents, convertRecord(v))
	}
	util.RespondWithJSON(w, http.StatusOK, v1.ContentsReply{
		Contents: contents,
		Limit:    limit,
		Offset:   offset,
	})
}

func _main() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version : %v", cfg.Version)
	log.Infof("Home dir: %v", cfg.HomeDir)
	log.Infof("Contract: %v", cfg.ContractAddress)

	// Create the data directory in case it does not exist.
	err = os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		return err
	}

	// Generate the TLS cert and key file if both don't already exist.
	if !fileExists(cfg.HTTPSKey) && !fileExists(cfg.HTTPSCert) {
		log.Infof("Generating HTTPS keypair...")
		err = util.GenCertPair("signetd", cfg.HTTPSCert, cfg.HTTPSKey)
		if err != nil {
			return fmt.Errorf("unable to create https keypair: %v",
				err)
		}
		log.Infof("HTTPS keypair created...")
	}

	s := &signetd{
		cfg:    cfg,
		router: mux.NewRouter(),
	}

	s.store, err = store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer s.store.Close()

	// The apply lock is shared between the ingestion write path and the
	// verification read path.
	applyLock := new(sync.RWMutex)
	s.index = index.New()

	source := ledger.NewClient(cfg.RPCURL, cfg.ContractAddress,
		cfg.EventTopic)
	s.ingestor, err = ingest.New(ingest.Config{
		Source:       source,
		Store:        s.store,
		Index:        s.index,
		Lock:         applyLock,
		PollInterval: cfg.PollInterval,
		StartHeight:  cfg.StartHeight,
		ScanBack:     cfg.ScanBack,
	})
	if err != nil {
		return err
	}

	// Rebuild the index from the store at start of day; it is a derived
	// structure and is never persisted.
	indexed, err := s.ingestor.Rebuild()
	if err != nil {
		return fmt.Errorf("unable to rebuild index: %v", err)
	}
	log.Infof("Similarity index: %v fingerprints", indexed)

	s.engine = verify.New(applyLock, s.index, s.store,
		cfg.HammingThreshold)
	log.Infof("Hamming threshold: %v", s.engine.Threshold())

	// Launch the ledger ingestor.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingestDone := make(chan struct{})
	go func() {
		err := s.ingestor.Run(ctx)
		if err != nil && err != context.Canceled {
			log.Errorf("Ingestor exited: %v", err)
		}
		close(ingestDone)
	}()

	// Periodically verify the store and index are in lockstep.
	c := cron.New()
	err = c.AddFunc("@every 5m", func() {
		err := s.ingestor.Reconcile()
		if err != nil {
			log.Errorf("Reconcile: %v", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()

	s.router.HandleFunc(v1.StatusRoute, s.status).Methods("GET", "POST")
	s.router.HandleFunc(v1.VerifyRoute, s.verify).Methods("POST")
	s.router.HandleFunc(v1.ContentsRoute, s.contents).Methods("GET")

	// XXX this probably needs to be tightened up
	origins := handlers.AllowedOrigins([]string{"*"})
	methods := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	headers := handlers.AllowedHeaders([]string{"Content-Type"})
	handler := handlers.CORS(origins, methods, headers)(s.router)

	// Bind to a port and pass our router in.
	listenC := make(chan error)
	for _, listener := range cfg.Listeners {
		listen := listener
		go func() {
			log.Infof("Listen: %v", listen)
			listenC <- http.ListenAndServeTLS(listen,
				cfg.HTTPSCert, cfg.HTTPSKey, handler)
		}()
	}

	// Tell user we are ready to go.
	log.Infof("Start of day")

	// Setup OS signals.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.Infof("Terminating with signal %v", sig)
	case err := <-listenC:
		log.Errorf("Could not start server: %v", err)
	}

	// Drain the ingestor before closing the store it writes to.
	cancel()
	c.Stop()
	<-ingestDone

	log.Infof("Exiting")

	return nil
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
