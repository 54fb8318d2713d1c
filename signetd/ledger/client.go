// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

// DefaultEventTopic is the topic hash of the registry's
// ContentRegisteredFull(address,string,string,string,uint256) event.
const DefaultEventTopic = "0x8bcb7f1ef79ad41b9ad0f8d316d0bb576cfb1c4bbcac0e69c4170cbee4d2e379"

var _ Source = (*Client)(nil)

// Client reads registration events from an EVM compatible JSON-RPC
// endpoint by polling eth_getLogs, the same strategy the registry's
// original indexer uses.  It is safe for use by a single consumer; the
// ingestor is the only caller.
type Client struct {
	url        string
	contract   string
	eventTopic string
	httpClient *http.Client
}

// NewClient returns a ledger client for the registry contract at the given
// address.  An empty eventTopic selects DefaultEventTopic.
func NewClient(url, contract, eventTopic string) *Client {
	if eventTopic == "" {
		eventTopic = DefaultEventTopic
	}
	return &Client{
		url:        url,
		contract:   strings.ToLower(contract),
		eventTopic: strings.ToLower(eventTopic),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcLog struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	TransactionHash  string   `json:"transactionHash"`
	LogIndex         string   `json:"logIndex"`
	Removed          bool     `json:"removed"`
}

// call performs one JSON-RPC round trip.  Transport and server failures
// are wrapped in ErrStreamInterrupted so the ingestor can classify them as
// transient.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v: %v", ErrStreamInterrupted, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(resp.Body)
		return fmt.Errorf("%w: %v: %v %s", ErrStreamInterrupted,
			method, resp.StatusCode, body)
	}

	var r rpcResponse
	d := json.NewDecoder(resp.Body)
	if err := d.Decode(&r); err != nil {
		return fmt.Errorf("%w: %v: %v", ErrStreamInterrupted, method, err)
	}
	if r.Error != nil {
		return fmt.Errorf("%w: %v: rpc error %v: %v",
			ErrStreamInterrupted, method, r.Error.Code,
			r.Error.Message)
	}

	return json.Unmarshal(r.Result, result)
}

// TipHeight returns the current chain height.
func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	var tip string
	err := c.call(ctx, "eth_blockNumber", []interface{}{}, &tip)
	if err != nil {
		return 0, err
	}
	return decodeQuantity(tip)
}

// Events returns all registration events in blocks [from, to], in ledger
// order.  Logs that do not decode as registration events are skipped with
// a warning; a malformed log must never take down ingestion.
func (c *Client) Events(ctx context.Context, from, to uint64) ([]RegistrationEvent, error) {
	filter := map[string]interface{}{
		"address":   c.contract,
		"fromBlock": fmt.Sprintf("0x%x", from),
		"toBlock":   fmt.Sprintf("0x%x", to),
		"topics":    []string{c.eventTopic},
	}

	var logs []rpcLog
	err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &logs)
	if err != nil {
		return nil, err
	}

	events := make([]RegistrationEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := parseRegistrationLog(l)
		if err != nil {
			log.Warnf("Rejecting malformed log %v: %v",
				l.TransactionHash, err)
			continue
		}
		events = append(events, *ev)
	}

	return events, nil
}
