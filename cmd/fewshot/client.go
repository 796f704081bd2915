// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// defaultHTTPClient is the HTTP client used by client commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// apiClient provides JSON access to a running fewshot server.
type apiClient struct {
	addr    string
	baseURL string
	http    *http.Client
}

// newAPIClient creates a client targeting the given host:port address.
func newAPIClient(addr string) *apiClient {
	return &apiClient{
		addr:    addr,
		baseURL: "http://" + addr + "/api/v1",
		http:    defaultHTTPClient,
	}
}

// withTimeout returns a copy of c whose requests may take up to d.
func (c *apiClient) withTimeout(d time.Duration) *apiClient {
	cp := *c
	cp.http = &http.Client{Transport: c.http.Transport, Timeout: d}
	return &cp
}

// problem is the RFC 9457 body huma returns for errors.
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil). Connection refusal maps to cli.server.not_running.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return sigilerr.Errorf(sigilerr.CodeCLIServerNotRunning, "fewshot server at %s is not running (connection refused)", c.addr)
		}
		return sigilerr.Errorf(sigilerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var p problem
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &p) == nil && (p.Detail != "" || p.Title != "") {
			msg = p.Detail
			if msg == "" {
				msg = p.Title
			}
		}
		return sigilerr.New(sigilerr.CodeCLIRequestFailure,
			fmt.Sprintf("server returned %d: %s", resp.StatusCode, msg),
			sigilerr.Field("status", resp.StatusCode))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
