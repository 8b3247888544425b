/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for a single raftkv node's API.
type Client struct {
	Host  string
	Token string

	http *http.Client
}

// NewClient builds a Client targeting host, optionally authenticating
// every request with token.
func NewClient(host, token string) *Client {
	return &Client{
		Host:  host,
		Token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// KeyValue mirrors the JSON shape returned by a node's /kv listing.
type KeyValue struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// StatusResponse mirrors the JSON shape returned by /status.
type StatusResponse struct {
	NodeID           int    `json:"node_id"`
	Role             string `json:"role"`
	Term             uint64 `json:"term"`
	CommitIndex      uint64 `json:"commit_index"`
	ApplicationIndex uint64 `json:"application_index"`
	LogLength        uint64 `json:"log_length"`
}

func (c *Client) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, "http://"+c.Host+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.http.Do(req)
}

// Get reads a single key. ok is false when the node reports 404.
func (c *Client) Get(key string) (value string, ok bool, err error) {
	resp, err := c.do(http.MethodGet, "/kv/"+key, nil)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, statusError(resp)
	}

	var decoded struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", false, err
	}
	return decoded.Value, true, nil
}

// Set proposes a key/value write, blocking until the node responds.
func (c *Client) Set(key, value string) error {
	body, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return err
	}
	resp, err := c.do(http.MethodPut, "/kv/"+key, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

// Delete proposes removing key.
func (c *Client) Delete(key string) error {
	resp, err := c.do(http.MethodDelete, "/kv/"+key, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

// List returns every key this node currently holds.
func (c *Client) List() ([]KeyValue, error) {
	resp, err := c.do(http.MethodGet, "/kv", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var kvs []KeyValue
	if err := json.NewDecoder(resp.Body).Decode(&kvs); err != nil {
		return nil, err
	}
	return kvs, nil
}

// Status fetches the node's current role, term, and index state.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.do(http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var s StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
