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

/*
raftkv-dump fetches a full key/value snapshot from a raftkv cluster's
HTTP API and writes it to a file as JSON. Given a comma-separated host
list it tries each host in turn, so a dump against a known set of
cluster members succeeds even if the first host it tries happens to
be down or mid-election.

Usage:

	raftkv-dump --hosts node1,node2,node3 --port 8888 --out snapshot.json
	raftkv-dump --hosts localhost:8888 --token <bearer-token>
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"raftkv/pkg/cli"
)

func main() {
	hostsFlag := flag.String("hosts", "localhost", "Comma-separated list of cluster hosts to try, in order")
	port := flag.String("port", "8888", "HTTP API port, used for hosts given without one")
	out := flag.String("out", "snapshot.json", "Output file path")
	token := flag.String("token", "", "Bearer token, if the cluster requires authentication")
	timeoutSec := flag.Int("timeout", 5, "Per-host request timeout in seconds")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Parse()

	if *noColor {
		cli.SetColorsEnabled(false)
	}

	hosts := parseHosts(*hostsFlag, *port)
	if len(hosts) == 0 {
		fmt.Fprintln(os.Stderr, "raftkv-dump: no hosts given")
		os.Exit(1)
	}

	client := NewHAClient(hosts)
	client.Timeout = time.Duration(*timeoutSec) * time.Second
	client.Token = *token

	data, host, err := client.FetchSnapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftkv-dump: failed against every host in %v: %v\n", hosts, err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "raftkv-dump: write %s: %v\n", *out, err)
		os.Exit(1)
	}

	info, err := os.Stat(*out)
	size := int64(len(data))
	if err == nil {
		size = info.Size()
	}
	fmt.Printf("wrote %s (%s) from %s\n", *out, formatFileSize(size), host)
}

// parseHosts splits a comma-separated host list and appends port to
// any entry that doesn't already carry one. Whitespace around entries
// is trimmed and empty entries are dropped.
func parseHosts(hostStr, port string) []string {
	out := []string{}
	for _, h := range strings.Split(hostStr, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.Contains(h, ":") {
			h = h + ":" + port
		}
		out = append(out, h)
	}
	return out
}

// isConnectionError reports whether err looks like a transient
// connectivity failure worth retrying against the next host, as
// opposed to an application-level error (auth, malformed request)
// that would fail identically on every host.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"connection refused", "connection reset", "broken pipe", "eof", "timeout", "i/o timeout",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// formatFileSize renders n bytes in the largest whole unit that keeps
// the number readable.
func formatFileSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.2f %s", float64(n)/float64(div), units[exp])
}

// HAClient fetches a snapshot from the first reachable host in an
// ordered list, falling over to the next host on a connection error.
type HAClient struct {
	hosts   []string
	Timeout time.Duration
	Token   string
}

// NewHAClient creates an HAClient that tries hosts in the given order.
func NewHAClient(hosts []string) *HAClient {
	return &HAClient{hosts: hosts, Timeout: 5 * time.Second}
}

// FetchSnapshot GETs /kv from each host in order, returning the first
// successful response body along with the host that served it.
func (c *HAClient) FetchSnapshot() ([]byte, string, error) {
	httpClient := &http.Client{Timeout: c.Timeout}

	spinner := cli.NewSpinner(fmt.Sprintf("connecting to %s", c.hosts[0]))
	spinner.Start()

	var lastErr error
	for i, host := range c.hosts {
		if i > 0 {
			spinner.UpdateMessage(fmt.Sprintf("connecting to %s", host))
		}
		url := "http://" + host + "/kv"
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			if isConnectionError(err) {
				continue
			}
			spinner.StopWithError(err.Error())
			return nil, "", err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s: unexpected status %s: %s", host, resp.Status, strings.TrimSpace(string(body)))
			continue
		}
		var probe []any
		if err := json.Unmarshal(body, &probe); err != nil {
			lastErr = fmt.Errorf("%s: malformed snapshot body: %w", host, err)
			continue
		}
		spinner.StopWithSuccess(fmt.Sprintf("fetched snapshot from %s", host))
		return body, host, nil
	}
	spinner.StopWithError(fmt.Sprintf("no reachable host in %v", c.hosts))
	return nil, "", lastErr
}
