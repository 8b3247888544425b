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
Package discovery finds candidate peers via mDNS before a cluster
starts. It is strictly a bootstrap-time convenience for populating a
node's initial peer list: once a cluster is running, membership is
fixed for the lifetime of the process, and nothing in this package is
consulted again.
*/
package discovery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"

	"raftkv/internal/logging"
)

const serviceName = "_raftkv._tcp"

var log = logging.NewLogger("discovery")

// DiscoveredNode is one peer found on the local network.
type DiscoveredNode struct {
	NodeID int
	Host   string
	Addr   string // host:port, suitable for dialing
}

// Config controls whether and how this node advertises itself.
type Config struct {
	NodeID  int
	Host    string
	Port    int
	Domain  string // defaults to "local." when empty
	Enabled bool
}

// Service advertises this node over mDNS (when Enabled) and can query
// the network for other raftkv nodes.
type Service struct {
	cfg    Config
	server *mdns.Server
}

// NewService creates a Service. Call Start to begin advertising.
func NewService(cfg Config) *Service {
	if cfg.Domain == "" {
		cfg.Domain = "local."
	}
	return &Service{cfg: cfg}
}

// Start registers this node's mDNS advertisement. A no-op when
// Config.Enabled is false.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	info := []string{fmt.Sprintf("node_id=%d", s.cfg.NodeID)}
	svc, err := mdns.NewMDNSService(
		fmt.Sprintf("raftkv-node-%d", s.cfg.NodeID),
		serviceName,
		s.cfg.Domain,
		"",
		s.cfg.Port,
		nil,
		info,
	)
	if err != nil {
		return fmt.Errorf("discovery: build mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("discovery: start mdns server: %w", err)
	}
	s.server = server
	log.Info("advertising over mdns", "node_id", strconv.Itoa(s.cfg.NodeID), "port", strconv.Itoa(s.cfg.Port))
	return nil
}

// Stop withdraws the mDNS advertisement, if one was started.
func (s *Service) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown()
}

// DiscoverNodes queries the local network for raftkv advertisements
// and returns whatever answers arrive within timeout. It never blocks
// past timeout, and a timeout of zero nodes found is not an error: the
// caller decides whether to fall back to a static peer list.
func DiscoverNodes(timeout time.Duration) ([]DiscoveredNode, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []DiscoveredNode
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entries {
			nodeID := parseNodeID(e.InfoFields)
			found = append(found, DiscoveredNode{
				NodeID: nodeID,
				Host:   e.Host,
				Addr:   fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port),
			})
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: serviceName,
		Timeout: timeout,
		Entries: entries,
	})
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns query: %w", err)
	}
	return found, nil
}

func parseNodeID(fields []string) int {
	for _, f := range fields {
		var id int
		if n, err := fmt.Sscanf(f, "node_id=%d", &id); n == 1 && err == nil {
			return id
		}
	}
	return -1
}
