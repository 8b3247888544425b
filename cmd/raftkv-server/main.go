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
raftkv-server is the production binary: it wires configuration,
logging, durable storage, peer discovery, transport, the raft node,
the key/value applier, and the client-facing HTTP surface into one
running cluster member.
*/
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"raftkv/internal/applier"
	"raftkv/internal/audit"
	"raftkv/internal/config"
	"raftkv/internal/discovery"
	"raftkv/internal/harness"
	"raftkv/internal/health"
	"raftkv/internal/httpapi"
	"raftkv/internal/logging"
	"raftkv/internal/metrics"
	"raftkv/internal/raft"
	"raftkv/internal/storage"
	"raftkv/internal/transport"
)

func main() {
	configFile := pflag.String("config", "", "Path to a TOML config file")
	nodeID := pflag.Int("node-id", -1, "This node's id (index into --peers)")
	port := pflag.Int("port", 0, "Client-facing HTTP API port")
	raftPort := pflag.Int("raft-port", 0, "Inter-node Raft RPC port")
	metricsPort := pflag.Int("metrics-port", 0, "Prometheus metrics port")
	peersFlag := pflag.String("peers", "", "Comma-separated host:port list, position = node id")
	role := pflag.String("role", "", "standalone, seed, or join")
	joinAddr := pflag.String("join-addr", "", "Address of a running node to join through")
	dbPath := pflag.String("db-path", "", "SQLite file the node persists term/vote/log to")
	logLevel := pflag.String("log-level", "", "debug, info, warn, or error")
	logJSON := pflag.Bool("log-json", false, "Emit structured JSON log lines")
	authSecret := pflag.String("auth-secret", "", "HMAC secret for client bearer tokens; empty disables auth")
	compression := pflag.String("compression", "", "none, snappy, lz4, or zstd")
	discoverFlag := pflag.Bool("discover", false, "Populate --peers via mDNS before starting, when --peers is empty")
	pflag.Parse()

	mgr := config.NewManager()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "raftkv-server: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()
	cfg := *mgr.Get()
	applyFlagOverrides(&cfg, *nodeID, *port, *raftPort, *metricsPort, *peersFlag, *role, *joinAddr, *dbPath, *logLevel, *logJSON, *authSecret, *compression)

	if *discoverFlag && len(cfg.Peers) == 0 {
		found, err := discovery.DiscoverNodes(3 * time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "raftkv-server: discovery: %v\n", err)
		}
		for _, n := range found {
			cfg.Peers = append(cfg.Peers, n.Addr)
		}
	}
	if len(cfg.Peers) == 0 {
		cfg.Peers = []string{fmt.Sprintf("localhost:%d", cfg.RaftPort)}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "raftkv-server: %v\n", err)
		os.Exit(1)
	}
	if cfg.NodeID < 0 || cfg.NodeID >= len(cfg.Peers) {
		fmt.Fprintln(os.Stderr, "raftkv-server: --node-id must index into --peers")
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("main")
	log.Info("starting raftkv-server", "node_id", strconv.Itoa(cfg.NodeID), "role", cfg.Role)

	if err := run(&cfg, log); err != nil {
		log.Error("fatal error", "error", err.Error())
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *config.Config, nodeID, port, raftPort, metricsPort int, peers, role, joinAddr, dbPath, logLevel string, logJSON bool, authSecret, compression string) {
	if nodeID >= 0 {
		cfg.NodeID = nodeID
	}
	if port != 0 {
		cfg.Port = port
	}
	if raftPort != 0 {
		cfg.RaftPort = raftPort
	}
	if metricsPort != 0 {
		cfg.MetricsPort = metricsPort
	}
	if peers != "" {
		cfg.Peers = splitPeers(peers)
	}
	if role != "" {
		cfg.Role = role
	}
	if joinAddr != "" {
		cfg.JoinAddr = joinAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if authSecret != "" {
		cfg.AuthSecret = authSecret
	}
	if compression != "" {
		cfg.Compression = compression
	}
}

func splitPeers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// run builds every collaborator, serves until a termination signal
// arrives, then persists final state and shuts down cleanly.
func run(cfg *config.Config, log *logging.Logger) error {
	store, err := storage.OpenSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.NodeID)))
	node := raft.NewNode(cfg.NodeID, len(cfg.Peers), rng, raft.DefaultTickBounds())

	if persisted, ok, err := store.LoadState(); err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	} else if ok {
		node.RestoreState(persisted.CurrentTerm, persisted.VotedFor, persisted.Log)
		log.Info("restored persisted state",
			"term", strconv.FormatUint(persisted.CurrentTerm, 10),
			"log_length", strconv.Itoa(len(persisted.Log)))
	}
	persistState := func() {
		if err := store.SaveState(storage.PersistedState{
			CurrentTerm: node.GetTerm(),
			VotedFor:    node.GetVotedFor(),
			Log:         node.GetLog(),
		}); err != nil {
			log.Error("failed to persist state", "error", err.Error())
		}
	}

	if cfg.Role == "standalone" {
		node.ForceLeader()
	}

	auditMgr := audit.NewManager(audit.DefaultConfig())
	defer auditMgr.Stop()

	healthMon := health.NewMonitor(nil)
	reg := metrics.NewRegistry(cfg.NodeID)

	node.OnRoleChange = func(from, to raft.Role, term uint64) {
		eventType := audit.EventTermAdvanced
		if to == raft.Candidate {
			reg.RecordElectionStarted()
		}
		if to == raft.Leader {
			eventType = audit.EventLeaderElected
		}
		auditMgr.LogEvent(audit.Event{
			Type:   eventType,
			NodeID: cfg.NodeID,
			Term:   term,
			Detail: fmt.Sprintf("%s -> %s", from.String(), to.String()),
		})
	}

	kv := applier.NewKVStore("")
	kv.OnApply(func(index uint64, item map[string]any) {
		reg.RecordEntriesApplied(1)
		auditMgr.LogEvent(audit.Event{
			Type:   audit.EventEntryCommitted,
			NodeID: cfg.NodeID,
			Term:   node.GetTerm(),
			Detail: fmt.Sprintf("applied index %d", index),
		})
	})

	codec, err := transport.NewCodec(cfg.Compression)
	if err != nil {
		return fmt.Errorf("build codec: %w", err)
	}

	addrs := make(map[int]string, len(cfg.Peers))
	for i, addr := range cfg.Peers {
		if i != cfg.NodeID {
			addrs[i] = addr
		}
	}
	tcp, err := transport.NewTCPTransport(cfg.NodeID, addrs, codec)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	defer tcp.Close()

	h := harness.New(node, tcp, kv, 20*time.Millisecond)

	if err := tcp.Listen(fmt.Sprintf(":%d", cfg.RaftPort), func(msg raft.Message) {
		healthMon.Heartbeat(msg.SenderID)
		h.Deliver(msg)
	}); err != nil {
		return fmt.Errorf("listen on raft port: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	defer func() {
		cancel()
		h.Stop()
	}()

	observeStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				reg.Observe(node)
				persistState()
			case <-observeStop:
				return
			}
		}
	}()
	defer close(observeStop)

	client := applier.NewClient(h)
	api := httpapi.New(node, kv, client, nil, healthMon, cfg.AuthSecret)

	apiSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: api}
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http api server stopped", "error", err.Error())
		}
	}()
	defer apiSrv.Close()

	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: reg.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err.Error())
		}
	}()
	defer metricsSrv.Close()

	disc := discovery.NewService(discovery.Config{
		NodeID:  cfg.NodeID,
		Port:    cfg.RaftPort,
		Enabled: cfg.Role != "standalone",
	})
	if err := disc.Start(); err != nil {
		log.Warn("discovery advertise failed", "error", err.Error())
	}
	defer disc.Stop()

	log.Info("raftkv-server ready",
		"port", strconv.Itoa(cfg.Port),
		"raft_port", strconv.Itoa(cfg.RaftPort),
		"metrics_port", strconv.Itoa(cfg.MetricsPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down", "node_id", strconv.Itoa(cfg.NodeID))
	persistState()
	return nil
}
