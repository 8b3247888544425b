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
raftkv-discover scans the local network for raftkv nodes advertising
themselves over mDNS. It is meant to be run before starting a new node
that wants to join an existing cluster, to find candidate peer
addresses without the operator hand-typing them.

Usage:

	raftkv-discover                  # discover nodes (5 second timeout)
	raftkv-discover --timeout 10     # custom timeout in seconds
	raftkv-discover --json           # output as JSON
	raftkv-discover --quiet          # only output addresses (for scripting)
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"raftkv/internal/discovery"
)

const (
	version   = "1.0.0"
	copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output node addresses (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output node addresses (for scripting)")
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// The mdns library logs IPv6 lookup errors that aren't actionable.
	log.SetOutput(io.Discard)

	if !*quiet && !*jsonOutput {
		printBanner()
		fmt.Printf("%s%sℹ%s Scanning for raftkv nodes on the network (timeout: %ds)...\n\n",
			cyan, bold, reset, *timeout)
	}

	nodes, err := discovery.DiscoverNodes(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "%s%s✗%s Discovery failed: %v\n", red, bold, reset, err)
		}
		os.Exit(1)
	}

	if len(nodes) == 0 {
		if !*quiet && !*jsonOutput {
			fmt.Printf("%s%s⚠%s No raftkv nodes found on the network.\n\n", yellow, bold, reset)
			fmt.Printf("%s  Common issues:%s\n", dim, reset)
			fmt.Printf("    %s•%s raftkv nodes are not running with discovery enabled\n", yellow, reset)
			fmt.Printf("    %s•%s mDNS is blocked by a firewall (UDP port 5353)\n", yellow, reset)
			fmt.Printf("    %s•%s nodes are on a different network segment\n\n", yellow, reset)
			fmt.Printf("%s  Try:%s\n", dim, reset)
			fmt.Printf("    %sraftkv-discover --timeout 10%s   # increase timeout\n\n", green, reset)
		}
		os.Exit(0)
	}

	switch {
	case *jsonOutput:
		outputJSON(nodes)
	case *quiet:
		outputQuiet(nodes)
	default:
		outputHuman(nodes)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Printf("%s%s", cyan, bold)
	fmt.Println("  ██████╗  █████╗ ███████╗████████╗██╗  ██╗██╗   ██╗")
	fmt.Println("  ██╔══██╗██╔══██╗██╔════╝╚══██╔══╝██║ ██╔╝██║   ██║")
	fmt.Println("  ██████╔╝███████║█████╗     ██║   █████╔╝ ██║   ██║")
	fmt.Println("  ██╔══██╗██╔══██║██╔══╝     ██║   ██╔═██╗ ╚██╗ ██╔╝")
	fmt.Println("  ██║  ██║██║  ██║██║        ██║   ██║  ██╗ ╚████╔╝ ")
	fmt.Println("  ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝        ╚═╝   ╚═╝  ╚═╝  ╚═══╝  ")
	fmt.Printf("%s\n", reset)
	fmt.Printf("  %s%sraftkv-discover%s %sv%s%s\n", green, bold, reset, dim, version, reset)
	fmt.Printf("  %sNetwork Node Discovery Tool%s\n\n", dim, reset)
}

func printVersion() {
	fmt.Println()
	fmt.Printf("  %s%sraftkv-discover%s %sv%s%s\n", cyan, bold, reset, dim, version, reset)
	fmt.Printf("  %s%s%s\n\n", dim, copyright, reset)
}

func printUsage() {
	printBanner()
	fmt.Printf("%s  Discovers raftkv nodes on the local network using mDNS.%s\n", dim, reset)
	fmt.Printf("%s  Useful for finding existing cluster members to join.%s\n\n", dim, reset)

	fmt.Printf("%sUsage:%s raftkv-discover [options]\n\n", bold, reset)

	fmt.Printf("%s%sOPTIONS%s\n\n", bold, cyan, reset)
	fmt.Printf("    %s--timeout%s <seconds>   Discovery timeout (default: 5)\n", green, reset)
	fmt.Printf("    %s--json%s               Output results as JSON\n", green, reset)
	fmt.Printf("    %s--quiet%s, %s-q%s          Only output addresses (for scripting)\n", green, reset, green, reset)
	fmt.Printf("    %s--version%s, %s-v%s        Show version information\n", green, reset, green, reset)
	fmt.Printf("    %s--help%s, %s-h%s           Show this help message\n\n", green, reset, green, reset)

	fmt.Printf("%s%sEXAMPLES%s\n\n", bold, cyan, reset)
	fmt.Printf("%s    # Discover nodes with default timeout%s\n", dim, reset)
	fmt.Println("    raftkv-discover")
	fmt.Println()
	fmt.Printf("%s    # Use in a startup script to find peers%s\n", dim, reset)
	fmt.Println("    PEERS=$(raftkv-discover --quiet)")
	fmt.Println()
}

func outputJSON(nodes []discovery.DiscoveredNode) {
	data, _ := json.MarshalIndent(nodes, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(nodes []discovery.DiscoveredNode) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Addr
	}
	fmt.Println(strings.Join(addrs, ","))
}

func outputHuman(nodes []discovery.DiscoveredNode) {
	fmt.Printf("%s%s✓%s Found %d raftkv node(s)\n\n", green, bold, reset, len(nodes))
	for i, n := range nodes {
		fmt.Printf("  %s[%d]%s node_id=%s%d%s\n", dim, i+1, reset, bold+cyan, n.NodeID, reset)
		fmt.Printf("      %sAddress:%s %s%s%s\n", dim, reset, green, n.Addr, reset)
		fmt.Printf("      %sHost:%s    %s\n\n", dim, reset, n.Host)
	}
	fmt.Printf("%s  Tip: use --json for machine-readable output%s\n\n", dim, reset)
}
