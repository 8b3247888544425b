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
raftkv-cli is an interactive REPL for talking to a raftkv node's HTTP
API: GET, SET, DEL, KEYS, and \-prefixed meta-commands such as \status.
It is a thin
client; every command maps to one HTTP request against whichever node
--host names.
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"raftkv/pkg/cli"
)

func main() {
	host := flag.String("host", "localhost:8888", "raftkv node HTTP address")
	token := flag.String("token", "", "Bearer token for authenticated clusters")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Parse()

	if *noColor {
		cli.SetColorsEnabled(false)
	}

	client := NewClient(*host, *token)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(*host),
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "\\q",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftkv-cli: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("raftkv-cli connected to %s. Type \\h for help, \\q to quit.\n", *host)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "raftkv-cli: %v\n", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if handled := runMeta(line, client); handled {
			continue
		}
		runCommand(line, client)
	}
}

func promptFor(host string) string {
	return cli.Highlight("raftkv") + "(" + host + ")> "
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".raftkv-cli-history"
	}
	return home + "/.raftkv-cli-history"
}

func runMeta(line string, client *Client) bool {
	switch {
	case line == "\\q" || line == "\\quit":
		os.Exit(0)
	case line == "\\h" || line == "\\help":
		printHelp()
	case strings.HasPrefix(line, "\\auth "):
		client.Token = strings.TrimSpace(strings.TrimPrefix(line, "\\auth "))
		fmt.Println("token updated for this session")
	case line == "\\status":
		status, err := client.Status()
		if err != nil {
			cli.ErrConnectionFailed(client.Host, "", err).Print()
			return true
		}
		printStatus(status)
	default:
		return false
	}
	return true
}

func runCommand(line string, client *Client) {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])

	switch cmd {
	case "GET":
		if len(fields) != 2 {
			cli.ErrMissingArgument("key", "GET <key>").Print()
			return
		}
		value, ok, err := client.Get(fields[1])
		if err != nil {
			cli.ErrConnectionFailed(client.Host, "", err).Print()
			return
		}
		if !ok {
			fmt.Println("(nil)")
			return
		}
		fmt.Println(value)

	case "SET":
		if len(fields) < 3 {
			cli.ErrMissingArgument("key value", "SET <key> <value>").Print()
			return
		}
		value := strings.Join(fields[2:], " ")
		if err := client.Set(fields[1], value); err != nil {
			reportWriteError(err, client.Host)
			return
		}
		fmt.Println("OK")

	case "DEL":
		if len(fields) != 2 {
			cli.ErrMissingArgument("key", "DEL <key>").Print()
			return
		}
		detail := fmt.Sprintf("This will remove key %q from the cluster's committed log.", fields[1])
		if !cli.ConfirmDestructive(detail, fields[1]) {
			fmt.Println("aborted")
			return
		}
		if err := client.Delete(fields[1]); err != nil {
			reportWriteError(err, client.Host)
			return
		}
		fmt.Println("OK")

	case "KEYS":
		kvs, err := client.List()
		if err != nil {
			cli.ErrConnectionFailed(client.Host, "", err).Print()
			return
		}
		printKeys(kvs)

	default:
		cli.ErrInvalidCommand(fields[0]).Print()
	}
}

func reportWriteError(err error, host string) {
	if strings.Contains(err.Error(), "503") {
		cli.NewCLIError("Not the leader").
			WithDetail("This node cannot accept writes right now").
			WithSuggestion("Retry against another node in the cluster").
			Print()
		return
	}
	cli.ErrConnectionFailed(host, "", err).Print()
}

func printStatus(s *StatusResponse) {
	cli.KeyValue("Node ID", fmt.Sprintf("%d", s.NodeID), 18)
	cli.KeyValue("Role", s.Role, 18)
	cli.KeyValue("Term", fmt.Sprintf("%d", s.Term), 18)
	cli.KeyValue("Commit Index", fmt.Sprintf("%d", s.CommitIndex), 18)
	cli.KeyValue("Application Index", fmt.Sprintf("%d", s.ApplicationIndex), 18)
}

func printKeys(kvs []KeyValue) {
	table := cli.NewTable("KEY", "VALUE")
	for _, kv := range kvs {
		table.AddRow(kv.Key, kv.Value)
	}
	table.Print()
}

func printHelp() {
	f := cli.NewHelpFormatter("raftkv-cli", "1.0.0")
	f.Commands = []cli.Command{
		{Name: "GET", Usage: "GET <key>", Description: "Read a value from the local applied state"},
		{Name: "SET", Usage: "SET <key> <value>", Description: "Propose a set, returning once the leader has appended it to its log"},
		{Name: "DEL", Usage: "DEL <key>", Description: "Propose a delete"},
		{Name: "KEYS", Usage: "KEYS", Description: "List every key currently stored, in collated order"},
		{Name: "\\status", Usage: "\\status", Description: "Show this node's role, term, and commit/application index"},
		{Name: "\\auth", Usage: "\\auth <token>", Description: "Set the bearer token used for the rest of this session"},
		{Name: "\\help", Usage: "\\help", Description: "Show this help"},
		{Name: "\\quit", Usage: "\\quit", Description: "Exit raftkv-cli"},
	}
	f.PrintUsage()
}
