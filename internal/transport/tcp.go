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

package transport

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/net/netutil"

	raftkverrors "raftkv/internal/errors"
	"raftkv/internal/logging"
	"raftkv/internal/raft"
)

// maxConnsPerListener bounds accepted inbound connections so a
// misbehaving client can't exhaust file descriptors.
const maxConnsPerListener = 256

var log = logging.NewLogger("transport")

// WriteFrame writes a single message using raftkv's wire framing:
// "<decimal-length>:<payload-bytes>", where length is the byte length
// of the (possibly compressed) encoded message. A nil codec writes the
// JSON encoding uncompressed.
func WriteFrame(w *bufio.Writer, msg raft.Message, codec Codec) error {
	payload, err := raft.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	if codec != nil {
		if payload, err = codec.Compress(payload); err != nil {
			return fmt.Errorf("transport: compress: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "%d:", len(payload)); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}
	return w.Flush()
}

// ReadFrame reads a single "<decimal-length>:<payload-bytes>" frame
// and decodes it into a raft.Message, reversing codec if non-nil.
func ReadFrame(r *bufio.Reader, codec Codec) (raft.Message, error) {
	lengthStr, err := r.ReadString(':')
	if err != nil {
		return raft.Message{}, fmt.Errorf("transport: read length header: %w", err)
	}
	lengthStr = lengthStr[:len(lengthStr)-1]
	length, err := strconv.Atoi(lengthStr)
	if err != nil {
		return raft.Message{}, raftkverrors.MalformedMessage(fmt.Sprintf("non-numeric frame length %q", lengthStr))
	}
	if length < 0 {
		return raft.Message{}, raftkverrors.MalformedMessage(fmt.Sprintf("negative frame length %d", length))
	}

	payload := make([]byte, length)
	if _, err := readFull(r, payload); err != nil {
		return raft.Message{}, fmt.Errorf("transport: read payload: %w", err)
	}
	if codec != nil {
		if payload, err = codec.Decompress(payload); err != nil {
			return raft.Message{}, raftkverrors.MalformedMessage(fmt.Sprintf("decompress: %v", err))
		}
	}
	msg, err := raft.Decode(payload)
	if err != nil {
		return raft.Message{}, raftkverrors.MalformedMessage(err.Error())
	}
	return msg, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TCPTransport delivers raft.Message values over plain TCP connections
// framed with WriteFrame/ReadFrame. One TCPTransport serves exactly
// one node: it listens for inbound peer/client connections and lazily
// dials outbound connections to every configured peer.
type TCPTransport struct {
	selfID int
	addrs  map[int]string // peer id -> host:port

	mu    sync.Mutex
	conns map[int]net.Conn

	listener net.Listener
	pool     *ants.Pool
	codec    Codec

	handler func(raft.Message)
}

// NewTCPTransport creates a transport for selfID. addrs must contain
// an entry for every peer this node will dial; the listen address is
// passed to Listen, not taken from addrs. codec compresses every
// frame this transport writes and reads; pass transport.NewCodec("none")
// for uncompressed wire traffic.
func NewTCPTransport(selfID int, addrs map[int]string, codec Codec) (*TCPTransport, error) {
	pool, err := ants.NewPool(64)
	if err != nil {
		return nil, fmt.Errorf("transport: create worker pool: %w", err)
	}
	if codec == nil {
		codec = noneCodec{}
	}
	return &TCPTransport{
		selfID: selfID,
		addrs:  addrs,
		conns:  make(map[int]net.Conn),
		pool:   pool,
		codec:  codec,
	}, nil
}

// Listen starts accepting inbound connections on listenAddr and
// dispatches every decoded message to handler from a pooled goroutine.
// One handler invocation happens per frame; handler must be safe for
// concurrent use.
func (t *TCPTransport) Listen(listenAddr string, handler func(raft.Message)) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", listenAddr, err)
	}
	t.listener = netutil.LimitListener(ln, maxConnsPerListener)
	t.handler = handler

	go t.acceptLoop()
	return nil
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			log.Debug("accept loop exiting", "reason", err.Error())
			return
		}
		c := conn
		err = t.pool.Submit(func() { t.serveConn(c) })
		if err != nil {
			log.Warn("dropping inbound connection, worker pool saturated", "error", err.Error())
			c.Close()
		}
	}
}

func (t *TCPTransport) serveConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		msg, err := ReadFrame(r, t.codec)
		if err != nil {
			return
		}
		if t.handler != nil {
			t.handler(msg)
		}
	}
}

// Send delivers msg to msg.RecipientID, dialing and caching a
// connection on demand. A dial or write failure is reported as a
// NetworkDown error; the harness is expected to retry on the next
// tick rather than treat it as fatal.
func (t *TCPTransport) Send(msg raft.Message) error {
	conn, err := t.connFor(msg.RecipientID)
	if err != nil {
		return raftkverrors.NetworkDown(t.addrs[msg.RecipientID], err)
	}
	w := bufio.NewWriter(conn)
	if err := WriteFrame(w, msg, t.codec); err != nil {
		t.dropConn(msg.RecipientID)
		return raftkverrors.NetworkDown(t.addrs[msg.RecipientID], err)
	}
	return nil
}

func (t *TCPTransport) connFor(peerID int) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[peerID]; ok {
		return c, nil
	}
	addr, ok := t.addrs[peerID]
	if !ok {
		return nil, fmt.Errorf("transport: no address configured for peer %d", peerID)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	t.conns[peerID] = conn
	return conn, nil
}

func (t *TCPTransport) dropConn(peerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[peerID]; ok {
		c.Close()
		delete(t.conns, peerID)
	}
}

// Close shuts down the listener, every outbound connection, and the
// worker pool.
func (t *TCPTransport) Close() error {
	if t.listener != nil {
		t.listener.Close()
	}
	t.mu.Lock()
	for id, c := range t.conns {
		c.Close()
		delete(t.conns, id)
	}
	t.mu.Unlock()
	t.pool.Release()
	return nil
}
