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
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses and decompresses message payloads before they are
// framed on the wire. Compression trades CPU for bandwidth on the
// AppendEntries path, where large batches of log entries dominate
// frame size; RequestVote traffic is small enough that the choice of
// codec barely matters.
type Codec interface {
	Name() string
	Compress(payload []byte) ([]byte, error)
	Decompress(payload []byte) ([]byte, error)
}

// NewCodec builds a Codec by name: "none", "snappy", "lz4", or "zstd".
// An unrecognized name is an error rather than a silent fallback, so a
// misconfigured node fails at startup instead of mismatching its peers.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return noneCodec{}, nil
	case "snappy":
		return snappyCodec{}, nil
	case "lz4":
		return lz4Codec{}, nil
	case "zstd":
		return newZstdCodec()
	default:
		return nil, fmt.Errorf("transport: unknown compression codec %q", name)
	}
}

type noneCodec struct{}

func (noneCodec) Name() string                            { return "none" }
func (noneCodec) Compress(p []byte) ([]byte, error)       { return p, nil }
func (noneCodec) Decompress(p []byte) ([]byte, error)     { return p, nil }

type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Compress(p []byte) ([]byte, error) {
	return snappy.Encode(nil, p), nil
}

func (snappyCodec) Decompress(p []byte) ([]byte, error) {
	return snappy.Decode(nil, p)
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		return nil, fmt.Errorf("transport: lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("transport: lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(p []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(p))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transport: lz4 decompress: %w", err)
	}
	return out, nil
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (z *zstdCodec) Name() string { return "zstd" }

func (z *zstdCodec) Compress(p []byte) ([]byte, error) {
	return z.enc.EncodeAll(p, nil), nil
}

func (z *zstdCodec) Decompress(p []byte) ([]byte, error) {
	return z.dec.DecodeAll(p, nil)
}
