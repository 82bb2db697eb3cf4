// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Encoding tags for blob columns.
const (
	encodingRaw  = "raw"
	encodingZstd = "zstd"
)

// compressThreshold is the blob size below which compression is not
// attempted. Small blobs rarely win and the frame overhead can grow
// them.
const compressThreshold = 512

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBlob returns the stored form of a blob and its encoding tag.
// Blobs under the threshold, and blobs that compression fails to
// shrink, are stored raw.
func compressBlob(data []byte) ([]byte, string) {
	if len(data) < compressThreshold {
		return data, encodingRaw
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, encodingRaw
	}
	return compressed, encodingZstd
}

// decompressBlob reverses compressBlob given the stored encoding tag.
func decompressBlob(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case encodingRaw, "":
		return data, nil
	case encodingZstd:
		decoded, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("store: zstd decode: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("store: unknown blob encoding %q", encoding)
	}
}
