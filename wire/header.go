// Package wire encodes and decodes the fixed-size frames that cross a
// process boundary: the 24-byte TCP LabelHeader and the UDP multicast
// discovery frame.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/houseofmoo/netcomm-sub000/types"
)

// EncodeHeader renders h as the 24-byte little-endian wire frame.
func EncodeHeader(h *types.LabelHeader) []byte {
	b := make([]byte, types.LabelHeaderSize)
	PutHeader(b, h)
	return b
}

// PutHeader writes h into b, which must have len(b) >= LabelHeaderSize.
func PutHeader(b []byte, h *types.LabelHeader) {
	_ = b[types.LabelHeaderSize-1]
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Version)
	binary.LittleEndian.PutUint32(b[6:10], uint32(h.SourceID))
	binary.LittleEndian.PutUint16(b[10:12], h.Flags)
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.Label))
	binary.LittleEndian.PutUint32(b[16:20], h.DataSize)
	binary.LittleEndian.PutUint32(b[20:24], h.RecvOffset)
}

// DecodeHeader parses the first LabelHeaderSize bytes of b. It does not
// validate magic/version; callers check that separately so they can
// classify the failure as layout/validation vs. transient.
func DecodeHeader(b []byte) (*types.LabelHeader, error) {
	if len(b) < types.LabelHeaderSize {
		return nil, fmt.Errorf("wire: short header (%d bytes)", len(b))
	}
	h := &types.LabelHeader{
		Magic: binary.LittleEndian.Uint32(b[0:4]),
		Version: binary.LittleEndian.Uint16(b[4:6]),
		SourceID: int32(binary.LittleEndian.Uint32(b[6:10])),
		Flags: binary.LittleEndian.Uint16(b[10:12]),
		Label: int32(binary.LittleEndian.Uint32(b[12:16])),
		DataSize: binary.LittleEndian.Uint32(b[16:20]),
		RecvOffset: binary.LittleEndian.Uint32(b[20:24]),
	}
	return h, nil
}

// ValidateHeader applies the socket-receive-worker checks: magic,
// version, size bound, and at least one recognized flag.
func ValidateHeader(h *types.LabelHeader) error {
	if h.Magic != types.MagicNum {
		return fmt.Errorf("wire: bad magic %#x", h.Magic)
	}
	if h.Version != types.Version {
		return fmt.Errorf("wire: unsupported version %d", h.Version)
	}
	if h.DataSize > types.SocketDataMaxSize {
		return fmt.Errorf("wire: data_size %d exceeds max %d", h.DataSize, types.SocketDataMaxSize)
	}
	if !types.HasFlag(h.Flags, types.FlagData) && !types.HasFlag(h.Flags, types.FlagPing) &&
		!types.HasFlag(h.Flags, types.FlagConnect) && !types.HasFlag(h.Flags, types.FlagDisconnect) {
		return fmt.Errorf("wire: unknown flags %#x", h.Flags)
	}
	return nil
}
