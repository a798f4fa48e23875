// Package ring implements the single-reader, multi-writer shared-memory
// ring segment: a fixed-size region holding a segment
// header, a 64-byte-aligned metadata block, and a byte ring of
// variable-length records. Writers are wait-free on the fast path; the
// reader never takes a lock. All cross-process synchronization is via
// acquire/release atomics on head, tail, generation, and record state.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package ring

import (
	"sync/atomic"
	"unsafe"

	"github.com/houseofmoo/netcomm-sub000/types"
)

// Segment states (Header.state).
const (
	StateIniting uint32 = 0
	StateReady uint32 = 1
)

// Record states (recordHeader.state).
const (
	RecWriting uint32 = 0
	RecCommitted uint32 = 1
	RecWrap uint32 = 2
)

const (
	RecordFlagDropped uint32 = 1 << 0
)

// BlockSize is the total size of one ring segment.
const BlockSize = types.ShmBlockSize

// headerSize, metaSize, and the record header layout are fixed to match
// the C structures in shm_header.h byte-for-byte in spirit (same field
// order and alignment rules), not bit-for-bit, since nothing outside this
// Go process ever parses the segment.
const (
	headerSize = 24 // magic(4) version(4) state(4) pad(4) total_size(8)
	// metaSize covers node_id/pad/data_block_size (16B) plus four
	// 64-byte-aligned atomic fields (generation, head, tail, published
	// count at offsets 64/128/192/256), rounded up to a 64-byte multiple.
	metaSize = 320
	recordHeaderSize = 48
)

func alignUp(n, align uint64) uint64 { return (n + align - 1) &^ (align - 1) }

var (
	metaDataOffset = alignUp(headerSize, 64)
	dataBlockOffset = alignUp(metaDataOffset+metaSize, 64)
	dataBlockSize = uint64(BlockSize) - dataBlockOffset
	dataUsableLimit = dataBlockSize - recordHeaderSize
)

// Header is a view over the segment header bytes.
type Header struct {
	Magic *uint32
	Version *uint32
	state *uint32 // atomic, acquire/release
	TotalSize *uint64
}

func newHeader(buf []byte) *Header {
	return &Header{
		Magic: (*uint32)(unsafe.Pointer(&buf[0])),
		Version: (*uint32)(unsafe.Pointer(&buf[4])),
		state: (*uint32)(unsafe.Pointer(&buf[8])),
		TotalSize: (*uint64)(unsafe.Pointer(&buf[16])),
	}
}

func (h *Header) LoadState() uint32 { return atomic.LoadUint32(h.state) }
func (h *Header) StoreState(v uint32) { atomic.StoreUint32(h.state, v) } // release

// MetaData is a view over the 64-byte-aligned metadata block.
type MetaData struct {
	NodeID *int32
	DataBlockSize *uint64
	generation *uint64 // alignas(64), atomic
	headBytes *uint64 // alignas(64), atomic
	tailBytes *uint64 // alignas(64), atomic
	publishedCount *uint64 // alignas(64), atomic, debug only
}

func newMetaData(buf []byte) *MetaData {
	base := 0
	return &MetaData{
		NodeID: (*int32)(unsafe.Pointer(&buf[base])),
		DataBlockSize: (*uint64)(unsafe.Pointer(&buf[base+8])),
		generation: (*uint64)(unsafe.Pointer(&buf[base+64])),
		headBytes: (*uint64)(unsafe.Pointer(&buf[base+128])),
		tailBytes: (*uint64)(unsafe.Pointer(&buf[base+192])),
		publishedCount: (*uint64)(unsafe.Pointer(&buf[base+256])),
	}
}

func (m *MetaData) Generation() uint64 { return atomic.LoadUint64(m.generation) }
func (m *MetaData) setGeneration(v uint64) { atomic.StoreUint64(m.generation, v) }

func (m *MetaData) Head() uint64 { return atomic.LoadUint64(m.headBytes) }
func (m *MetaData) Tail() uint64 { return atomic.LoadUint64(m.tailBytes) }

func (m *MetaData) casHead(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(m.headBytes, old, new)
}
func (m *MetaData) storeTail(v uint64) { atomic.StoreUint64(m.tailBytes, v) } // release

// addPublished adds delta (which may be negative) to the debug counter;
// relies on uint64(delta) being delta's correct two's-complement form.
func (m *MetaData) addPublished(delta int64) {
	atomic.AddUint64(m.publishedCount, uint64(delta))
}
func (m *MetaData) resetPublished() { atomic.StoreUint64(m.publishedCount, 0) }

// recordHeader is a view over one record's 48-byte header.
type recordHeader struct {
	state *uint32 // atomic, acquire/release
	Magic *uint32
	Flags *uint32
	UserSeq *uint32
	TotalSize *uint64
	PayloadSize *uint64
	Epoch *uint64
	Label *int32
	SourceID *int32
}

func recordHeaderAt(buf []byte, off uint64) *recordHeader {
	b := buf[off:]
	return &recordHeader{
		state: (*uint32)(unsafe.Pointer(&b[0])),
		Magic: (*uint32)(unsafe.Pointer(&b[4])),
		Flags: (*uint32)(unsafe.Pointer(&b[8])),
		UserSeq: (*uint32)(unsafe.Pointer(&b[12])),
		TotalSize: (*uint64)(unsafe.Pointer(&b[16])),
		PayloadSize: (*uint64)(unsafe.Pointer(&b[24])),
		Epoch: (*uint64)(unsafe.Pointer(&b[32])),
		Label: (*int32)(unsafe.Pointer(&b[40])),
		SourceID: (*int32)(unsafe.Pointer(&b[44])),
	}
}

func (r *recordHeader) loadState() uint32 { return atomic.LoadUint32(r.state) } // acquire
func (r *recordHeader) storeState(v uint32) { atomic.StoreUint32(r.state, v) } // release

// headerOffset/dataOffset translate a logical byte position into the data
// region into an offset relative to r.data (itself already based at
// dataBlockOffset within the segment) — callers must index r.data, never
// r.buf, with these.
func headerOffset(posBytes uint64) uint64 {
	return posBytes % dataBlockSize
}

func dataOffset(posBytes uint64) uint64 {
	return headerOffset(posBytes) + recordHeaderSize
}
