/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package ring

import (
	"github.com/houseofmoo/netcomm-sub000/platform/sem"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// Ring is a view over a mapped shared-memory segment laid out per
// header, metadata, data region. It does not own the
// underlying mapping — callers (shmio.ShmRecv/ShmSend) own the platform
// segment and construct a Ring over its View.
type Ring struct {
	buf []byte
	hdr *Header
	meta *MetaData
	sem *sem.Sem
	data []byte // buf[dataBlockOffset:], the byte ring proper
}

// Record is one delivered payload, returned by Read.
type Record struct {
	SourceID types.NodeId
	Label types.Label
	UserSeq uint32
	Payload []byte // valid until the next Read call
}

func newRing(buf []byte) *Ring {
	return &Ring{
		buf: buf,
		hdr: newHeader(buf),
		meta: newMetaData(buf[metaDataOffset:]),
		sem: sem.New(buf[dataBlockOffset+dataBlockSize:]),
		data: buf[dataBlockOffset : dataBlockOffset+dataBlockSize],
	}
}

// Init lays out a brand-new segment: writes the header/metadata and sets
// state=READY with release semantics, generation=1. Called once by the
// owning receiver on Create.
func Init(buf []byte, nodeID types.NodeId) *Ring {
	r := newRing(buf)
	*r.hdr.Magic = types.MagicNum
	*r.hdr.Version = uint32(types.Version)
	*r.hdr.TotalSize = uint64(len(buf))
	*r.meta.NodeID = nodeID
	*r.meta.DataBlockSize = dataBlockSize
	r.meta.setGeneration(1)
	r.meta.storeTail(0)
	r.meta.casHead(r.meta.Head(), 0)
	r.meta.resetPublished()
	r.sem.Init()
	r.hdr.StoreState(StateReady) // release: publishes everything written above
	return r
}

// Open wraps an already-initialized segment without resetting it; used by
// ShmSend, which must never reinitialize a ring it doesn't own.
func Open(buf []byte) *Ring {
	return newRing(buf)
}

// Reinit is the owning reader's recovery path: on finding a READY segment
// (e.g. a crashed-and-restarted process reopening its old segment file),
// it resets indices and bumps generation so in-flight writers from before
// the crash are abandoned via epoch mismatch.
func (r *Ring) Reinit() {
	r.hdr.StoreState(StateIniting)
	r.meta.setGeneration(r.meta.Generation() + 1)
	r.meta.casHead(r.meta.Head(), 0)
	r.meta.storeTail(0)
	r.meta.resetPublished()
	r.hdr.StoreState(StateReady)
}

// Sem exposes the ring's wakeup semaphore so ShmRecv.Wait can block on it
// directly without reaching into ring internals.
func (r *Ring) Sem() *sem.Sem { return r.sem }

func (r *Ring) State() uint32 { return r.hdr.LoadState() }

// Write implements the writer algorithm. On success it
// commits the record and posts the ring's semaphore exactly once.
func (r *Ring) Write(sourceID types.NodeId, label types.Label, userSeq uint32, payload []byte) error {
	if r.State() != StateReady {
		return ErrBlockNotInitialized
	}
	gen := r.meta.Generation()

	reserved := alignUp(uint64(len(payload))+recordHeaderSize, 8)
	if reserved > dataBlockSize {
		return ErrSizeTooLarge
	}

	off, reserved, err := r.allocate(reserved, gen)
	if err != nil {
		return err
	}

	// re-check state/generation before committing: a racing Reinit
	// abandons this record via epoch mismatch
	if r.State() != StateReady || r.meta.Generation() != gen {
		return ErrBlockReinitialized
	}

	rh := recordHeaderAt(r.data, headerOffset(off))
	*rh.Magic = types.MagicNum
	*rh.Flags = 0
	*rh.UserSeq = userSeq
	*rh.TotalSize = reserved
	*rh.PayloadSize = uint64(len(payload))
	*rh.Epoch = gen
	*rh.Label = label
	*rh.SourceID = sourceID
	rh.storeState(RecWriting)

	copy(r.data[dataOffset(off)%dataBlockSize:], payload)

	rh.storeState(RecCommitted) // release

	r.meta.addPublished(1)
	r.sem.Post()
	return nil
}

// allocate runs the bounded-retry head advance, publishing wrap records
// as needed, and returns the byte position the caller now owns along with
// the record's final reserved size. A record never straddles the end of
// the data region, and never leaves a gap behind it too small to hold the
// next record's header: such a sliver is absorbed into the record as
// padding (TotalSize grows, PayloadSize does not), so every record either
// ends exactly at the region end or leaves at least a full header's worth
// of room — which also guarantees a wrap record's own header always fits.
func (r *Ring) allocate(reserved, gen uint64) (uint64, uint64, error) {
	head := r.meta.Head()
	for i := 0; i < maxWriterRetries; i++ {
		tail := r.meta.Tail()
		if head < tail {
			head = r.meta.Head()
			continue
		}

		off := head % dataBlockSize
		if off+reserved > dataBlockSize {
			if head-tail+(dataBlockSize-off) > dataBlockSize {
				return 0, 0, ErrNotEnoughSpace
			}
			wrapSize := dataBlockSize - off
			newHead := head + wrapSize
			if r.meta.casHead(head, newHead) {
				wh := recordHeaderAt(r.data, headerOffset(off))
				*wh.Magic = types.MagicNum
				*wh.TotalSize = wrapSize
				*wh.PayloadSize = 0
				*wh.Epoch = gen
				wh.storeState(RecWriting)
				wh.storeState(RecWrap) // release
				head = newHead
				continue
			}
			head = r.meta.Head()
			continue
		}

		take := reserved
		if rem := dataBlockSize - (off + reserved); rem > 0 && rem < recordHeaderSize {
			take += rem
		}
		if head-tail+take > dataBlockSize {
			return 0, 0, ErrNotEnoughSpace
		}

		newHead := head + take
		if r.meta.casHead(head, newHead) {
			return head, take, nil
		}
		head = r.meta.Head()
	}
	return 0, 0, ErrCouldNotAllocate
}

// Read implements the reader algorithm. Callers should have
// first waited on Sem(). The returned Record's Payload slice aliases buf
// and is only valid until the next Read call.
func (r *Ring) Read(buf []byte) (*Record, error) {
	generation := r.meta.Generation()
	tail := r.meta.Tail()
	head := r.meta.Head()
	if head == tail {
		return nil, ErrNoRecords
	}
	if head < tail {
		return nil, ErrTailCorruption
	}

	var rh *recordHeader
	committed := false
	for head > tail {
		rh = recordHeaderAt(r.data, headerOffset(tail))
		state := rh.loadState() // acquire
		if state == RecWriting {
			return nil, ErrNotYetPublished
		}
		if *rh.Magic != types.MagicNum {
			return nil, ErrBlockCorrupted
		}
		if *rh.Epoch != generation {
			r.FlushBacklog()
			return nil, ErrNoRecords
		}
		if state == RecWrap {
			tail += *rh.TotalSize
			head = r.meta.Head()
			continue
		}
		committed = true
		break
	}
	if !committed {
		// Only wrap records between the old tail and head; consume them.
		r.meta.storeTail(tail)
		return nil, ErrNoRecords
	}

	totalSize := *rh.TotalSize
	payloadSize := *rh.PayloadSize
	if totalSize < recordHeaderSize || totalSize%8 != 0 || totalSize > dataBlockSize || payloadSize == 0 {
		return nil, ErrBlockCorrupted
	}
	if payloadSize > uint64(len(buf)) {
		return nil, ErrLabelTooLarge
	}

	n := copy(buf, r.data[dataOffset(tail)%dataBlockSize:dataOffset(tail)%dataBlockSize+payloadSize])
	rec := &Record{
		SourceID: *rh.SourceID,
		Label: *rh.Label,
		UserSeq: *rh.UserSeq,
		Payload: buf[:n],
	}

	r.meta.storeTail(tail + totalSize) // release
	r.meta.addPublished(-1)
	return rec, nil
}

// FlushBacklog discards whatever is between tail and head because it
// cannot be trusted (stale epoch or an orphaned mid-write record left by
// a crashed writer).
func (r *Ring) FlushBacklog() {
	head := r.meta.Head()
	r.meta.storeTail(head)
	r.meta.resetPublished()
}

// Wait blocks on the ring's named semaphore.
func (r *Ring) Wait() { r.sem.Wait() }

// Size is the total mapped segment size including the trailing semaphore
// word, used by callers sizing the shared-memory segment.
func Size() int { return BlockSize + sem.Size }
