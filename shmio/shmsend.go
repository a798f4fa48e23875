// Package shmio implements the per-destination shared-memory writer
// (ShmSend) and the single self-hosted shared-memory reader (ShmRecv):
// the writer opens an existing segment and drives the ring.Write path;
// the reader creates-or-opens its own segment and drives ring.Read/Wait,
// re-initializing on an already-READY header.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package shmio

import (
	"time"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/platform/shm"
	"github.com/houseofmoo/netcomm-sub000/ring"
	"github.com/houseofmoo/netcomm-sub000/types"
)

const (
	// A writer never creates a segment, so it polls for the owning
	// reader to do so first, giving up after openRetries attempts.
	openRetries = 50
	openInterval = 20 * time.Millisecond
)

// ShmSend is one destination peer's shared-memory writer. Exactly one
// exists per local NodeId the transport registry knows about.
type ShmSend struct {
	destID types.NodeId
	seg *shm.Segment
	ring *ring.Ring
}

// OpenShmSend opens the destination's existing ring segment, retrying
// while the owning receiver has not yet created it. It never creates the
// segment itself.
func OpenShmSend(destID types.NodeId) (*ShmSend, error) {
	name := shm.Name(destID)
	var (
		seg *shm.Segment
		err error
	)
	for i := 0; i < openRetries; i++ {
		seg, err = shm.Open(name, ring.Size())
		if err == nil {
			break
		}
		time.Sleep(openInterval)
	}
	if err != nil {
		return nil, err
	}
	return &ShmSend{destID: destID, seg: seg, ring: ring.Open(seg.View)}, nil
}

func (s *ShmSend) DestinationID() types.NodeId { return s.destID }

// Send writes one record to the destination's ring. Callers (send workers) use ring.IsTransientWriteErr to decide
// whether this counts against the job's failure counter or is fatal.
func (s *ShmSend) Send(sourceID types.NodeId, label types.Label, seq uint32, payload []byte) error {
	return s.ring.Write(sourceID, label, seq, payload)
}

func (s *ShmSend) Close() error { return s.seg.Close() }

// ShmRecv is the single, self-hosted shared-memory receive ring, named by
// the local NodeId. Every local publisher on this host
// writes into it.
type ShmRecv struct {
	id types.NodeId
	seg *shm.Segment
	ring *ring.Ring
}

// OpenShmRecv creates-or-opens the local node's receive segment. On
// open-existing it re-initializes the ring, abandoning any writer that
// was mid-write against the prior generation.
func OpenShmRecv(id types.NodeId) (*ShmRecv, error) {
	name := shm.Name(id)
	seg, created, err := shm.CreateOrOpen(name, ring.Size())
	if err != nil {
		return nil, err
	}
	var rg *ring.Ring
	if created {
		rg = ring.Init(seg.View, id)
		if err := seg.Sync(); err != nil {
			nlog.Warningf("shmio: sync new segment for node %d: %v", id, err)
		}
	} else {
		rg = ring.Open(seg.View)
		rg.Reinit()
		nlog.Infof("shmio: reinitialized existing ring for node %d", id)
	}
	return &ShmRecv{id: id, seg: seg, ring: rg}, nil
}

func (r *ShmRecv) NodeID() types.NodeId { return r.id }

// Wait blocks on the ring's semaphore.
func (r *ShmRecv) Wait() { r.ring.Wait() }

// Wake posts the ring's semaphore once without a corresponding write,
// used only to unblock the shared-memory receive worker's Wait() on
// shutdown.
func (r *ShmRecv) Wake() { r.ring.Sem().Post() }

// Recv runs the reader algorithm, copying the next committed record's
// payload into buf. Callers should typically call Wait first.
func (r *ShmRecv) Recv(buf []byte) (*ring.Record, error) { return r.ring.Read(buf) }

// Reinit re-runs the reader re-initialisation procedure; called by the
// shared-memory receive worker on BlockCorrupted/TailCorruption/unknown
// errors.
func (r *ShmRecv) Reinit() { r.ring.Reinit() }

// Flush discards the unread backlog without bumping the generation; used
// when a single record cannot be delivered (oversized for the drain
// buffer) but the ring itself is intact.
func (r *ShmRecv) Flush() { r.ring.FlushBacklog() }

func (r *ShmRecv) Close() error { return r.seg.Close() }

// Unlink removes the segment's backing file; called once by the owning
// process at shutdown.
func (r *ShmRecv) Unlink() error { return shm.Unlink(shm.Name(r.id)) }
