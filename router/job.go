/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package router

import (
	ratomic "sync/atomic"

	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// SendJob is what BuildSendJob hands to the send workers. It carries everything a worker needs to fan the payload out
// across both transport kinds without touching the router again.
type SendJob struct {
	SourceID types.NodeId
	Label types.Label
	Payload []byte
	Seq uint32
	RecvOffset uint32
	Publisher *SendHandle

	LocalRecvrs []*shmio.ShmSend
	RemoteRecvrs []*tcp.Client

	pending ratomic.Int32
	localFailCnt ratomic.Int32
	remoteFailCnt ratomic.Int32
	localPending bool
	remotePending bool
}

// newSendJob computes the pending-completion count from which transport
// kinds actually have receivers.
func newSendJob(sourceID types.NodeId, label types.Label, seq, recvOffset uint32, payload []byte, pub *SendHandle, local []*shmio.ShmSend, remote []*tcp.Client) *SendJob {
	j := &SendJob{
		SourceID: sourceID,
		Label: label,
		Payload: payload,
		Seq: seq,
		RecvOffset: recvOffset,
		Publisher: pub,
		LocalRecvrs: local,
		RemoteRecvrs: remote,
	}
	j.localPending = len(local) > 0
	j.remotePending = len(remote) > 0
	n := int32(0)
	if j.localPending {
		n++
	}
	if j.remotePending {
		n++
	}
	j.pending.Store(n)
	return j
}

// LocalFailCount / RemoteFailCount are the per-transport failure counters
// a Plan's fail_count(job) increments.
func (j *SendJob) LocalFailCount() *ratomic.Int32 { return &j.localFailCnt }
func (j *SendJob) RemoteFailCount() *ratomic.Int32 { return &j.remoteFailCnt }

// CompleteOne atomically decrements pending_sends. The caller for whom this
// returns true is the last completer and is responsible for finalizing the
// publisher's send IOSB exactly once.
func (j *SendJob) CompleteOne() (last bool) {
	return j.pending.Add(-1) == 0
}

// Failed reports whether any transport recorded at least one failure,
// which finalizes the send IOSB with status -1.
func (j *SendJob) Failed() bool {
	return j.localFailCnt.Load() > 0 || j.remoteFailCnt.Load() > 0
}

// TotalBytes is the payload size, used by the send IOSB's msg_size field.
func (j *SendJob) TotalBytes() uint32 { return uint32(len(j.Payload)) }
