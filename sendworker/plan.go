// Package sendworker implements the two send workers: one
// per transport kind, each a bounded FIFO drained by a single goroutine
// woken by a counting semaphore. A Plan abstracts over ShmSendPlan and
// TcpSendPlan so both workers share one Worker implementation.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sendworker

import (
	ratomic "sync/atomic"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/ring"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/wire"
)

// Plan is the per-transport-kind strategy a Worker drives.
type Plan interface {
	Kind() string
	IsLocal() bool
	IsRemote() bool
	Receivers(j *router.SendJob) []any
	FailCount(j *router.SendJob) *ratomic.Int32
	SendOne(receiver any, j *router.SendJob) bool
}

// ShmSendPlan fans a job out across its local (shared-memory) receivers.
type ShmSendPlan struct{}

func (ShmSendPlan) Kind() string { return "shm" }
func (ShmSendPlan) IsLocal() bool { return true }
func (ShmSendPlan) IsRemote() bool { return false }

func (ShmSendPlan) Receivers(j *router.SendJob) []any {
	out := make([]any, len(j.LocalRecvrs))
	for i, r := range j.LocalRecvrs {
		out[i] = r
	}
	return out
}

func (ShmSendPlan) FailCount(j *router.SendJob) *ratomic.Int32 { return j.LocalFailCount() }

func (ShmSendPlan) SendOne(receiver any, j *router.SendJob) bool {
	s := receiver.(*shmio.ShmSend)
	err := s.Send(j.SourceID, j.Label, j.Seq, j.Payload)
	if err == nil {
		return true
	}
	if ring.IsTransientWriteErr(err) {
		nlog.Warningf("sendworker(shm): transient write failure to node %d, label %d: %v", s.DestinationID(), j.Label, err)
	} else {
		nlog.Errorf("sendworker(shm): fatal write failure to node %d, label %d: %v", s.DestinationID(), j.Label, err)
	}
	return false
}

// TcpSendPlan fans a job out across its remote (TCP) receivers, framing
// each payload with the 24-byte LabelHeader.
type TcpSendPlan struct{}

func (TcpSendPlan) Kind() string { return "tcp" }
func (TcpSendPlan) IsLocal() bool { return false }
func (TcpSendPlan) IsRemote() bool { return true }

func (TcpSendPlan) Receivers(j *router.SendJob) []any {
	out := make([]any, len(j.RemoteRecvrs))
	for i, r := range j.RemoteRecvrs {
		out[i] = r
	}
	return out
}

func (TcpSendPlan) FailCount(j *router.SendJob) *ratomic.Int32 { return j.RemoteFailCount() }

func (TcpSendPlan) SendOne(receiver any, j *router.SendJob) bool {
	c := receiver.(*tcp.Client)
	h := hdrFor(j)
	hdr := wire.EncodeHeader(&h)
	if err := c.SendAll(hdr); err != nil {
		logSendFail(c, j, err)
		return false
	}
	if err := c.SendAll(j.Payload); err != nil {
		logSendFail(c, j, err)
		return false
	}
	return true
}

func logSendFail(c *tcp.Client, j *router.SendJob, err error) {
	if tcp.IsFatal(err) {
		nlog.Errorf("sendworker(tcp): fatal send failure to node %d, label %d: %v", c.DestinationID(), j.Label, err)
	} else {
		nlog.Warningf("sendworker(tcp): transient send failure to node %d, label %d: %v", c.DestinationID(), j.Label, err)
	}
}
