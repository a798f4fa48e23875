/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package router

import (
	"errors"
	"fmt"
	"sync"
	ratomic "sync/atomic"
	"unsafe"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/route"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/transport"
	"github.com/houseofmoo/netcomm-sub000/types"
)

var (
	ErrRouteNotFound = errors.New("router: route not found")
	ErrIncorrectPublisher = errors.New("router: publisher not registered on route")
	ErrSizeMismatch = errors.New("router: payload size does not match route label_size")
	ErrUnknownHandle = errors.New("router: unknown handle")
)

// Router is the single shared-exclusive-locked façade over handle
// storage, the send/recv route tables, and (via the Registry it wraps)
// the transport objects used to reach each subscriber. Mutations take the
// exclusive side of mu; lookups, snapshot construction, job construction,
// and inbound dispatch take the shared side.
type Router struct {
	mu sync.RWMutex

	myID types.NodeId

	sendTable *route.Table
	recvTable *route.Table
	reg *transport.Registry

	sendHandles map[types.HandleUID]*SendHandle
	recvHandles map[types.HandleUID]*RecvHandle

	nextUID ratomic.Uint64
}

func New(myID types.NodeId, reg *transport.Registry) *Router {
	return &Router{
		myID: myID,
		sendTable: route.New(),
		recvTable: route.New(),
		reg: reg,
		sendHandles: make(map[types.HandleUID]*SendHandle),
		recvHandles: make(map[types.HandleUID]*RecvHandle),
	}
}

func (r *Router) allocUID() types.HandleUID { return r.nextUID.Add(1) }

func (r *Router) SendTable() *route.Table { return r.sendTable }
func (r *Router) RecvTable() *route.Table { return r.recvTable }


// handle lifecycle


// RegisterSendPublisher allocates a stable uid for h, adds it to the send
// route table, and stores the handle. h.UID is populated on success.
func (r *Router) RegisterSendPublisher(label types.Label, labelSize uint32, h *SendHandle) (types.HandleUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid := r.allocUID()
	if err := r.sendTable.AddSendPublisher(label, labelSize, uid); err != nil {
		return 0, err
	}
	h.UID = uid
	h.Label = label
	r.sendHandles[uid] = h
	return uid, nil
}

// UnregisterSendPublisher removes the handle from storage and its route;
// if the label loses its last publisher, the route itself is removed
func (r *Router) UnregisterSendPublisher(uid types.HandleUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sendHandles[uid]
	if !ok {
		return ErrUnknownHandle
	}
	r.sendTable.RemoveSendPublisher(h.Label, uid)
	delete(r.sendHandles, uid)
	return nil
}

// RegisterRecvSubscriber is the receive-side analogue of
// RegisterSendPublisher.
func (r *Router) RegisterRecvSubscriber(label types.Label, labelSize uint32, h *RecvHandle) (types.HandleUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid := r.allocUID()
	if err := r.recvTable.AddRecvSubscriber(label, labelSize, uid); err != nil {
		return 0, err
	}
	h.UID = uid
	h.Label = label
	r.recvHandles[uid] = h
	return uid, nil
}

func (r *Router) UnregisterRecvSubscriber(uid types.HandleUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.recvHandles[uid]
	if !ok {
		return ErrUnknownHandle
	}
	r.recvTable.RemoveRecvSubscriber(h.Label, uid)
	delete(r.recvHandles, uid)
	return nil
}

// SendHandleByUID/RecvHandleByUID resolve a stable uid to its handle.
// Absence is a normal, observable state, not an error condition callers
// need to special-case beyond the boolean.
func (r *Router) SendHandleByUID(uid types.HandleUID) (*SendHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sendHandles[uid]
	return h, ok
}

func (r *Router) RecvHandleByUID(uid types.HandleUID) (*RecvHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.recvHandles[uid]
	return h, ok
}


// send-job construction


// BuildSendJob verifies the route and publisher, checks the payload size
// against the route's label_size, snapshots the current subscriber sets,
// and constructs a SendJob ready for the send workers. recvOffset travels
// uninterpreted to every remote receiver's IOSB.
func (r *Router) BuildSendJob(label types.Label, uid types.HandleUID, payload []byte, seq, recvOffset uint32) (*SendJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.sendTable.LookupSend(label)
	if !ok {
		return nil, ErrRouteNotFound
	}
	if _, ok := rt.Publishers[uid]; !ok {
		return nil, ErrIncorrectPublisher
	}
	pub, ok := r.sendHandles[uid]
	if !ok {
		return nil, ErrIncorrectPublisher
	}
	if uint32(len(payload)) != rt.LabelSize {
		return nil, ErrSizeMismatch
	}

	localRecvrs := make([]*shmio.ShmSend, 0, len(rt.LocalSubscribers))
	for id := range rt.LocalSubscribers {
		if s, ok := r.reg.ShmSend(id); ok {
			localRecvrs = append(localRecvrs, s)
		} else {
			nlog.Warningf("router: local subscriber %d has no shm writer open for label %d", id, label)
		}
	}

	remoteRecvrs := make([]*tcp.Client, 0, len(rt.RemoteSubscribers))
	for id := range rt.RemoteSubscribers {
		if c, ok := r.reg.Socket(id); ok && c.IsConnected() {
			remoteRecvrs = append(remoteRecvrs, c)
		} else {
			nlog.Warningf("router: remote subscriber %d has no connected socket for label %d", id, label)
		}
	}

	return newSendJob(r.myID, label, seq, recvOffset, payload, pub, localRecvrs, remoteRecvrs), nil
}

// CompleteJob finalizes the publisher's send IOSB exactly once, invoked by
// whichever send-worker call to job.CompleteOne() returns true.
func (r *Router) CompleteJob(j *SendJob) {
	status := int32(0)
	if j.Failed() {
		status = -1
	}
	var addr uintptr
	if len(j.Payload) > 0 {
		addr = uintptr(unsafe.Pointer(&j.Payload[0]))
	}
	j.Publisher.FinalizeSend(types.SendIosb{
		Status: status,
		HeaderValid: 1,
		Action: types.ActionSend,
		MsgAddr: addr,
		MsgSize: j.TotalBytes(),
		FCHeader: types.FcHeader{
			SourceID: j.SourceID,
			DestinationID: j.Label,
		},
		TimeStamp: types.NowRTOSTime(),
	})
}


// inbound dispatch


// DistributeRecvdLabel delivers one inbound record to every local
// subscriber handle registered for label. The shared lock is held across
// the memcpy into each receiver's slot because handle storage may
// otherwise be reclaimed mid-copy.
func (r *Router) DistributeRecvdLabel(sourceID types.NodeId, label types.Label, payload []byte, recvOffset uint32) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.recvTable.LookupRecv(label)
	if !ok {
		return
	}
	for uid := range rt.Subscribers {
		h, ok := r.recvHandles[uid]
		if !ok {
			continue
		}
		if h.Deliver(sourceID, label, payload, recvOffset) && h.Sem != nil {
			h.Sem.Post()
		}
	}
}


// close helpers


func (r *Router) CloseSend(uid types.HandleUID) error { return r.UnregisterSendPublisher(uid) }
func (r *Router) CloseRecv(uid types.HandleUID) error { return r.UnregisterRecvSubscriber(uid) }

func (r *Router) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("router(node=%d, send_handles=%d, recv_handles=%d)", r.myID, len(r.sendHandles), len(r.recvHandles))
}
