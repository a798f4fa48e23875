// Package route implements the send and receive route tables: label -> publishers/subscribers, with monotonic generation
// counters discovery uses to snapshot without copying per broadcast.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package route

import (
	"errors"
	"sort"
	"sync"

	"github.com/houseofmoo/netcomm-sub000/cmn/debug"
	"github.com/houseofmoo/netcomm-sub000/types"
)

type (
	// SendRoute is one label's publisher/subscriber set on the send side.
	// A NodeId is never simultaneously local and remote.
	SendRoute struct {
		Label types.Label
		LabelSize uint32
		Publishers map[types.HandleUID]struct{}
		LocalSubscribers map[types.NodeId]struct{}
		RemoteSubscribers map[types.NodeId]struct{}
	}

	// RecvRoute is one label's subscriber set on the receive side
	RecvRoute struct {
		Label types.Label
		LabelSize uint32
		Subscribers map[types.HandleUID]struct{}
	}

	// Table holds both route kinds; the send and recv sides share the
	// same generation-bump-on-route-creation/deletion discipline, so one
	// implementation backs both. In practice the router dedicates one
	// Table instance per side.
	Table struct {
		mu sync.RWMutex
		sendGen uint64
		recvGen uint64
		sendRoutes map[types.Label]*SendRoute
		recvRoutes map[types.Label]*RecvRoute
	}
)

func New() *Table {
	return &Table{
		sendRoutes: make(map[types.Label]*SendRoute),
		recvRoutes: make(map[types.Label]*RecvRoute),
	}
}

func (t *Table) bumpSend() uint64 {
	t.sendGen++
	return t.sendGen
}

func (t *Table) bumpRecv() uint64 {
	t.recvGen++
	return t.recvGen
}


// send side


// AddSendPublisher registers uid as a publisher of label.
// Fails ErrSizeMismatch if the route already exists with a different
// labelSize; creates the route (bumping the send generation) if new.
func (t *Table) AddSendPublisher(label types.Label, labelSize uint32, uid types.HandleUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.sendRoutes[label]
	if !ok {
		r = &SendRoute{
			Label: label,
			LabelSize: labelSize,
			Publishers: map[types.HandleUID]struct{}{},
			LocalSubscribers: map[types.NodeId]struct{}{},
			RemoteSubscribers: map[types.NodeId]struct{}{},
		}
		t.sendRoutes[label] = r
		t.bumpSend()
	} else if r.LabelSize != labelSize {
		return ErrSizeMismatch
	}
	r.Publishers[uid] = struct{}{}
	return nil
}

// RemoveSendPublisher removes uid; if no publishers remain the route is
// deleted and the send generation is bumped.
func (t *Table) RemoveSendPublisher(label types.Label, uid types.HandleUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.sendRoutes[label]
	if !ok {
		return
	}
	delete(r.Publishers, uid)
	if len(r.Publishers) == 0 {
		delete(t.sendRoutes, label)
		t.bumpSend()
	}
}

// AddLocalSendSubscriber/AddRemoteSendSubscriber register dstID as a
// subscriber of label on the send route, enforcing the same-label-size
// discipline and the local-xor-remote invariant.
func (t *Table) AddLocalSendSubscriber(label types.Label, labelSize uint32, dstID types.NodeId) error {
	return t.addSendSubscriber(label, labelSize, dstID, true)
}

func (t *Table) AddRemoteSendSubscriber(label types.Label, labelSize uint32, dstID types.NodeId) error {
	return t.addSendSubscriber(label, labelSize, dstID, false)
}

func (t *Table) addSendSubscriber(label types.Label, labelSize uint32, dstID types.NodeId, local bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.sendRoutes[label]
	if !ok {
		r = &SendRoute{
			Label: label,
			LabelSize: labelSize,
			Publishers: map[types.HandleUID]struct{}{},
			LocalSubscribers: map[types.NodeId]struct{}{},
			RemoteSubscribers: map[types.NodeId]struct{}{},
		}
		t.sendRoutes[label] = r
		t.bumpSend()
	} else if r.LabelSize != labelSize {
		return ErrSizeMismatch
	}
	if local {
		delete(r.RemoteSubscribers, dstID)
		r.LocalSubscribers[dstID] = struct{}{}
	} else {
		delete(r.LocalSubscribers, dstID)
		r.RemoteSubscribers[dstID] = struct{}{}
	}
	debug.Assert(!bothPresent(r, dstID))
	return nil
}

func bothPresent(r *SendRoute, id types.NodeId) bool {
	_, l := r.LocalSubscribers[id]
	_, rm := r.RemoteSubscribers[id]
	return l && rm
}

func (t *Table) RemoveLocalSendSubscriber(label types.Label, dstID types.NodeId) {
	t.removeSendSubscriber(label, dstID, true)
}

func (t *Table) RemoveRemoteSendSubscriber(label types.Label, dstID types.NodeId) {
	t.removeSendSubscriber(label, dstID, false)
}

func (t *Table) removeSendSubscriber(label types.Label, dstID types.NodeId, local bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.sendRoutes[label]
	if !ok {
		return
	}
	if local {
		delete(r.LocalSubscribers, dstID)
	} else {
		delete(r.RemoteSubscribers, dstID)
	}
	if r.emptyLocked() {
		delete(t.sendRoutes, label)
		t.bumpSend()
	}
}

func (r *SendRoute) emptyLocked() bool {
	return len(r.Publishers) == 0 && len(r.LocalSubscribers) == 0 && len(r.RemoteSubscribers) == 0
}

// LookupSend returns a shallow copy of the send route for label, or false
// if none exists. Copying the id sets keeps callers from mutating the
// table under a read lock.
func (t *Table) LookupSend(label types.Label) (SendRoute, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.sendRoutes[label]
	if !ok {
		return SendRoute{}, false
	}
	return cloneSendRoute(r), true
}

func cloneSendRoute(r *SendRoute) SendRoute {
	out := SendRoute{
		Label: r.Label,
		LabelSize: r.LabelSize,
		Publishers: make(map[types.HandleUID]struct{}, len(r.Publishers)),
		LocalSubscribers: make(map[types.NodeId]struct{}, len(r.LocalSubscribers)),
		RemoteSubscribers: make(map[types.NodeId]struct{}, len(r.RemoteSubscribers)),
	}
	for k := range r.Publishers {
		out.Publishers[k] = struct{}{}
	}
	for k := range r.LocalSubscribers {
		out.LocalSubscribers[k] = struct{}{}
	}
	for k := range r.RemoteSubscribers {
		out.RemoteSubscribers[k] = struct{}{}
	}
	return out
}


// recv side


// AddRecvSubscriber registers uid as a subscriber of label on the recv
// route.
func (t *Table) AddRecvSubscriber(label types.Label, labelSize uint32, uid types.HandleUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recvRoutes[label]
	if !ok {
		r = &RecvRoute{Label: label, LabelSize: labelSize, Subscribers: map[types.HandleUID]struct{}{}}
		t.recvRoutes[label] = r
		t.bumpRecv()
	} else if r.LabelSize != labelSize {
		return ErrSizeMismatch
	}
	r.Subscribers[uid] = struct{}{}
	return nil
}

// RemoveRecvSubscriber removes uid; if no subscribers remain the route is
// deleted and the recv generation is bumped.
func (t *Table) RemoveRecvSubscriber(label types.Label, uid types.HandleUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recvRoutes[label]
	if !ok {
		return
	}
	delete(r.Subscribers, uid)
	if len(r.Subscribers) == 0 {
		delete(t.recvRoutes, label)
		t.bumpRecv()
	}
}

// LookupRecv returns a shallow copy of the recv route for label.
func (t *Table) LookupRecv(label types.Label) (RecvRoute, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.recvRoutes[label]
	if !ok {
		return RecvRoute{}, false
	}
	out := RecvRoute{Label: r.Label, LabelSize: r.LabelSize, Subscribers: make(map[types.HandleUID]struct{}, len(r.Subscribers))}
	for k := range r.Subscribers {
		out.Subscribers[k] = struct{}{}
	}
	return out, true
}


// snapshots


// SnapshotSendLabels emits a fixed-size, generation-stamped, label-sorted
// snapshot of every currently routed send label. Two snapshots taken with
// no intervening mutation are byte-identical.
func (t *Table) SnapshotSendLabels() types.LabelsSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshotFromSend(t.sendRoutes, t.sendGen)
}

// snapshotFromSend builds a sorted, size-capped LabelsSnapshot from the send
// routes; snapshotFromRecv below does the same for the recv routes.
func snapshotFromSend(routes map[types.Label]*SendRoute, gen uint64) types.LabelsSnapshot {
	out := types.LabelsSnapshot{Gen: gen}
	for i := range out.Labels {
		out.Labels[i].Label = types.InvalidLabel
	}
	type kv struct {
		label types.Label
		size uint32
	}
	all := make([]kv, 0, len(routes))
	for l, r := range routes {
		all = append(all, kv{l, r.LabelSize})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].label < all[j].label })
	n := len(all)
	if n > types.MaxLabels {
		n = types.MaxLabels
	}
	for i := 0; i < n; i++ {
		out.Labels[i] = types.LabelInfo{Label: all[i].label, Size: all[i].size}
	}
	return out
}

func snapshotFromRecv(routes map[types.Label]*RecvRoute, gen uint64) types.LabelsSnapshot {
	out := types.LabelsSnapshot{Gen: gen}
	for i := range out.Labels {
		out.Labels[i].Label = types.InvalidLabel
	}
	type kv struct {
		label types.Label
		size uint32
	}
	all := make([]kv, 0, len(routes))
	for l, r := range routes {
		all = append(all, kv{l, r.LabelSize})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].label < all[j].label })
	n := len(all)
	if n > types.MaxLabels {
		n = types.MaxLabels
	}
	for i := 0; i < n; i++ {
		out.Labels[i] = types.LabelInfo{Label: all[i].label, Size: all[i].size}
	}
	return out
}

// SnapshotRecvLabels is the recv-side counterpart of SnapshotSendLabels.
func (t *Table) SnapshotRecvLabels() types.LabelsSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshotFromRecv(t.recvRoutes, t.recvGen)
}

// Generation returns the table's current generation counter, combining the
// send and recv sides; callers that care about only one side use
// SnapshotSendLabels/SnapshotRecvLabels's embedded Gen instead.
func (t *Table) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sendGen + t.recvGen
}

// ErrSizeMismatch is returned when a publisher or subscriber advertises a
// label_size that disagrees with the route's existing label_size.
var ErrSizeMismatch = errors.New("route: label size mismatch")
