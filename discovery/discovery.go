// Package discovery implements the periodic multicast label exchange:
// each peer broadcasts its current send/receive label set
// every 3 s; on receipt, peer state is diffed against the last-seen
// snapshot by generation, and added/removed labels drive send-route
// subscriber enrollment.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package discovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/hk"
	"github.com/houseofmoo/netcomm-sub000/platform/udpmcast"
	"github.com/houseofmoo/netcomm-sub000/route"
	"github.com/houseofmoo/netcomm-sub000/stats"
	"github.com/houseofmoo/netcomm-sub000/types"
	"github.com/houseofmoo/netcomm-sub000/wire"
)

const broadcastInterval = 3 * time.Second // "every 3 s"

// RouteKindFunc resolves a peer NodeId to its RouteKind relative to self.
type RouteKindFunc func(peer types.NodeId) types.RouteKind

type peerState struct {
	sendGen uint64
	sendLabels []types.LabelInfo
	recvGen uint64
	recvLabels []types.LabelInfo
	seen bool
}

// Discovery owns the multicast socket, the peer-state table, and the two
// background loops (broadcast, receive).
type Discovery struct {
	self types.NodeId
	sock *udpmcast.Socket
	sendTable *route.Table
	recvTable *route.Table
	routeKind RouteKindFunc

	mu sync.Mutex
	states map[types.NodeId]*peerState

	hkName string

	stop chan struct{}
	stopOnce sync.Once
	wg sync.WaitGroup
	stats *stats.Stats // optional
}

// SetStats attaches a metrics sink; nil-safe if never called.
func (d *Discovery) SetStats(s *stats.Stats) { d.stats = s }

func New(self types.NodeId, sock *udpmcast.Socket, sendTable, recvTable *route.Table, rk RouteKindFunc) *Discovery {
	return &Discovery{
		self: self,
		sock: sock,
		sendTable: sendTable,
		recvTable: recvTable,
		routeKind: rk,
		states: make(map[types.NodeId]*peerState),
		hkName: fmt.Sprintf("discovery-broadcast-%d", self),
		stop: make(chan struct{}),
	}
}

func (d *Discovery) Start() {
	hk.DefaultHK.Reg(d.hkName, d.broadcastTick, broadcastInterval)
	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.recvLoop() }()
}

func (d *Discovery) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		hk.DefaultHK.Unreg(d.hkName)
		d.sock.RequestStop()
	})
	d.wg.Wait()
}

// broadcastTick is the housekeeper callback for the "every 3 s" label
// broadcast; it reschedules itself at the same interval until Stop fires.
func (d *Discovery) broadcastTick() time.Duration {
	select {
	case <-d.stop:
		return hk.UnregInterval
	default:
	}
	d.broadcastOnce()
	return broadcastInterval
}

func (d *Discovery) broadcastOnce() {
	msg := &types.BroadcastMessage{
		ID: d.self,
		SendLabels: d.sendTable.SnapshotSendLabels(),
		RecvLabels: d.recvTable.SnapshotRecvLabels(),
	}
	b, err := wire.EncodeDiscovery(msg)
	if err != nil {
		nlog.Errorf("discovery: encode failed: %v", err)
		return
	}
	if err := d.sock.SendBroadcast(b); err != nil {
		nlog.Warningf("discovery: broadcast send failed: %v", err)
		return
	}
	if d.stats != nil {
		d.stats.DiscoveryRounds.Inc()
	}
}

func (d *Discovery) recvLoop() {
	buf := make([]byte, wire.DiscoveryMsgSize)
	for {
		n, err := d.sock.RecvBroadcast(buf)
		select {
		case <-d.stop:
			return
		default:
		}
		if err != nil {
			nlog.Warningf("discovery: recv failed: %v", err)
			continue
		}
		msg, err := wire.DecodeDiscovery(buf[:n])
		if err != nil {
			nlog.Warningf("discovery: decode failed: %v", err)
			continue
		}
		if msg.ID == d.self {
			continue
		}
		d.reconcile(msg)
	}
}

func validLabels(s *types.LabelsSnapshot) []types.LabelInfo {
	out := make([]types.LabelInfo, 0, len(s.Labels))
	for _, li := range s.Labels {
		if li.Label == types.InvalidLabel {
			break
		}
		out = append(out, li)
	}
	return out
}

// diff computes added/removed entries between two ascending-sorted
// LabelInfo slices via a linear merge.
func diff(old, cur []types.LabelInfo) (added, removed []types.LabelInfo) {
	i, j := 0, 0
	for i < len(old) && j < len(cur) {
		switch {
		case old[i].Label == cur[j].Label:
			i++
			j++
		case old[i].Label < cur[j].Label:
			removed = append(removed, old[i])
			i++
		default:
			added = append(added, cur[j])
			j++
		}
	}
	removed = append(removed, old[i:]...)
	added = append(added, cur[j:]...)
	return added, removed
}

func (d *Discovery) reconcile(msg *types.BroadcastMessage) {
	d.mu.Lock()
	ps, ok := d.states[msg.ID]
	if !ok {
		ps = &peerState{}
		d.states[msg.ID] = ps
	}
	d.mu.Unlock()

	kind := d.routeKind(msg.ID)

	if !ps.seen || msg.SendLabels.Gen != ps.sendGen {
		cur := validLabels(&msg.SendLabels)
		added, removed := diff(ps.sendLabels, cur)
		// Peer's send-label announcements are logged but do not mutate
		// our route table: our router delivers inbound records to local
		// recv handles regardless of which peer published them, so there
		// is nothing in the route/table data model to register here
		// (see DESIGN.md for this Open Question resolution).
		for _, li := range added {
			nlog.Infof("discovery: peer %d now sends label %d (size %d)", msg.ID, li.Label, li.Size)
		}
		for _, li := range removed {
			nlog.Infof("discovery: peer %d no longer sends label %d", msg.ID, li.Label)
		}
		ps.sendLabels = cur
		ps.sendGen = msg.SendLabels.Gen
	}

	if !ps.seen || msg.RecvLabels.Gen != ps.recvGen {
		cur := validLabels(&msg.RecvLabels)
		added, removed := diff(ps.recvLabels, cur)
		for _, li := range added {
			d.enroll(msg.ID, kind, li)
		}
		for _, li := range removed {
			d.unenroll(msg.ID, kind, li)
		}
		ps.recvLabels = cur
		ps.recvGen = msg.RecvLabels.Gen
	}

	ps.seen = true
}

// enroll adds peerID as a subscriber on our send route for li.Label, if we
// have one.
func (d *Discovery) enroll(peerID types.NodeId, kind types.RouteKind, li types.LabelInfo) {
	rt, ok := d.sendTable.LookupSend(li.Label)
	if !ok || rt.LabelSize != li.Size {
		return
	}
	var err error
	switch kind {
	case types.RouteShm:
		err = d.sendTable.AddLocalSendSubscriber(li.Label, li.Size, peerID)
	case types.RouteSocket:
		err = d.sendTable.AddRemoteSendSubscriber(li.Label, li.Size, peerID)
	default:
		return
	}
	if err != nil {
		nlog.Warningf("discovery: enroll peer %d on label %d: %v", peerID, li.Label, err)
		return
	}
	nlog.Infof("discovery: enrolled peer %d (%s) as subscriber of label %d", peerID, kind, li.Label)
}

func (d *Discovery) unenroll(peerID types.NodeId, kind types.RouteKind, li types.LabelInfo) {
	switch kind {
	case types.RouteShm:
		d.sendTable.RemoveLocalSendSubscriber(li.Label, peerID)
	case types.RouteSocket:
		d.sendTable.RemoveRemoteSendSubscriber(li.Label, peerID)
	}
	nlog.Infof("discovery: unenrolled peer %d from label %d", peerID, li.Label)
}
