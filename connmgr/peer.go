// Package connmgr implements the connection manager: TCP
// listener, asymmetric dial policy, heartbeat, reconnect, and the
// spawning/retiring of per-peer receive workers. It also opens the local
// shared-memory send writers to co-resident peers.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package connmgr

import (
	"github.com/houseofmoo/netcomm-sub000/types"
)

// Peer is one roster entry.
type Peer struct {
	ID types.NodeId
	IP string
	Port uint16
}

// RouteKind classifies dst relative to self:
// Self if it's our own id, Shm if same IP but a different id (co-resident),
// Socket otherwise.
func RouteKind(self Peer, dst Peer) types.RouteKind {
	if dst.ID == self.ID {
		return types.RouteSelf
	}
	if dst.IP == self.IP {
		return types.RouteShm
	}
	return types.RouteSocket
}
