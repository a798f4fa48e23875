// Package manager implements the public-facing manager façade: configuration, handle open/close, lifecycle, and roster
// validation. It is the one place that wires together the router, the
// transport registry, the send workers, the connection manager, and
// discovery into a running fabric instance.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package manager

import (
	"fmt"

	"github.com/houseofmoo/netcomm-sub000/connmgr"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// Config is the already-parsed manager configuration. The external CLI/config reader populates this from the
// key/value manager config file.
type Config struct {
	NodeID types.NodeId
	MulticastGroup string
	MulticastPort int
	DialTimeoutMS int
}

// DefaultConfig mirrors the source's built-in defaults.
func DefaultConfig() Config {
	return Config{
		MulticastGroup: "239.255.0.1",
		MulticastPort: 30001,
		DialTimeoutMS: 2000,
	}
}

// Validate rejects a malformed roster before anything starts: no two
// entries may share an IP:port, and the local node's own id must be
// present exactly once. Returns a config error rather than letting
// init_manager silently misroute traffic.
func Validate(cfg Config, roster []connmgr.Peer) error {
	seenAddr := make(map[string]types.NodeId, len(roster))
	selfCount := 0
	for _, p := range roster {
		addr := fmt.Sprintf("%s:%d", p.IP, p.Port)
		if other, dup := seenAddr[addr]; dup {
			return fmt.Errorf("manager: roster entries %d and %d share address %s", other, p.ID, addr)
		}
		seenAddr[addr] = p.ID
		if p.ID == cfg.NodeID {
			selfCount++
		}
	}
	if selfCount != 1 {
		return fmt.Errorf("manager: local node id %d must appear exactly once in roster (found %d)", cfg.NodeID, selfCount)
	}
	return nil
}

// Self returns the roster entry matching cfg.NodeID. Validate must have
// already confirmed exactly one exists.
func Self(cfg Config, roster []connmgr.Peer) connmgr.Peer {
	for _, p := range roster {
		if p.ID == cfg.NodeID {
			return p
		}
	}
	return connmgr.Peer{ID: types.InvalidNode}
}

// Others returns every roster entry except the local node.
func Others(cfg Config, roster []connmgr.Peer) []connmgr.Peer {
	out := make([]connmgr.Peer, 0, len(roster))
	for _, p := range roster {
		if p.ID != cfg.NodeID {
			out = append(out, p)
		}
	}
	return out
}
