// Package transport holds the per-process transport registry: the single
// self-hosted shared-memory reader, one shared-memory writer per local
// peer, and one TCP session per remote peer. The registry never spawns
// goroutines — receive/monitor workers are owned by connmgr and merely
// look handles up here.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"sync"

	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// Registry guards its maps with its own mutex: every accessor takes it, so
// callers need not hold the router's lock.
type Registry struct {
	mu sync.Mutex // guards self, shmSends and sockets
	self *shmio.ShmRecv
	shmSends map[types.NodeId]*shmio.ShmSend
	sockets map[types.NodeId]*tcp.Client
}

func New() *Registry {
	return &Registry{
		shmSends: make(map[types.NodeId]*shmio.ShmSend),
		sockets: make(map[types.NodeId]*tcp.Client),
	}
}

func (r *Registry) SetSelf(self *shmio.ShmRecv) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = self
}

func (r *Registry) Self() *shmio.ShmRecv {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// UpsertShmSend installs the writer for a local peer id, replacing (and
// closing) any prior one under that id.
func (r *Registry) UpsertShmSend(id types.NodeId, s *shmio.ShmSend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.shmSends[id]; ok && old != s {
		old.Close()
	}
	r.shmSends[id] = s
}

func (r *Registry) ShmSend(id types.NodeId) (*shmio.ShmSend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shmSends[id]
	return s, ok
}

func (r *Registry) DeleteShmSend(id types.NodeId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shmSends[id]; ok {
		s.Close()
		delete(r.shmSends, id)
	}
}

// UpsertSocket installs the TCP session for a remote peer id, first
// disconnecting any prior session under the same id. The registry never
// touches workers: callers must have already stopped the old session's
// receive worker before calling this.
func (r *Registry) UpsertSocket(id types.NodeId, c *tcp.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sockets[id]; ok && old != c {
		old.Disconnect()
	}
	r.sockets[id] = c
}

func (r *Registry) Socket(id types.NodeId) (*tcp.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sockets[id]
	return c, ok
}

func (r *Registry) DeleteSocket(id types.NodeId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sockets[id]; ok {
		c.Disconnect()
		delete(r.sockets, id)
	}
}

// Sockets returns a snapshot copy of the id-to-session map, used by the
// connection manager to announce Disconnect on every session at shutdown.
func (r *Registry) Sockets() map[types.NodeId]*tcp.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[types.NodeId]*tcp.Client, len(r.sockets))
	for k, v := range r.sockets {
		out[k] = v
	}
	return out
}
