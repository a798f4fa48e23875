/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package connmgr

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houseofmoo/netcomm-sub000/cmn/mono"
	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/hk"
	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/recvworker"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/sendworker"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/stats"
	"github.com/houseofmoo/netcomm-sub000/sys"
	"github.com/houseofmoo/netcomm-sub000/transport"
	"github.com/houseofmoo/netcomm-sub000/types"
	"github.com/houseofmoo/netcomm-sub000/wire"
)

const (
	monitorInterval = 5 * time.Second
	dialRounds = 5
	dialRoundInterval = 1 * time.Second
	defaultDialTimeout = 2 * time.Second
)

// Manager owns the TCP listener, the per-peer receive workers, and the
// monitor loop that reconnects dropped sessions.
type Manager struct {
	self Peer
	peers []Peer // all roster entries except self
	dialTimeout time.Duration

	reg *transport.Registry
	rt *router.Router
	send *sendworker.Pair
	shmRcv *recvworker.Shm

	listener *tcp.Server

	mu sync.Mutex
	sockWkr map[types.NodeId]*recvworker.Socket

	stop chan struct{}
	stopOnce sync.Once
	wg sync.WaitGroup

	hkName string

	stats *stats.Stats // optional
}

// SetStats attaches a metrics sink; nil-safe if never called.
func (m *Manager) SetStats(s *stats.Stats) { m.stats = s }

func New(self Peer, peers []Peer, dialTimeout time.Duration, reg *transport.Registry, rt *router.Router, send *sendworker.Pair) *Manager {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &Manager{
		self: self,
		peers: peers,
		dialTimeout: dialTimeout,
		reg: reg,
		rt: rt,
		send: send,
		listener: tcp.NewServer(),
		sockWkr: make(map[types.NodeId]*recvworker.Socket),
		stop: make(chan struct{}),
		hkName: fmt.Sprintf("connmgr-monitor-%d", self.ID),
	}
}

// Start brings the process's connectivity up: send workers, the shm
// receive worker, the TCP listener, one shm writer per co-resident peer,
// the initial dial rounds toward every remote peer we are responsible for
// dialing, and finally the monitor. The local shared-memory receive ring
// must already be open and registered by the caller, so the ring exists
// before any peer can open a writer against it.
func (m *Manager) Start(shmRcv *recvworker.Shm) error {
	m.shmRcv = shmRcv

	m.send.Start()

	m.wg.Add(1)
	go func() { defer m.wg.Done(); m.shmRcv.Run() }()

	if err := m.listener.Listen(m.self.IP, m.self.Port); err != nil {
		m.send.Stop()
		return err
	}
	m.wg.Add(1)
	go func() { defer m.wg.Done(); m.acceptLoop() }()

	// Local shm writers open in the background: the co-resident peer may
	// not have started yet, and its opener must not hold up our own
	// startup. The initial dial rounds are bounded, so those do run to
	// completion here, fanned out with a cap so a large roster doesn't
	// stampede the dialer.
	var eg errgroup.Group
	eg.SetLimit(sys.NumCPU())
	for _, p := range m.peers {
		p := p
		switch RouteKind(m.self, p) {
		case types.RouteShm:
			m.wg.Add(1)
			go func() { defer m.wg.Done(); m.openLocalShmWriter(p) }()
		case types.RouteSocket:
			if p.ID < m.self.ID {
				eg.Go(func() error { m.initialDial(p); return nil })
			}
		}
	}
	eg.Wait()

	// Monitor cadence is scheduled through the shared housekeeper
	// instead of a dedicated ticker goroutine.
	hk.DefaultHK.Reg(m.hkName, m.monitorTick, monitorInterval)
	return nil
}

// monitorTick is the housekeeper callback: it runs monitorOnce and
// reschedules itself at the same interval.
func (m *Manager) monitorTick() time.Duration {
	select {
	case <-m.stop:
		return hk.UnregInterval
	default:
	}
	m.monitorOnce()
	return monitorInterval
}

// openLocalShmWriter loops until the co-resident peer's ring segment is
// opened. OpenShmSend itself retries 50 times with a short interval; this
// outer loop covers the case where the peer process hasn't even started
// yet.
func (m *Manager) openLocalShmWriter(p Peer) {
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		s, err := shmio.OpenShmSend(p.ID)
		if err == nil {
			m.reg.UpsertShmSend(p.ID, s)
			nlog.Infof("connmgr: opened shm writer for local peer %d", p.ID)
			return
		}
		nlog.Infof("connmgr: waiting for local peer %d's shm segment: %v", p.ID, err)
		time.Sleep(dialRoundInterval)
	}
}

// initialDial runs the dialing side of the asymmetric dial (Start calls it
// only for peers with a lower id than ours): a bounded number of rounds
// with a fixed interval between them; after that the monitor owns
// reconnection.
func (m *Manager) initialDial(p Peer) {
	started := mono.NanoTime()
	for i := 0; i < dialRounds; i++ {
		if m.dialOnce(p) {
			return
		}
		time.Sleep(dialRoundInterval)
	}
	nlog.Warningf("connmgr: no connection to node %d after %d rounds (%v), leaving it to the monitor",
		p.ID, dialRounds, mono.Since(started))
}

func (m *Manager) dialOnce(p Peer) bool {
	c := tcp.NewClient(p.ID)
	if err := c.Connect(p.IP, p.Port, m.dialTimeout); err != nil {
		return false
	}
	hdr := wire.EncodeHeader(&types.LabelHeader{
		Magic: types.MagicNum, Version: types.Version,
		SourceID: m.self.ID, Flags: uint16(types.FlagConnect),
	})
	if err := c.SendAll(hdr); err != nil {
		c.Disconnect()
		return false
	}
	m.adopt(p.ID, c)
	return true
}

// acceptLoop implements the server side of the asymmetric dial: at startup
// peers with a higher id dial us, and sessions the monitor re-dials from
// either side also arrive here.
func (m *Manager) acceptLoop() {
	for {
		c, err := m.listener.Accept()
		if err != nil {
			return // listener closed by RequestStop
		}
		hdrBuf := make([]byte, types.LabelHeaderSize)
		if err := c.RecvAll(hdrBuf); err != nil {
			nlog.Warningf("connmgr: failed reading identification header: %v", err)
			c.Disconnect()
			continue
		}
		hdr, err := wire.DecodeHeader(hdrBuf)
		if err != nil || hdr.Magic != types.MagicNum {
			nlog.Warningf("connmgr: bad identification header: %v", err)
			c.Disconnect()
			continue
		}
		m.adopt(hdr.SourceID, c)
	}
}

// adopt installs c as the session for peerID, stopping any prior receive
// worker before the registry replaces the socket.
func (m *Manager) adopt(peerID types.NodeId, c *tcp.Client) {
	m.stopSocketWorker(peerID)
	m.reg.UpsertSocket(peerID, c)
	m.startSocketWorker(peerID, c)
}

func (m *Manager) startSocketWorker(peerID types.NodeId, c *tcp.Client) {
	w := recvworker.NewSocket(peerID, c, m.rt)
	if m.stats != nil {
		w.SetStats(m.stats)
	}
	m.mu.Lock()
	m.sockWkr[peerID] = w
	m.mu.Unlock()
	m.wg.Add(1)
	go func() { defer m.wg.Done(); w.Run() }()
}

func (m *Manager) stopSocketWorker(peerID types.NodeId) {
	m.mu.Lock()
	w, ok := m.sockWkr[peerID]
	delete(m.sockWkr, peerID)
	m.mu.Unlock()
	if ok {
		w.Stop()
	}
}

func (m *Manager) monitorOnce() {
	for _, p := range m.peers {
		if RouteKind(m.self, p) != types.RouteSocket {
			continue
		}
		c, ok := m.reg.Socket(p.ID)
		if !ok || !c.IsConnected() {
			if m.dialOnce(p) {
				continue
			}
			continue
		}

		hdr := wire.EncodeHeader(&types.LabelHeader{
			Magic: types.MagicNum, Version: types.Version,
			SourceID: m.self.ID, Flags: uint16(types.FlagPing),
		})
		if err := c.SendAll(hdr); err != nil {
			if tcp.IsFatal(err) {
				nlog.Warningf("connmgr: ping to node %d failed, reconnecting: %v", p.ID, err)
				m.stopSocketWorker(p.ID)
				m.reg.DeleteSocket(p.ID)
				if m.dialOnce(p) && m.stats != nil {
					m.stats.Reconnects.Inc()
				}
			}
		}
	}
}

// Stop implements a graceful shutdown: it announces the teardown to every
// connected peer, requests every loop to exit, stops all workers, and
// closes the listener and sockets.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		hk.DefaultHK.Unreg(m.hkName)
		m.announceDisconnect()
		m.listener.RequestStop()
		m.send.Stop()
		if m.shmRcv != nil {
			m.shmRcv.Stop()
		}

		m.mu.Lock()
		workers := make([]*recvworker.Socket, 0, len(m.sockWkr))
		for _, w := range m.sockWkr {
			workers = append(workers, w)
		}
		m.mu.Unlock()
		for _, w := range workers {
			w.Stop()
		}
	})
	m.wg.Wait()
}

// announceDisconnect sends a best-effort Disconnect frame on every live
// session so peers drop it immediately instead of waiting out a ping
// cycle.
func (m *Manager) announceDisconnect() {
	hdr := wire.EncodeHeader(&types.LabelHeader{
		Magic: types.MagicNum, Version: types.Version,
		SourceID: m.self.ID, Flags: uint16(types.FlagDisconnect),
	})
	for id, c := range m.reg.Sockets() {
		if !c.IsConnected() {
			continue
		}
		if err := c.SendAll(hdr); err != nil {
			nlog.Infof("connmgr: disconnect notice to node %d failed: %v", id, err)
		}
	}
}
