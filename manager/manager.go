/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package manager

import (
	"sync"
	ratomic "sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/houseofmoo/netcomm-sub000/cmn/mono"
	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/connmgr"
	"github.com/houseofmoo/netcomm-sub000/discovery"
	"github.com/houseofmoo/netcomm-sub000/hk"
	"github.com/houseofmoo/netcomm-sub000/platform/udpmcast"
	"github.com/houseofmoo/netcomm-sub000/recvworker"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/sendworker"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/stats"
	"github.com/houseofmoo/netcomm-sub000/sys"
	"github.com/houseofmoo/netcomm-sub000/transport"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// startHKOnce launches the shared housekeeper's event loop the first time
// any manager in this process starts; connmgr's monitor tick and
// discovery's broadcast tick both schedule through it.
var startHKOnce sync.Once

func startHK() {
	startHKOnce.Do(func() { go hk.DefaultHK.Run() })
}

// Manager is the top-level fabric instance: one per process, constructed
// by InitManager and torn down by Close.
type Manager struct {
	cfg Config
	self connmgr.Peer
	ready ratomic.Bool

	reg *transport.Registry
	router *router.Router
	send *sendworker.Pair
	shmRcv *shmio.ShmRecv
	shmWkr *recvworker.Shm
	conn *connmgr.Manager
	disc *discovery.Discovery
	stats *stats.Stats

	seq ratomic.Uint32
}

// InitManager implements "init_manager(node_id) -> bool",
// generalized to also take the already-parsed config and roster.
func InitManager(cfg Config, roster []connmgr.Peer) (*Manager, error) {
	if err := Validate(cfg, roster); err != nil {
		return nil, err
	}
	started := mono.NanoTime()
	sys.SetMaxProcs()
	startHK()
	self := Self(cfg, roster)
	others := Others(cfg, roster)

	reg := transport.New()
	rt := router.New(cfg.NodeID, reg)

	shmRecv, err := shmio.OpenShmRecv(cfg.NodeID)
	if err != nil {
		return nil, errors.Wrapf(err, "manager: opening local shm recv segment for node %d", cfg.NodeID)
	}
	reg.SetSelf(shmRecv)

	st := stats.New(prometheus.DefaultRegisterer)

	send := sendworker.NewPair(rt.CompleteJob)
	send.SetStats(st)

	shmWkr := recvworker.NewShm(shmRecv, rt)
	shmWkr.SetStats(st)

	cm := connmgr.New(self, others, time.Duration(cfg.DialTimeoutMS)*time.Millisecond, reg, rt, send)
	cm.SetStats(st)

	mcastCfg := udpmcast.DefaultConfig()
	mcastCfg.GroupIP = cfg.MulticastGroup
	mcastCfg.Port = cfg.MulticastPort
	sock, err := udpmcast.OpenAndJoin(mcastCfg)
	if err != nil {
		shmRecv.Close()
		return nil, errors.Wrapf(err, "manager: joining discovery multicast group %s:%d", mcastCfg.GroupIP, mcastCfg.Port)
	}

	routeKind := func(peer types.NodeId) types.RouteKind {
		for _, p := range others {
			if p.ID == peer {
				return connmgr.RouteKind(self, p)
			}
		}
		return types.RouteNone
	}
	disc := discovery.New(cfg.NodeID, sock, rt.SendTable(), rt.RecvTable(), routeKind)
	disc.SetStats(st)

	m := &Manager{
		cfg: cfg,
		self: self,
		reg: reg,
		router: rt,
		send: send,
		shmRcv: shmRecv,
		shmWkr: shmWkr,
		conn: cm,
		disc: disc,
		stats: st,
	}

	if err := cm.Start(shmWkr); err != nil {
		sock.Close()
		shmRecv.Close()
		return nil, errors.Wrap(err, "manager: starting connection manager")
	}
	disc.Start()
	m.ready.Store(true)
	nlog.Infof("manager: node %d ready in %v (%d peers)", cfg.NodeID, mono.Since(started), len(others))
	return m, nil
}

// IsReady implements "is_ready() -> bool".
func (m *Manager) IsReady() bool { return m.ready.Load() }

// Close implements "close_manager": stops discovery, the
// connection manager (which stops send/recv workers and sockets), and
// releases the local shared-memory segment.
func (m *Manager) Close() {
	m.ready.Store(false)
	m.disc.Stop()
	m.conn.Stop()
	m.shmRcv.Close()
	m.shmRcv.Unlink()
}

// DebugDump renders a JSON snapshot of router/handle counts for
// introspection. Not part of the public send/recv API surface.
func (m *Manager) DebugDump() ([]byte, error) {
	type dump struct {
		NodeID types.NodeId `json:"node_id"`
		Ready bool `json:"ready"`
		Router string `json:"router"`
		SendGen uint64 `json:"send_generation"`
		RecvGen uint64 `json:"recv_generation"`
	}
	d := dump{
		NodeID: m.cfg.NodeID,
		Ready: m.IsReady(),
		Router: m.router.String(),
		SendGen: m.router.SendTable().Generation(),
		RecvGen: m.router.RecvTable().Generation(),
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(d)
}

func (m *Manager) nextSeq() uint32 { return m.seq.Add(1) }
