/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sendworker

import (
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/stats"
)

// Pair bundles the two send workers a process runs, one per transport
// kind. EnqueueJob is the single entry point producers call; it hands the
// job to whichever worker(s) actually have receivers.
type Pair struct {
	Shm *Worker
	Tcp *Worker
	onComplete func(*router.SendJob)
}

func NewPair(onComplete func(*router.SendJob)) *Pair {
	return &Pair{
		Shm: NewWorker(ShmSendPlan{}, onComplete),
		Tcp: NewWorker(TcpSendPlan{}, onComplete),
		onComplete: onComplete,
	}
}

// Start launches both workers' dispatch loops; call once at process startup
func (p *Pair) Start() {
	go p.Shm.Run()
	go p.Tcp.Run()
}

func (p *Pair) Stop() {
	p.Shm.Stop()
	p.Tcp.Stop()
}

// SetStats attaches a metrics sink to both workers.
func (p *Pair) SetStats(s *stats.Stats) {
	p.Shm.SetStats(s)
	p.Tcp.SetStats(s)
}

// EnqueueJob hands job to both workers if both transport kinds are
// present, to only one otherwise. A job with no
// receivers at all completes immediately with status 0.
func (p *Pair) EnqueueJob(j *router.SendJob) {
	hasLocal := len(j.LocalRecvrs) > 0
	hasRemote := len(j.RemoteRecvrs) > 0
	if !hasLocal && !hasRemote {
		if p.onComplete != nil {
			p.onComplete(j)
		}
		return
	}
	if hasLocal {
		p.Shm.Enqueue(j)
	}
	if hasRemote {
		p.Tcp.Enqueue(j)
	}
}
