/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package recvworker

import (
	"errors"
	"sync"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/ring"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/stats"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// Shm is the single shared-memory receive worker: it waits
// on the self-hosted ring's semaphore, drains every record it can, and
// reinitializes the ring on corruption rather than exiting, since there is
// exactly one of these per process and nothing else can recreate it short
// of an out-of-process restart.
type Shm struct {
	recv *shmio.ShmRecv
	rt *router.Router

	stopOnce sync.Once
	stop chan struct{}
	done chan struct{}
	stats *stats.Stats // optional
}

func NewShm(recv *shmio.ShmRecv, rt *router.Router) *Shm {
	return &Shm{recv: recv, rt: rt, stop: make(chan struct{}), done: make(chan struct{})}
}

// SetStats attaches a metrics sink; nil-safe if never called.
func (w *Shm) SetStats(s *stats.Stats) { w.stats = s }

// Run must run in its own goroutine; it returns once Stop is called and
// the ring's semaphore has delivered one more wakeup.
func (w *Shm) Run() {
	defer close(w.done)
	buf := make([]byte, types.MaxLabelSize)
	for {
		w.recv.Wait()

		select {
		case <-w.stop:
			return
		default:
		}

		for {
			rec, err := w.recv.Recv(buf)
			if err == nil {
				w.rt.DistributeRecvdLabel(rec.SourceID, rec.Label, rec.Payload, 0)
				continue
			}
			if errors.Is(err, ring.ErrNoRecords) || errors.Is(err, ring.ErrNotYetPublished) {
				break
			}
			if errors.Is(err, ring.ErrLabelTooLarge) {
				// The record is intact but bigger than the drain buffer;
				// it can never be delivered, and tail has not advanced,
				// so drop the backlog rather than spin on it.
				nlog.Warningf("recvworker(shm): oversized record, flushing backlog: %v", err)
				w.recv.Flush()
				if w.stats != nil {
					w.stats.RecvDrops.Inc()
				}
				break
			}
			if ring.NeedsReinit(err) {
				nlog.Warningf("recvworker(shm): %v, reinitializing ring", err)
				w.recv.Reinit()
				if w.stats != nil {
					w.stats.RingReinits.Inc()
				}
				break
			}
			nlog.Errorf("recvworker(shm): unexpected error %v, reinitializing ring", err)
			w.recv.Reinit()
			if w.stats != nil {
				w.stats.RingReinits.Inc()
			}
			break
		}
	}
}

// Stop requests the worker to exit and wakes it from its semaphore wait.
func (w *Shm) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.recv.Wake()
	<-w.done
}
